package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/bcfishobs/internal/domain"
	"github.com/couchcryptid/bcfishobs/internal/observability"
)

// observationsGeometry names the geometry column of the observations table.
const observationsGeometry = "geom"

// Downloader fetches the observation layer and the reference tables and
// loads them into Postgres.
type Downloader struct {
	catalogue Catalogue
	fetcher   Fetcher
	loader    LayerLoader
	publisher SummaryPublisher
	progress  *Progress
	workDir   string
	out       io.Writer
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewDownloader creates a Downloader that writes archives to workDir.
// Pass a nil publisher to skip announcing finished runs.
func NewDownloader(c Catalogue, f Fetcher, l LayerLoader, publisher SummaryPublisher, workDir string, out io.Writer, logger *slog.Logger, metrics *observability.Metrics) *Downloader {
	return &Downloader{
		catalogue: c,
		fetcher:   f,
		loader:    l,
		publisher: publisher,
		progress:  NewProgress(),
		workDir:   workDir,
		out:       out,
		logger:    logger,
		metrics:   metrics,
	}
}

// Progress exposes the run state for the status server.
func (d *Downloader) Progress() *Progress {
	return d.progress
}

// Run orders and loads the observations, then loads every reference archive.
func (d *Downloader) Run(ctx context.Context, email string) (summary domain.RunSummary, err error) {
	summary = domain.RunSummary{Command: "download", StartedAt: domain.Now()}
	defer func() {
		d.progress.Finish(err)
		if err == nil {
			d.metrics.LastSuccess.SetToCurrentTime()
		}
	}()

	d.metrics.RunRunning.Set(1)
	defer d.metrics.RunRunning.Set(0)

	obj, err := d.loadObservations(ctx, email)
	if err != nil {
		return summary, err
	}
	summary.Steps = append(summary.Steps, obj.String())

	for _, a := range domain.ReferenceArchives {
		if err := d.loadArchive(ctx, a); err != nil {
			return summary, err
		}
		summary.Steps = append(summary.Steps, domain.TargetSchema+"."+a.Layer)
	}
	summary.FinishedAt = domain.Now()

	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, summary); err != nil {
			d.logger.Error("publish run summary failed", "error", err)
		}
	}
	return summary, nil
}

func (d *Downloader) loadObservations(ctx context.Context, email string) (domain.ObjectName, error) {
	d.progress.Start("order")
	obj, err := d.catalogue.ObjectName(ctx, domain.ObservationsPackage)
	if err != nil {
		return domain.ObjectName{}, fmt.Errorf("resolve %s: %w", domain.ObservationsPackage, err)
	}
	orderID, err := d.catalogue.CreateOrder(ctx, email, obj)
	if err != nil {
		return domain.ObjectName{}, err
	}
	d.logger.Info("order placed", "object", obj.Upper(), "order_id", orderID)

	archiveURL, err := d.catalogue.WaitForOrder(ctx, orderID)
	if err != nil {
		return domain.ObjectName{}, err
	}

	d.progress.Start(obj.String())
	archive := filepath.Join(d.workDir, obj.Table+".zip")
	if err := d.fetch(ctx, "catalogue", archiveURL, archive); err != nil {
		return domain.ObjectName{}, err
	}

	dir := filepath.Join(d.workDir, obj.Table)
	files, err := d.fetcher.Extract(archive, dir)
	if err != nil {
		return domain.ObjectName{}, err
	}
	source, err := findDataset(dir, files)
	if err != nil {
		return domain.ObjectName{}, fmt.Errorf("order %s: %w", orderID, err)
	}

	layer := domain.Layer{
		Source:       source,
		Schema:       obj.Schema,
		Table:        obj.Table,
		GeometryName: observationsGeometry,
	}
	if err := d.load(ctx, layer); err != nil {
		return domain.ObjectName{}, err
	}
	if _, err := fmt.Fprintf(d.out, "Loaded observations to %s\n", obj); err != nil {
		return domain.ObjectName{}, fmt.Errorf("write progress: %w", err)
	}
	return obj, nil
}

func (d *Downloader) loadArchive(ctx context.Context, a domain.Archive) error {
	d.progress.Start(a.Layer)
	archive := filepath.Join(d.workDir, a.File)
	if err := d.fetch(ctx, "archive", a.URL, archive); err != nil {
		return err
	}
	if _, err := d.fetcher.Extract(archive, d.workDir); err != nil {
		return err
	}

	source := filepath.Join(d.workDir, a.Member)
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("archive %s: missing %s: %w", a.File, a.Member, err)
	}
	return d.load(ctx, domain.Layer{Source: source, Schema: domain.TargetSchema, Table: a.Layer})
}

func (d *Downloader) fetch(ctx context.Context, source, url, dest string) error {
	start := time.Now()
	n, err := d.fetcher.Download(ctx, url, dest)
	if err != nil {
		return err
	}
	d.metrics.DownloadBytes.Add(float64(n))
	d.metrics.DownloadDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	d.logger.Info("downloaded", "file", filepath.Base(dest), "bytes", n)
	return nil
}

func (d *Downloader) load(ctx context.Context, layer domain.Layer) error {
	if err := d.loader.Load(ctx, layer); err != nil {
		return err
	}
	d.metrics.LayersLoaded.Inc()
	return nil
}

// datasetExts are the single-file formats a distribution order can contain,
// in order of preference.
var datasetExts = []string{".gpkg", ".shp", ".geojson", ".csv"}

// findDataset picks the file ogr2ogr should read from an extracted order.
// A file geodatabase is a directory, so it is matched by path component.
func findDataset(dir string, files []string) (string, error) {
	for _, f := range files {
		rel, err := filepath.Rel(dir, f)
		if err != nil {
			continue
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		for i, part := range parts[:len(parts)-1] {
			if strings.EqualFold(filepath.Ext(part), ".gdb") {
				return filepath.Join(dir, filepath.Join(parts[:i+1]...)), nil
			}
		}
	}
	for _, ext := range datasetExts {
		for _, f := range files {
			if strings.EqualFold(filepath.Ext(f), ext) {
				return f, nil
			}
		}
	}
	return "", fmt.Errorf("no dataset found in %s", dir)
}
