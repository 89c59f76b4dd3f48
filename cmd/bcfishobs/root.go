package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/bcfishobs/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/bcfishobs/internal/adapter/kafka"
	"github.com/couchcryptid/bcfishobs/internal/config"
	"github.com/couchcryptid/bcfishobs/internal/domain"
	"github.com/couchcryptid/bcfishobs/internal/observability"
	"github.com/couchcryptid/bcfishobs/internal/pipeline"
	"github.com/spf13/cobra"
)

// app carries what every command shares.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	out     io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "bcfishobs",
		Short: "Reference BC fish observations to the Freshwater Atlas stream network",
		Long: "Downloads the Known BC Fish Observations layer and its reference tables into a\n" +
			"PostGIS database holding the Freshwater Atlas, then matches every observation\n" +
			"to a waterbody or stream and tags the most upstream events per species.",
		SilenceErrors: true,
	}
	root.SetOut(a.out)
	root.AddCommand(newDownloadCmd(a), newProcessCmd(a), newTagMaximalCmd(a))
	return root
}

// orDefault returns the flag value, or the configured fallback when the flag is unset.
func orDefault(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

var (
	errNoEmail = errors.New("Provide --email or set $BCDATA_EMAIL") //nolint:staticcheck // user-facing message
	errNoDBURL = errors.New("Provide --db_url or set $FWA_DB")      //nolint:staticcheck // user-facing message
)

// publisher returns the Kafka publisher when brokers are configured, and a
// func that closes it.
func (a *app) publisher() (pipeline.SummaryPublisher, func()) {
	if len(a.cfg.KafkaBrokers) == 0 {
		return nil, func() {}
	}
	p := kafkaadapter.NewPublisher(a.cfg.KafkaBrokers, a.cfg.KafkaReportTopic, a.logger)
	return p, func() {
		if err := p.Close(); err != nil {
			a.logger.Error("kafka publisher close error", "error", err)
		}
	}
}

// serveStatus starts the status server when HTTP_ADDR is set and returns a
// func that shuts it down.
func (a *app) serveStatus(status httpadapter.RunStatus) func() {
	if a.cfg.HTTPAddr == "" {
		return func() {}
	}
	srv := httpadapter.NewServer(a.cfg.HTTPAddr, status, a.logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Error("http server shutdown error", "error", err)
		}
	}
}

// finish pushes metrics and logs the outcome of a command.
func (a *app) finish(command string, summary domain.RunSummary, err error) error {
	if a.cfg.PushgatewayURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if perr := a.metrics.Push(ctx, a.cfg.PushgatewayURL, command); perr != nil {
			a.logger.Error("pushgateway error", "error", perr)
		}
	}
	if err != nil {
		return err
	}
	a.logger.Info("command complete",
		"command", command,
		"duration", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second),
		"steps", len(summary.Steps),
		"species", len(summary.Species),
	)
	return nil
}
