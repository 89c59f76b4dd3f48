// Package ogr loads vector and tabular files into Postgres by running the
// GDAL ogr2ogr utility.
package ogr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/couchcryptid/bcfishobs/internal/domain"
)

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Loader translates files into a Postgres database, overwriting the target table.
// It implements pipeline.LayerLoader.
type Loader struct {
	path   string
	conn   string
	runner Runner
	logger *slog.Logger
}

// NewLoader creates a loader that writes to the database behind conn, a GDAL
// "PG:" datasource string.
func NewLoader(path, conn string, runner Runner, logger *slog.Logger) *Loader {
	return &Loader{path: path, conn: conn, runner: runner, logger: logger}
}

// Load runs ogr2ogr for the layer. Output from a failed run is included in the error.
func (l *Loader) Load(ctx context.Context, layer domain.Layer) error {
	start := time.Now()
	args := l.args(layer)

	out, err := l.runner.Run(ctx, l.path, args...)
	if err != nil {
		return fmt.Errorf("ogr2ogr load %s into %s.%s: %w: %s",
			layer.Source, layer.Schema, layer.Table, err, strings.TrimSpace(string(out)))
	}

	l.logger.Info("layer loaded",
		"path", layer.Source,
		"layer", layer.Schema+"."+layer.Table,
		"duration", time.Since(start),
	)
	return nil
}

func (l *Loader) args(layer domain.Layer) []string {
	args := []string{
		"--config", "PG_USE_COPY", "YES",
		"-f", "PostgreSQL",
		l.conn,
		layer.Source,
		"-nln", layer.Table,
		"-overwrite",
		"-lco", "OVERWRITE=YES",
		"-lco", "SCHEMA=" + layer.Schema,
	}
	if layer.GeometryName != "" {
		args = append(args, "-lco", "GEOMETRY_NAME="+layer.GeometryName)
	}
	return args
}
