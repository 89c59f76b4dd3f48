package ogr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/couchcryptid/bcfishobs/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConn = "PG:host='localhost' dbname='fwa'"

type recordingRunner struct {
	name string
	args []string
	out  []byte
	err  error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.name = name
	r.args = args
	return r.out, r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoader_Load_CSV(t *testing.T) {
	runner := &recordingRunner{}
	l := NewLoader("ogr2ogr", testConn, runner, discardLogger())

	err := l.Load(context.Background(), domain.Layer{
		Source: "/work/species_cd.csv",
		Schema: "whse_fish",
		Table:  "species_cd",
	})
	require.NoError(t, err)

	assert.Equal(t, "ogr2ogr", runner.name)
	assert.Equal(t, []string{
		"--config", "PG_USE_COPY", "YES",
		"-f", "PostgreSQL",
		testConn,
		"/work/species_cd.csv",
		"-nln", "species_cd",
		"-overwrite",
		"-lco", "OVERWRITE=YES",
		"-lco", "SCHEMA=whse_fish",
	}, runner.args)
}

func TestLoader_Load_GeometryName(t *testing.T) {
	runner := &recordingRunner{}
	l := NewLoader("/opt/gdal/bin/ogr2ogr", testConn, runner, discardLogger())

	require.NoError(t, l.Load(context.Background(), domain.Layer{
		Source:       "/work/FISS_FISH_OBSRVTN_PNT_SP.gdb",
		Schema:       "whse_fish",
		Table:        "fiss_fish_obsrvtn_pnt_sp",
		GeometryName: "geom",
	}))

	assert.Equal(t, "/opt/gdal/bin/ogr2ogr", runner.name)
	assert.Equal(t, []string{"-lco", "GEOMETRY_NAME=geom"}, runner.args[len(runner.args)-2:])
}

func TestLoader_Load_ErrorIncludesOutput(t *testing.T) {
	runner := &recordingRunner{
		out: []byte("ERROR 1: PQconnectdb failed.\n"),
		err: errors.New("exit status 1"),
	}
	l := NewLoader("ogr2ogr", testConn, runner, discardLogger())

	err := l.Load(context.Background(), domain.Layer{Source: "x.csv", Schema: "whse_fish", Table: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whse_fish.x")
	assert.Contains(t, err.Error(), "PQconnectdb failed")
}
