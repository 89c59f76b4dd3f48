package main

import (
	"context"

	"github.com/couchcryptid/bcfishobs/internal/adapter/postgres"
	"github.com/couchcryptid/bcfishobs/internal/domain"
	"github.com/couchcryptid/bcfishobs/internal/pipeline"
	"github.com/couchcryptid/bcfishobs/internal/queries"
	"github.com/spf13/cobra"
)

func newProcessCmd(a *app) *cobra.Command {
	var dbURL string
	var noCleanup bool

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Match observations to the stream network and report the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withProcessor(cmd, dbURL, "process", func(ctx context.Context, p *pipeline.Processor) (domain.RunSummary, error) {
				return p.Run(ctx, !noCleanup)
			})
		},
	}

	cmd.Flags().StringVar(&dbURL, "db_url", "", "target database url (default $FWA_DB)")
	cmd.Flags().BoolVarP(&noCleanup, "no-cleanup", "c", false, "keep the temporary tables")
	return cmd
}

func newTagMaximalCmd(a *app) *cobra.Command {
	var dbURL string

	cmd := &cobra.Command{
		Use:   "tag-maximal",
		Short: "Re-tag the most upstream events per species in a processed database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withProcessor(cmd, dbURL, "tag-maximal", func(ctx context.Context, p *pipeline.Processor) (domain.RunSummary, error) {
				return p.TagMaximal(ctx)
			})
		},
	}

	cmd.Flags().StringVar(&dbURL, "db_url", "", "target database url (default $FWA_DB)")
	return cmd
}

// withProcessor validates the database url, loads the scripts, connects, and
// hands a Processor to run.
func (a *app) withProcessor(cmd *cobra.Command, dbURL, command string, run func(context.Context, *pipeline.Processor) (domain.RunSummary, error)) error {
	dbURL = orDefault(dbURL, a.cfg.DBURL)
	if dbURL == "" {
		return errNoDBURL
	}
	cmd.SilenceUsage = true

	q, err := queries.Load(a.cfg.SQLDir)
	if err != nil {
		return err
	}
	a.logger.Debug("scripts loaded", "dir", orDefault(a.cfg.SQLDir, "embedded"), "scripts", q.Names())

	ctx := cmd.Context()
	store, err := postgres.Open(ctx, dbURL, a.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	pub, closePub := a.publisher()
	defer closePub()

	p := pipeline.NewProcessor(store, q, pub, cmd.OutOrStdout(), a.logger, a.metrics)
	stop := a.serveStatus(p.Progress())
	defer stop()

	summary, err := run(ctx, p)
	return a.finish(command, summary, err)
}
