package main

import (
	"github.com/couchcryptid/bcfishobs/internal/adapter/bcdata"
	"github.com/couchcryptid/bcfishobs/internal/adapter/fetch"
	"github.com/couchcryptid/bcfishobs/internal/adapter/ogr"
	"github.com/couchcryptid/bcfishobs/internal/domain"
	"github.com/couchcryptid/bcfishobs/internal/pipeline"
	"github.com/spf13/cobra"
)

func newDownloadCmd(a *app) *cobra.Command {
	var email, dbURL string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download observations and reference tables and load them to Postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email = orDefault(email, a.cfg.Email)
			dbURL = orDefault(dbURL, a.cfg.DBURL)
			if email == "" {
				return errNoEmail
			}
			if dbURL == "" {
				return errNoDBURL
			}
			conn, err := domain.GDALConnString(dbURL)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			catalogue := bcdata.NewClient(bcdata.Options{
				CatalogueURL: a.cfg.CatalogueURL,
				OrderURL:     a.cfg.OrderURL,
				DownloadURL:  a.cfg.OrderDownloadURL,
				PollInterval: a.cfg.PollInterval,
				PollTimeout:  a.cfg.PollTimeout,
				Timeout:      a.cfg.HTTPTimeout,
			}, a.logger)
			fetcher := fetch.NewClient(a.cfg.HTTPTimeout, a.cfg.DownloadAttempts, a.logger)
			loader := ogr.NewLoader(a.cfg.Ogr2ogrPath, conn, ogr.ExecRunner{}, a.logger)

			pub, closePub := a.publisher()
			defer closePub()

			d := pipeline.NewDownloader(catalogue, fetcher, loader, pub, a.cfg.WorkDir, cmd.OutOrStdout(), a.logger, a.metrics)
			stop := a.serveStatus(d.Progress())
			defer stop()

			summary, err := d.Run(cmd.Context(), email)
			return a.finish("download", summary, err)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address for the BC Data Catalogue order (default $BCDATA_EMAIL)")
	cmd.Flags().StringVar(&dbURL, "db_url", "", "target database url (default $FWA_DB)")
	return cmd
}
