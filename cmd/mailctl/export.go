package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/mailcraft/internal/app"
	"github.com/ignite/mailcraft/internal/queue"
)

var errNoQueue = errors.New("mailctl does not enqueue jobs")

// noQueue satisfies the service graph's enqueuer for read-only commands.
type noQueue struct{}

func (noQueue) Enqueue(context.Context, string, any) (*queue.Job, error) { return nil, errNoQueue }

func exportCmd(load loadFunc) *cobra.Command {
	var (
		brandID   string
		listID    string
		segmentID string
		output    string
		toS3      bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a list or segment as CSV",
		Long: `Export the contacts of a list, or the members of a segment, as CSV.

Examples:
  mailctl export --brand B --list L -o newsletter.csv
  mailctl export --brand B --segment S --s3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (listID == "") == (segmentID == "") {
				return errors.New("exactly one of --list or --segment is required")
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			repos, db, err := app.OpenRepos(ctx, cfg.Database)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}
			svc := app.NewServices(cfg, repos, noQueue{})

			var buf bytes.Buffer
			var rows int
			name := "list-" + listID
			if listID != "" {
				rows, err = svc.Contacts.Export(ctx, brandID, listID, &buf)
			} else {
				name = "segment-" + segmentID
				rows, err = svc.Segments.Export(ctx, brandID, segmentID, &buf)
			}
			if err != nil {
				return err
			}

			if toS3 {
				store, err := app.ExportBucket(ctx, cfg.Export)
				if err != nil {
					return err
				}
				if store == nil {
					return errors.New("--s3 needs export.s3_bucket")
				}
				uri, err := store.Put(ctx, store.ExportKey(brandID, name), &buf, "text/csv")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d row(s) to %s\n", rows, uri)
				return nil
			}

			var out io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if _, err := buf.WriteTo(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d row(s)\n", rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&brandID, "brand", "", "brand ID")
	cmd.Flags().StringVar(&listID, "list", "", "list ID")
	cmd.Flags().StringVar(&segmentID, "segment", "", "segment ID")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file")
	cmd.Flags().BoolVar(&toS3, "s3", false, "upload to the export bucket instead of writing locally")
	_ = cmd.MarkFlagRequired("brand")
	return cmd
}
