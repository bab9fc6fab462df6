package main

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/kiabasekou/ged-project/internal/app"
	"github.com/kiabasekou/ged-project/internal/cipher"
	"github.com/kiabasekou/ged-project/internal/folder"
	"github.com/kiabasekou/ged-project/internal/queue"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a new base64 encryption key for GED_ENCRYPTION_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cipher.GenerateKey()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
}

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the relational schema if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the application applies the schema of whichever
			// backend is configured.
			return c.withApp(cmd, func(a *app.App) error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%T)\n", a.Store)
				return err
			})
		},
	}
}

func newVerifyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <case-id>",
		Short: "Check the integrity of every stored version in a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				report, err := a.Documents.VerifyCase(cmd.Context(), c.actor, args[0])
				if err != nil {
					return err
				}
				if err := c.print(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if len(report.Failures) > 0 {
					return fmt.Errorf("%d of %d versions failed verification", len(report.Failures), report.Checked)
				}
				return nil
			})
		},
	}
}

func newGCCmd(c *cli) *cobra.Command {
	var (
		dryRun  bool
		enqueue bool
		grace   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove encrypted payloads no document version references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				if !cmd.Flags().Changed("grace") {
					grace = a.Config.GCGrace
				}
				if enqueue {
					client := asynq.NewClient(app.RedisOpt(a.Config))
					defer client.Close()
					payload := queue.CollectOrphansPayload{GracePeriod: grace, DryRun: dryRun}
					if err := queue.EnqueueCollectOrphans(cmd.Context(), client, payload); err != nil {
						return err
					}
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "sweep enqueued")
					return err
				}
				report, err := a.Collector.Run(cmd.Context(), grace, dryRun)
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List orphans without deleting them")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "Hand the sweep to the worker instead of running it here")
	cmd.Flags().DurationVar(&grace, "grace", 0, "Ignore payloads younger than this (default GED_GC_GRACE)")
	return cmd
}

func newRekeyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "rekey",
		Short: "Re-encrypt every payload under the primary key",
		Long: `rekey rewrites every payload under the primary key so that keys listed in
GED_PREVIOUS_ENCRYPTION_KEYS can be retired. Each payload is checked against its
recorded digest first; payloads that fail are reported and left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				report, err := a.Documents.Rekey(cmd.Context())
				if err != nil {
					return err
				}
				if err := c.print(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if len(report.Failed) > 0 {
					return fmt.Errorf("%d payloads could not be re-encrypted", len(report.Failed))
				}
				return nil
			})
		},
	}
}

func newHistoryCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "history <document-id>",
		Short: "Print every version of a document, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				chain, err := a.Documents.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), chain)
			})
		},
	}
}

func newTreeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tree <folder-id>",
		Short: "Render a folder subtree with current document counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				node, err := a.Folders.Tree(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return folder.RenderTree(cmd.OutOrStdout(), node)
			})
		},
	}
}
