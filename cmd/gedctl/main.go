// Command gedctl is the operator CLI: key generation, schema migration,
// integrity sweeps, orphan collection, key rotation and read-only inspection.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kiabasekou/ged-project/internal/app"
	"github.com/kiabasekou/ged-project/internal/config"
	"github.com/kiabasekou/ged-project/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(&cli{open: openApp}).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "gedctl: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the flags shared by every subcommand.
type cli struct {
	actor  string
	output string
	open   func(ctx context.Context, cfg *config.Config) (*app.App, error)
}

func newRootCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gedctl",
		Short: "Operate the versioned document store",
		Long: `gedctl runs maintenance tasks against the store configured through the GED_
environment variables (a .env file in the working directory is loaded first).`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&c.actor, "actor", "gedctl", "Actor recorded in audit events")
	cmd.PersistentFlags().StringVarP(&c.output, "output", "o", "yaml", "Output format: yaml or json")
	cmd.AddCommand(
		newKeygenCmd(),
		newMigrateCmd(c),
		newVerifyCmd(c),
		newGCCmd(c),
		newRekeyCmd(c),
		newHistoryCmd(c),
		newTreeCmd(c),
	)
	return cmd
}

func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return config.Load()
}

func openApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	log := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: true, Output: os.Stderr})
	return app.New(ctx, cfg, log, app.Options{})
}

// withApp loads configuration, assembles the application and closes it once
// fn returns.
func (c *cli) withApp(cmd *cobra.Command, fn func(a *app.App) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := c.open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	return fn(a)
}

func (c *cli) print(w io.Writer, v any) error {
	switch c.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", c.output)
}
