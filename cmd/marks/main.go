package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/MrSnakeDoc/marks/internal/app"
	"github.com/MrSnakeDoc/marks/internal/config"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cliApp := &cli.App{
		Name:    "marks",
		Usage:   "Keep a live, per-user bookmark list in sync with its store",
		Version: version.Version,
		Description: `Configuration is read from the environment and an optional .env file.

Examples:
  marks serve
  marks import --token "$JWT" bookmarks.yaml
  marks migrate`,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the synchronizer (default)",
				Action: serve,
			},
			{
				Name:      "import",
				Usage:     "Import a Homepage bookmarks.yaml for the signed-in user",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "token",
						Usage:   "session token (JWT), defaults to MARKS_SESSION_TOKEN",
						EnvVars: []string{"MARKS_IMPORT_TOKEN"},
					},
				},
				Action: importFile,
			},
			{
				Name:   "migrate",
				Usage:  "Apply the schema of the configured store",
				Action: migrate,
			},
			{
				Name:  "version",
				Usage: "Print build information",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, version.String())
					return nil
				},
			},
		},
		Action: serve,
	}

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		log.Fatalf("❌ marks failed: %v", err)
	}
}

func setup() (*config.Config, logger.Logger) {
	cfg := config.Load()
	return cfg, logger.New(cfg.LogLevel, cfg.PrettyLog)
}

func serve(c *cli.Context) error {
	cfg, loggerClient := setup()
	defer func() { _ = loggerClient.Sync() }()

	a, err := app.New(c.Context, cfg, loggerClient)
	if err != nil {
		return err
	}
	return a.Run(c.Context)
}

func importFile(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: marks import [--token JWT] <file>", 2)
	}

	cfg, loggerClient := setup()
	defer func() { _ = loggerClient.Sync() }()

	res, err := app.Import(c.Context, cfg, loggerClient, c.Args().First(), c.String("token"), c.App.ErrWriter)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "✅ Imported %d bookmarks (%d already present)\n", res.Imported, res.Skipped)
	return nil
}

func migrate(c *cli.Context) error {
	cfg, loggerClient := setup()
	defer func() { _ = loggerClient.Sync() }()

	if err := app.Migrate(c.Context, cfg, loggerClient); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "✅ %s schema is up to date\n", cfg.Store)
	return nil
}
