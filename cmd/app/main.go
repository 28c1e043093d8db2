package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/bibtidy/internal"
	pkgconfig "github.com/starford/bibtidy/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

func lint(_ context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("lint: at least one FILE is required")
	}
	n, err := internal.LintFiles(os.Stdout, paths...)
	if err != nil {
		return err
	}
	slog.Info("lint finished", slog.Int("files", len(paths)), slog.Int("warnings", n))
	return nil
}

func format(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("format: exactly one FILE is required")
	}
	out := os.Stdout
	if p := cmd.String("output"); p != "" && p != "-" {
		f, err := os.Create(p)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		defer f.Close()
		out = f
	}
	return internal.FormatFile(out, cmd.Args().First())
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cmd := &cli.Command{
		Name:   "bibtidy",
		Usage:  "BibTeX library manager: parse, lint, normalize and export .bib files",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the library watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the library over MCP on stdio",
				Action: mcp,
			},
			{
				Name:      "lint",
				Usage:     "Print lint warnings for BibTeX files",
				ArgsUsage: "FILE...",
				Action:    lint,
			},
			{
				Name:      "format",
				Usage:     "Write a BibTeX file in canonical form",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (stdout when empty or -)",
					},
				},
				Action: format,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
