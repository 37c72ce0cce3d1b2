package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/U201311/clip-image-search-v2/internal/app"
	"github.com/U201311/clip-image-search-v2/internal/config"
	"github.com/U201311/clip-image-search-v2/internal/domain/ingest"
	logpkg "github.com/U201311/clip-image-search-v2/internal/logger"
	"github.com/U201311/clip-image-search-v2/internal/metrics"
)

var errItemsFailed = errors.New("some items failed")

func main() {
	cmd := &cli.Command{
		Name:  "clipingest",
		Usage: "Offline ingestion and scope management for clip image search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Config environment (config/<env>.yaml)",
				Value:   "local",
				Sources: cli.EnvVars("ENV"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "dir",
				Usage:     "Ingest every image below a directory",
				ArgsUsage: "<root>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "scope", Usage: "Scope id written to every record"},
					&cli.BoolFlag{Name: "copy", Usage: "Copy files into the content store (enables dedup)"},
				},
				Action: runDir,
			},
			{
				Name:      "workspace",
				Usage:     "Ingest the files registered in a workspace",
				ArgsUsage: "<workspace_id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "copy", Usage: "Copy files into the content store", Value: true},
				},
				Action: runWorkspace,
			},
			{
				Name:      "register-workspace",
				Usage:     "Register workspace files as <file_id>=<path> pairs",
				ArgsUsage: "<workspace_id> <file_id>=<path>...",
				Action:    runRegisterWorkspace,
			},
			{
				Name:      "register-dataset",
				Usage:     "Register a dataset and the scope ids it contains",
				ArgsUsage: "<dataset_id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Display name"},
					&cli.StringSliceFlag{Name: "member", Usage: "Member scope id (repeatable)"},
				},
				Action: runRegisterDataset,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err.Error())
	}
}

// withApp loads config, wires services and runs fn.
func withApp(ctx context.Context, cmd *cli.Command, fn func(a *app.App, logger *zap.Logger) error) error {
	env := cmd.String("env")
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a, logger)
}

func runDir(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: clipingest dir <root>")
	}
	root := cmd.Args().First()
	opts := ingest.Options{ScopeID: cmd.String("scope"), CopyIntoStore: cmd.Bool("copy")}

	return withApp(ctx, cmd, func(a *app.App, logger *zap.Logger) error {
		logger.Info("Ingesting directory", zap.String("root", root), zap.Bool("copy", opts.CopyIntoStore))
		outcomes, err := a.Ingest.IngestDir(ctx, root, opts)
		return report(os.Stdout, outcomes, err)
	})
}

func runWorkspace(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: clipingest workspace <workspace_id>")
	}
	workspaceID := cmd.Args().First()
	opts := ingest.Options{CopyIntoStore: cmd.Bool("copy")}

	return withApp(ctx, cmd, func(a *app.App, logger *zap.Logger) error {
		logger.Info("Ingesting workspace", zap.String("workspace_id", workspaceID))
		outcomes, err := a.Ingest.IngestWorkspace(ctx, workspaceID, opts)
		return report(os.Stdout, outcomes, err)
	})
}

func runRegisterWorkspace(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) < 2 {
		return fmt.Errorf("usage: clipingest register-workspace <workspace_id> <file_id>=<path>...")
	}
	files, err := parseFilePairs(args[1:])
	if err != nil {
		return err
	}

	return withApp(ctx, cmd, func(a *app.App, logger *zap.Logger) error {
		if err := a.Scopes.RegisterWorkspaceFiles(ctx, args[0], files); err != nil {
			return fmt.Errorf("register workspace %s: %w", args[0], err)
		}
		logger.Info("Workspace registered", zap.String("workspace_id", args[0]), zap.Int("files", len(files)))
		return nil
	})
}

func runRegisterDataset(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: clipingest register-dataset <dataset_id> --member <scope_id>...")
	}
	datasetID := cmd.Args().First()
	members := cmd.StringSlice("member")

	return withApp(ctx, cmd, func(a *app.App, logger *zap.Logger) error {
		if err := a.Scopes.RegisterDataset(ctx, datasetID, cmd.String("name"), members...); err != nil {
			return fmt.Errorf("register dataset %s: %w", datasetID, err)
		}
		logger.Info("Dataset registered", zap.String("dataset_id", datasetID), zap.Int("members", len(members)))
		return nil
	})
}

// parseFilePairs parses <file_id>=<path> arguments.
func parseFilePairs(args []string) (map[string]string, error) {
	files := make(map[string]string, len(args))
	for _, arg := range args {
		id, path, ok := strings.Cut(arg, "=")
		if !ok || id == "" || path == "" {
			return nil, fmt.Errorf("invalid file argument %q: want <file_id>=<path>", arg)
		}
		if _, dup := files[id]; dup {
			return nil, fmt.Errorf("duplicate file id %q", id)
		}
		files[id] = path
	}
	return files, nil
}

// report prints one line per outcome and a summary. It returns runErr, or
// errItemsFailed when any item failed.
func report(w io.Writer, outcomes []ingest.Outcome, runErr error) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	counts := make(map[ingest.Status]int, 3)
	for _, o := range outcomes {
		counts[o.Status()]++
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Status(), o.ID(), o.StoreID(), o.Reason())
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(w, "inserted=%d skipped=%d failed=%d\n",
		counts[ingest.StatusInserted], counts[ingest.StatusSkipped], counts[ingest.StatusFailed])

	if runErr != nil {
		return runErr
	}
	if counts[ingest.StatusFailed] > 0 {
		return errItemsFailed
	}
	return nil
}
