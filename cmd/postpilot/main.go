// Command postpilot drives the content-generation pipeline from the
// terminal: start a run, review it, resume it, and inspect checkpoints.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/postpilot/postpilot/pkg/config"
	"github.com/postpilot/postpilot/pkg/image"
	"github.com/postpilot/postpilot/pkg/llm"
	"github.com/postpilot/postpilot/pkg/observability"
	"github.com/postpilot/postpilot/pkg/pipeline"
	"github.com/postpilot/postpilot/pkg/pipeline/checkpoint"
)

func main() {
	cmd := &cli.Command{
		Name:  "postpilot",
		Usage: "Generate multi-platform content with human review in the loop",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a yaml/json settings file",
				Sources: cli.EnvVars("POSTPILOT_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			newRunCommand(),
			newResumeCommand(),
			newShowCommand(),
			newListCommand(),
			newDeleteCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads settings and wires the engine plus its checkpoint store.
// The caller owns closing the store.
func setup(cmd *cli.Command) (*pipeline.Engine, *checkpoint.SQLiteStore, error) {
	settings, err := config.LoadSettings(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}

	logger := newLogger(settings.LogLevel)
	slog.SetDefault(logger)

	store, err := checkpoint.NewSQLiteStore(settings.CheckpointPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	backend := llm.NewHTTPBackend(settings.APIBaseURL, settings.APIKey)
	router, err := llm.NewRouter(backend, settings.ModelChain(),
		llm.WithTemperature(settings.Temperature),
		llm.WithMaxTokens(settings.MaxTokens),
		llm.WithRouterLogger(logger),
	)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	images := image.NewHTTPGenerator(settings.APIBaseURL, settings.APIKey,
		settings.ImageModel, image.WithSize(settings.ImageSize))

	engine, err := pipeline.New(router, images, store,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(observability.NewMetricsRecorder()),
	)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return engine, store, nil
}

// openStore opens just the checkpoint store, for inspection commands.
func openStore(cmd *cli.Command) (*checkpoint.SQLiteStore, error) {
	settings, err := config.LoadSettings(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	return checkpoint.NewSQLiteStore(settings.CheckpointPath)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func newRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Start a new generation run for a topic",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "topic",
				Aliases:  []string{"t"},
				Usage:    "Topic to generate content for",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			engine, store, err := setup(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			state, status, err := engine.Execute(ctx, pipeline.NewState(cmd.String("topic"), ""))
			if err != nil {
				return err
			}

			fmt.Printf("run %s: %s\n", state.RunID, status)
			if status == pipeline.RunSuspended {
				fmt.Printf("review the content, then: postpilot resume %s --approve (or --reject --feedback '...')\n", state.RunID)
			}
			return printState(state)
		},
	}
}

func newResumeCommand() *cli.Command {
	return &cli.Command{
		Name:      "resume",
		Usage:     "Resume a suspended run with a review decision",
		ArgsUsage: "<run-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "approve",
				Usage: "Approve the generated content",
			},
			&cli.BoolFlag{
				Name:  "reject",
				Usage: "Reject the generated content and regenerate",
			},
			&cli.StringFlag{
				Name:  "feedback",
				Usage: "Reviewer feedback; platform names select what regenerates",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			runID := cmd.Args().First()
			if runID == "" {
				return fmt.Errorf("run ID required")
			}
			if cmd.Bool("approve") && cmd.Bool("reject") {
				return fmt.Errorf("--approve and --reject are mutually exclusive")
			}

			review := pipeline.ReviewPatch{Feedback: cmd.String("feedback")}
			switch {
			case cmd.Bool("approve"):
				review.Decision = pipeline.StatusApproved
			case cmd.Bool("reject"):
				review.Decision = pipeline.StatusRejected
			}

			engine, store, err := setup(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			state, status, err := engine.Resume(ctx, runID, review)
			if err != nil {
				return err
			}

			fmt.Printf("run %s: %s\n", state.RunID, status)
			return printState(state)
		},
	}
}

func newShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print the checkpointed state of a run",
		ArgsUsage: "<run-id>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			runID := cmd.Args().First()
			if runID == "" {
				return fmt.Errorf("run ID required")
			}

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			data, err := store.Get(runID)
			if err != nil {
				return err
			}
			cp, err := checkpoint.Unmarshal(data)
			if err != nil {
				return err
			}

			fmt.Printf("run %s: status=%s stage=%s pass=%d sequence=%d\n",
				cp.RunID, cp.Status, cp.Stage, cp.Pass, cp.Sequence)

			var state pipeline.WorkflowState
			if err := json.Unmarshal(cp.State, &state); err != nil {
				return err
			}
			return printState(state)
		},
	}
}

func newListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List checkpointed runs",
		Action: func(_ context.Context, cmd *cli.Command) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			infos, err := store.List()
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("no runs")
				return nil
			}
			for _, info := range infos {
				fmt.Printf("%s\t%s\t%d bytes\n",
					info.RunID, info.UpdatedAt.Format("2006-01-02 15:04:05"), info.Size)
			}
			return nil
		},
	}
}

func newDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a run's checkpoint",
		ArgsUsage: "<run-id>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			runID := cmd.Args().First()
			if runID == "" {
				return fmt.Errorf("run ID required")
			}

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(runID); err != nil {
				return err
			}
			fmt.Printf("deleted run %s\n", runID)
			return nil
		},
	}
}

func printState(state pipeline.WorkflowState) error {
	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
