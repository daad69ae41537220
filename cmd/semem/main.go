// Command semem is the CLI surface over the Semem engine: ingest,
// query, clear-graph, verify, and train-vsom subcommands.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/danja/semem"
	"github.com/danja/semem/vsom"
)

const (
	exitOK       = 0
	exitError    = 1
	exitUsage    = 2
	exitSignaled = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return exitUsage
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub := args[0]
	fs := flag.NewFlagSet(sub, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file (JSON or YAML)")

	var code int
	switch sub {
	case "ingest":
		title := fs.String("title", "", "Document title (defaults to file name)")
		lazy := fs.Bool("lazy", false, "Store lazily instead of eager ingestion")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: semem ingest [-config path] [-title name] [-lazy] <file>")
			return exitUsage
		}
		code = runIngest(ctx, *configPath, fs.Arg(0), *title, *lazy)

	case "query":
		sessionID := fs.String("session", "", "Session ID for follow-up ZPT state")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: semem query [-config path] [-session id] <question>")
			return exitUsage
		}
		code = runQuery(ctx, *configPath, *sessionID, fs.Arg(0))

	case "clear-graph":
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		code = runClearGraph(ctx, *configPath)

	case "verify":
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		code = runVerify(ctx, *configPath)

	case "train-vsom":
		gridSize := fs.Int("grid-size", 0, "SOM grid edge length (0 = default)")
		epochs := fs.Int("epochs", 0, "Training epochs (0 = default)")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		code = runTrainVSOM(ctx, *configPath, *gridSize, *epochs)

	case "-h", "-help", "--help", "help":
		usage()
		return exitOK

	default:
		fmt.Fprintf(os.Stderr, "semem: unknown subcommand %q\n", sub)
		usage()
		return exitUsage
	}

	if ctx.Err() != nil {
		return exitSignaled
	}
	return code
}

func usage() {
	fmt.Fprintln(os.Stderr, `semem: persistent semantic memory for LLM agents

Usage:
  semem ingest [-config path] [-title name] [-lazy] <file>
  semem query [-config path] [-session id] <question>
  semem clear-graph [-config path]
  semem verify [-config path]
  semem train-vsom [-config path] [-grid-size N] [-epochs N]`)
}

func loadEngine(configPath string) (*semem.CoreContext, error) {
	cfg := semem.DefaultConfig()
	if configPath != "" {
		loaded, err := semem.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	return semem.New(cfg, slog.Default())
}

func runIngest(ctx context.Context, configPath, path, title string, lazy bool) int {
	engine, err := loadEngine(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "semem: %v\n", err)
		return exitError
	}
	defer engine.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "semem: reading %s: %v\n", path, err)
		return exitError
	}
	if title == "" {
		title = filepath.Base(path)
	}

	resp, err := engine.Tell(ctx, title, string(data), lazy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "semem: ingest failed: %v\n", err)
		return exitError
	}
	if lazy {
		fmt.Printf("stored lazily: id=%v\n", resp.Data["id"])
	} else {
		fmt.Printf("ingested: uri=%v chunks=%v entities=%v\n", resp.Data["documentUri"], resp.Data["chunkCount"], resp.Data["entityCount"])
	}
	return exitOK
}

func runQuery(ctx context.Context, configPath, sessionID, question string) int {
	engine, err := loadEngine(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "semem: %v\n", err)
		return exitError
	}
	defer engine.Close()

	resp, err := engine.Ask(ctx, sessionID, question)
	if err != nil {
		fmt.Fprintf(os.Stderr, "semem: query failed: %v\n", err)
		return exitError
	}
	fmt.Println(resp.Data["answer"])
	if degraded, _ := resp.Data["degraded"].(bool); degraded {
		fmt.Fprintln(os.Stderr, "semem: answer is degraded (context found but generation failed, or no chat provider configured)")
	}
	return exitOK
}

func runClearGraph(ctx context.Context, configPath string) int {
	engine, err := loadEngine(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "semem: %v\n", err)
		return exitError
	}
	defer engine.Close()

	if err := engine.ClearGraph(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "semem: clear-graph failed: %v\n", err)
		return exitError
	}
	fmt.Println("graph cleared")
	return exitOK
}

func runVerify(ctx context.Context, configPath string) int {
	engine, err := loadEngine(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "semem: %v\n", err)
		return exitError
	}
	defer engine.Close()

	if err := engine.VerifyGraph(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "semem: verify failed: %v\n", err)
		return exitError
	}
	fmt.Println("store reachable")
	return exitOK
}

func runTrainVSOM(ctx context.Context, configPath string, gridSize, epochs int) int {
	engine, err := loadEngine(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "semem: %v\n", err)
		return exitError
	}
	defer engine.Close()

	cfg := vsom.DefaultConfig()
	if gridSize > 0 {
		cfg.GridSize = gridSize
	}
	if epochs > 0 {
		cfg.Epochs = epochs
	}

	resp, err := engine.TrainVSOM(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "semem: train-vsom failed: %v\n", err)
		return exitError
	}
	fmt.Printf("trained VSOM: %v\n", resp.Data)
	return exitOK
}
