// pageshotctl runs capture-and-extract batches from the command line,
// without the HTTP server.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pageshot-ai/pageshot/capture"
	"github.com/pageshot-ai/pageshot/config"
	"github.com/pageshot-ai/pageshot/engine"
	"github.com/pageshot-ai/pageshot/models"
	"github.com/pageshot-ai/pageshot/pipeline"
	"github.com/pageshot-ai/pageshot/prompt"
	"github.com/pageshot-ai/pageshot/record"
	"github.com/pageshot-ai/pageshot/storage"
	"github.com/pageshot-ai/pageshot/vlm"
)

var (
	flagKind        string
	flagConcurrency int
	flagTimeout     int
	flagFullPage    bool
	flagURLsFile    string
	flagOutput      string
	flagFormat      string
	flagVerbose     bool
)

func main() {
	root := &cobra.Command{
		Use:   "pageshotctl [urls...]",
		Short: "Capture web pages and extract structured records from their screenshots",
		Long: `pageshotctl captures a screenshot of every given URL with a headless
browser and extracts a structured record from it with a vision model.
URLs come from the arguments, from --urls-file, or from stdin.`,
		RunE: runBatch,
	}

	root.Flags().StringVarP(&flagKind, "kind", "k", "", "record kind (product, article, real_estate)")
	root.Flags().IntVarP(&flagConcurrency, "concurrency", "c", 0, "parallel workers (0 = configured default)")
	root.Flags().IntVarP(&flagTimeout, "timeout", "t", 0, "per-page capture timeout in seconds")
	root.Flags().BoolVar(&flagFullPage, "full-page", true, "capture the whole page, not just the viewport")
	root.Flags().StringVarP(&flagURLsFile, "urls-file", "f", "", "file with one URL per line ('-' for stdin)")
	root.Flags().StringVarP(&flagOutput, "output", "o", "", "write results to this file instead of stdout")
	root.Flags().StringVar(&flagFormat, "format", "json", "output format: json or csv")
	root.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log debug details")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	urls, err := collectURLs(args)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs given: pass them as arguments or via --urls-file")
	}

	cfg := config.Load()
	initLogger(cfg.Log, flagVerbose)

	if flagKind == "" {
		flagKind = cfg.VLM.DefaultKind
	}

	engines, err := engine.Build(cfg.Capture.Engines, cfg.Browser)
	if err != nil {
		return err
	}
	defer func() {
		for _, e := range engines {
			e.Close()
		}
	}()

	memory := engine.NewMemory(cfg.Capture.EngineMemoryTTL)
	defer memory.Stop()

	client, err := vlm.New(cfg.VLM, nil)
	if err != nil {
		return err
	}

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	stage := capture.NewStage(engines, memory, cfg.Capture)
	prompts := prompt.NewRegistry(cfg.VLM.DefaultKind)
	validator := record.NewValidator()
	extractor := pipeline.NewExtractor(client, prompts, cfg.VLM.Timeout)
	p := pipeline.New(stage, extractor, validator, store, cfg.Capture.PipelineRetry)
	orchestrator := pipeline.NewOrchestrator(p, cfg.Batch.Concurrency)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ov := capture.Overrides{FullPage: &flagFullPage}
	if flagTimeout > 0 {
		ov.Timeout = time.Duration(flagTimeout) * time.Second
	}

	progress := func(completed, total int, item *models.ItemResult) {
		mark := "ok"
		if !item.Success {
			mark = string(item.Failure.Kind)
		}
		fmt.Fprintf(os.Stderr, "[%d/%d] %s  %s  (%s)\n",
			completed, total, mark, item.URL, item.Duration.Round(time.Millisecond))
	}

	targets := pipeline.MakeTargets(urls, flagKind)
	result, err := orchestrator.Run(ctx, targets, orchestrator.DefaultConcurrency(flagConcurrency), ov, progress)
	if err != nil {
		return err
	}

	out := os.Stdout
	if flagOutput != "" {
		f, err := os.Create(flagOutput)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch flagFormat {
	case "csv":
		err = storage.ExportCSV(out, result, flagKind, validator)
	case "json":
		err = storage.ExportJSON(out, result)
	default:
		return fmt.Errorf("unknown format %q: want json or csv", flagFormat)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "done: %d succeeded, %d failed in %s\n",
		result.Succeeded, result.Failed, result.Duration.Round(time.Millisecond))
	if result.Succeeded == 0 {
		return fmt.Errorf("every page failed")
	}
	return nil
}

// collectURLs merges positional arguments with --urls-file lines.
func collectURLs(args []string) ([]string, error) {
	urls := append([]string(nil), args...)
	if flagURLsFile == "" {
		return urls, nil
	}

	var in *os.File
	if flagURLsFile == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(flagURLsFile)
		if err != nil {
			return nil, fmt.Errorf("open urls file: %w", err)
		}
		defer f.Close()
		in = f
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

func initLogger(cfg config.LogConfig, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
