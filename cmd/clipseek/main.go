// Package main is the Clipseek CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clipseek/clipseek/internal/config"
	"github.com/clipseek/clipseek/internal/corpus"
	"github.com/clipseek/clipseek/internal/csvio"
	"github.com/clipseek/clipseek/internal/embedding"
	"github.com/clipseek/clipseek/internal/ingest"
	"github.com/clipseek/clipseek/internal/models"
	"github.com/clipseek/clipseek/internal/persist"
	"github.com/clipseek/clipseek/internal/search"
	"github.com/clipseek/clipseek/internal/server"
	"github.com/clipseek/clipseek/internal/summarize"
	"github.com/clipseek/clipseek/internal/watcher"
	"github.com/clipseek/clipseek/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/clipseek/config.yaml"

// loadConfig loads config from path. When path is the default, a
// config.yaml in the current directory wins so that running from the
// project dir uses the project's config.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				return config.Load(fallback)
			}
		}
	}
	return config.Load(path)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "summarize":
		runSummarize()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("clipseek version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	store, err := persist.NewManager(
		cfg.Storage.VectorIndexPath,
		cfg.Storage.MetadataDBPath,
		cfg.Embedding.Dimensions,
		persist.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("failed to open persistence", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	c := corpus.New(cfg.Embedding.Dimensions, corpus.WithLogger(logger))
	loadCorpus(c, store, logger)

	embedder := embedding.NewHTTPEmbedder(
		cfg.Embedding.ServiceURL,
		cfg.Embedding.Dimensions,
		time.Duration(cfg.Embedding.TimeoutSeconds)*time.Second,
	)
	pipeline := ingest.NewPipeline(c, embedder, store,
		ingest.WithLogger(logger),
		ingest.WithBatchSize(cfg.Embedding.BatchSize),
	)
	svc := search.NewService(c, embedder, search.WithLogger(logger))
	summarizer := summarize.NewOllamaClient(
		cfg.Summarize.OllamaURL,
		cfg.Summarize.Model,
		time.Duration(cfg.Summarize.TimeoutSeconds)*time.Second,
	)

	if cfg.Ingest.DropDirectory != "" {
		w := watcher.NewWatcher(cfg.Ingest.DropDirectory, cfg.Ingest.Extensions, func(path string) {
			rows, err := csvio.ReadFile(path)
			if err != nil {
				logger.Error("failed to read batch file", zap.String("path", path), zap.Error(err))
				return
			}
			summary, err := pipeline.Ingest(context.Background(), rows)
			if err != nil && !errors.Is(err, models.ErrPersistenceFailed) {
				logger.Error("batch ingest failed", zap.String("path", path), zap.Error(err))
				return
			}
			if err != nil {
				logger.Warn("batch ingested but not persisted", zap.String("path", path), zap.Error(err))
			}
			logger.Info("batch file ingested",
				zap.String("path", path),
				zap.Int("original_rows", summary.OriginalRows),
				zap.Int("vectors_stored", summary.VectorsStored))
		}, watcher.WithLogger(logger))
		if err := w.Start(); err != nil {
			logger.Fatal("failed to watch drop directory", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(svc, pipeline, c, store, summarizer, &cfg.Server, logger)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Fatal("server failed", zap.Error(err))
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// loadCorpus restores the persisted generation. Corrupt or
// wrong-dimension state is never served: the process falls back to an
// empty corpus and logs why.
func loadCorpus(c *corpus.Corpus, store *persist.Manager, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	gen, err := store.Load(ctx)
	if err != nil {
		if errors.Is(err, models.ErrCorruptState) || errors.Is(err, models.ErrVersionMismatch) {
			logger.Error("persisted corpus rejected, starting empty", zap.Error(err))
			return
		}
		logger.Error("failed to load persisted corpus, starting empty", zap.Error(err))
		return
	}
	if gen == nil {
		logger.Info("no persisted corpus, starting empty")
		return
	}
	if err := c.Install(gen); err != nil {
		logger.Error("persisted corpus rejected, starting empty", zap.Error(err))
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "server address")
	file := fs.String("file", "", "CSV batch file to ingest")
	_ = fs.Parse(os.Args[2:])
	if *file == "" {
		fmt.Println("Usage: clipseek ingest --file <batch.csv> [--addr <url>]")
		os.Exit(1)
	}

	f, err := os.Open(*file)
	if err != nil {
		fmt.Printf("Failed to open %s: %v\n", *file, err)
		os.Exit(1)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(*file))
	if err == nil {
		_, err = io.Copy(part, f)
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		fmt.Printf("Failed to build upload: %v\n", err)
		os.Exit(1)
	}

	resp, err := http.Post(*addr+"/api/v1/ingest/csv", mw.FormDataContentType(), &buf)
	if err != nil {
		fmt.Printf("Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "server address")
	topK := fs.Int("k", 5, "number of results")
	_ = fs.Parse(os.Args[2:])
	query := strings.Join(fs.Args(), " ")
	if query == "" {
		fmt.Println("Usage: clipseek search [--k N] <query>")
		os.Exit(1)
	}

	resp, err := postJSON(*addr+"/api/v1/search", models.SearchQuery{Query: query, TopK: *topK})
	if err != nil {
		fmt.Printf("Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printResponse(resp)
		os.Exit(1)
	}

	var out models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Printf("Failed to decode response: %v\n", err)
		os.Exit(1)
	}
	if len(out.Results) == 0 {
		fmt.Println("No results.")
		return
	}
	for i, r := range out.Results {
		fmt.Printf("%d. %s (%.4f)\n", i+1, r.Title, r.Similarity)
		fmt.Printf("   key: %s  channel: %s  views: %d\n", r.RecordKey, r.SourceChannel, r.PopularityCount)
		if r.BodyText != "" {
			fmt.Printf("   %s\n", utils.Truncate(r.BodyText, 120))
		}
	}
}

func runSummarize() {
	fs := flag.NewFlagSet("summarize", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "server address")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() != 1 {
		fmt.Println("Usage: clipseek summarize <record_key>")
		os.Exit(1)
	}

	resp, err := postJSON(*addr+"/api/v1/summarize", map[string]string{"record_key": fs.Arg(0)})
	if err != nil {
		fmt.Printf("Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "server address")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*addr + "/api/v1/status")
	if err != nil {
		fmt.Printf("Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func postJSON(url string, body interface{}) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return http.Post(url, "application/json", bytes.NewReader(data))
}

func printResponse(resp *http.Response) {
	var pretty bytes.Buffer
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Failed to read response: %v\n", err)
		return
	}
	if json.Indent(&pretty, body, "", "  ") == nil {
		fmt.Println(pretty.String())
		return
	}
	fmt.Println(string(body))
}

func printUsage() {
	fmt.Println(`clipseek - semantic search over video transcripts

Usage:
  clipseek server [--config <path>] [--debug]   start the API server
  clipseek ingest --file <batch.csv>            ingest a CSV batch
  clipseek search [--k N] <query>               run a similarity search
  clipseek summarize <record_key>               summarize a record's transcript
  clipseek status                               show server status
  clipseek version                              print version`)
}
