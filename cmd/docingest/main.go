// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.



package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/poiesic/docingest"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/extract"
	"github.com/poiesic/docingest/storage"
	slogmulti "github.com/samber/slog-multi"
	"github.com/urfave/cli/v2"
)

const logCleanupKey = "log-cleanup"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "docingest",
		Usage: "Ingest documents into searchable vector collections",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"DOCINGEST_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"DOCINGEST_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Also write JSON logs to this file",
				EnvVars: []string{"DOCINGEST_LOG_FILE"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Directory for local record and index stores",
				EnvVars: []string{"DOCINGEST_DATA_DIR"},
			},
			&cli.StringFlag{
				Name:    "embedding-host",
				Usage:   "Embedding service host URL",
				EnvVars: []string{"DOCINGEST_EMBEDDING_HOST"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				EnvVars: []string{"DOCINGEST_EMBEDDING_MODEL"},
			},
			&cli.StringFlag{
				Name:    "ocr-endpoint",
				Usage:   "OCR service URL used for images",
				EnvVars: []string{"DOCINGEST_OCR_ENDPOINT"},
			},
		},
		Before: setupLogger,
		After:  closeLogger,
		Commands: []*cli.Command{
			{
				Name:   "formats",
				Usage:  "List supported file extensions",
				Action: formatsCommand,
			},
			{
				Name:      "ingest",
				Usage:     "Ingest files into a collection and wait for the results",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "collection",
						Usage:    "Target collection",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of files processed at once (overrides config)",
					},
				},
			},
			{
				Name:      "status",
				Usage:     "Show the latest ingestion record of each file",
				ArgsUsage: "FILE...",
				Action:    statusCommand,
			},
			{
				Name:   "jobs",
				Usage:  "List ingestion jobs in a status",
				Action: jobsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Job status (pending, running, succeeded, failed)",
						Value: "failed",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to list (0 for all)",
						Value: 50,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Find chunks similar to a query",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "collection",
						Usage:    "Collection to search",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of results",
						Value: 5,
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Recompute every vector of a collection with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "collection",
						Usage:    "Collection to reembed",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents embedded per call (overrides config)",
					},
				},
			},
		},
	}
}

// loadConfig reads --config when given and applies global flag overrides.
func loadConfig(c *cli.Context) (*docingest.Config, error) {
	cfg := docingest.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := docingest.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("embedding-host") {
		cfg.AI.EmbeddingHost = c.String("embedding-host")
	}
	if c.IsSet("embedding-model") {
		cfg.AI.EmbeddingModel = c.String("embedding-model")
	}
	if c.IsSet("ocr-endpoint") {
		cfg.AI.OCREndpoint = c.String("ocr-endpoint")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("batch-size") {
		cfg.Reembed.BatchSize = c.Int("batch-size")
	}
	return cfg, nil
}

func openEngine(c *cli.Context) (*docingest.Engine, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	engine, err := docingest.NewEngine(c.Context, cfg, docingest.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	return engine, nil
}

func formatsCommand(c *cli.Context) error {
	categories := extract.SupportedExtensions()
	keys := make([]string, 0, len(categories))
	for key := range categories {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	for _, key := range keys {
		exts := make([]string, 0, len(categories[key].Extensions))
		for ext := range categories[key].Extensions {
			exts = append(exts, ext)
		}
		slices.Sort(exts)
		fmt.Fprintf(w, "%s\t%s\n", categories[key].Name, strings.Join(exts, " "))
	}
	return w.Flush()
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file is required")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	collection := c.String("collection")
	ids := make(map[string]core.ID, c.NArg())
	var locations []string
	for _, arg := range c.Args().Slice() {
		location, err := filepath.Abs(arg)
		if err != nil {
			return err
		}
		id, err := engine.Submit(c.Context, location, collection)
		if err != nil && id == 0 {
			return fmt.Errorf("failed to submit %s: %w", arg, err)
		}
		ids[location] = id
		locations = append(locations, location)
	}
	engine.Wait()

	failed := 0
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	for _, location := range locations {
		job, err := engine.Record(c.Context, ids[location])
		if err != nil {
			return fmt.Errorf("failed to read record for %s: %w", location, err)
		}
		if job.Status != core.JobStatusSucceeded {
			failed++
		}
		writeJob(w, job)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(locations))
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file is required")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	for _, arg := range c.Args().Slice() {
		location, err := filepath.Abs(arg)
		if err != nil {
			return err
		}
		job, err := engine.Status(c.Context, location)
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Fprintf(w, "%s\tUNKNOWN\t\n", location)
			continue
		}
		if err != nil {
			return err
		}
		writeJob(w, job)
	}
	return w.Flush()
}

func jobsCommand(c *cli.Context) error {
	status, err := core.ParseJobStatus(c.String("status"))
	if err != nil {
		return err
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	jobs, err := engine.Jobs(c.Context, status, c.Int("limit"))
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	for _, job := range jobs {
		writeJob(w, job)
	}
	return w.Flush()
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("a query is required")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	results, err := engine.Search(c.Context, c.String("collection"), query, c.Int("top-k"))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(c.App.Writer, "No results")
		return nil
	}
	for i, result := range results {
		meta := result.Hit.Metadata
		fmt.Fprintf(c.App.Writer, "%d. [%.3f] %s (page %s, chunk %s)\n",
			i+1, result.Score, meta[core.MetaFileName], meta[core.MetaPage], meta[core.MetaChunkIndex])
		fmt.Fprintf(c.App.Writer, "   %s\n", preview(result.Hit.Content, 160))
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	cfg := engine.Config()
	fmt.Fprintf(c.App.ErrWriter, "Collection: %s\n", c.String("collection"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	if _, err := engine.Reembed(c.Context, c.String("collection"), c.App.ErrWriter); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func writeJob(w io.Writer, job *core.PipelineJob) {
	fmt.Fprintf(w, "%s\tv%d\t%s\t%s\n",
		job.FileLocation, job.FileVersion, job.Status, job.MessageOrEmpty())
}

func preview(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
	}
}

// newLogger writes text to stderr and, when file is non-nil, JSON to file.
func newLogger(stderr, file io.Writer, level slog.Level) *slog.Logger {
	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})
	if file == nil {
		return slog.New(stderrHandler)
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
}

func setupLogger(c *cli.Context) error {
	level, err := parseLevel(c.String("log-level"))
	if err != nil {
		return err
	}

	path := c.String("log-file")
	if path == "" {
		slog.SetDefault(newLogger(c.App.ErrWriter, nil, level))
		return nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[logCleanupKey] = file.Close
	slog.SetDefault(newLogger(c.App.ErrWriter, file, level))
	return nil
}

func closeLogger(c *cli.Context) error {
	cleanup, ok := c.App.Metadata[logCleanupKey].(func() error)
	if !ok {
		return nil
	}
	delete(c.App.Metadata, logCleanupKey)
	return cleanup()
}
