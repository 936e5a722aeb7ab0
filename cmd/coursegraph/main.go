// Package main is the coursegraph CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/coursegraph/internal/catalog"
	"github.com/hyperjump/coursegraph/internal/cli"
	"github.com/hyperjump/coursegraph/internal/config"
	"github.com/hyperjump/coursegraph/internal/ingest"
	"github.com/hyperjump/coursegraph/internal/models"
	"github.com/hyperjump/coursegraph/internal/ratings"
	"github.com/hyperjump/coursegraph/internal/search"
	"github.com/hyperjump/coursegraph/internal/server"
	"github.com/hyperjump/coursegraph/internal/storage"
	"github.com/hyperjump/coursegraph/internal/watcher"
	"github.com/hyperjump/coursegraph/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/coursegraph/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "ratings":
		runRatings()
	case "search":
		runSearch()
	case "graph":
		runGraph()
	case "terms":
		runTerms()
	case "reload":
		runReload()
	case "version", "--version", "-v":
		fmt.Printf("coursegraph version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (dataset changes, rebuilds, requests)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fail("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("dataset_dir", cfg.Storage.DatasetDir),
		zap.Bool("watch", cfg.Watch.Enabled),
		zap.Bool("debug", debugMode),
	)

	components := initializeComponents(cfg, logger)
	defer components.Close()

	rebuild := rebuildFunc(components.Catalog, logger)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Enabled {
		watchOpts := []watcher.WatcherOption{watcher.WithDebounce(cfg.Watch.Debounce)}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc := watcher.NewWatcher(cfg.Storage.DatasetDir, rebuild, watchOpts...)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
		if err := watchSvc.SyncExisting(); err != nil {
			logger.Warn("initial dataset load failed", zap.Error(err))
		}
	} else {
		files, err := ingest.ListDatasets(cfg.Storage.DatasetDir)
		if err != nil {
			logger.Warn("initial dataset load failed", zap.Error(err))
		}
		for _, f := range files {
			rebuild(f.Term)
		}
	}

	srv := server.NewServer(components.Engine, components.Catalog, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// rebuildFunc returns a callback that rebuilds one term and logs the outcome.
// Failures are already logged by the catalog; the previous index keeps serving.
func rebuildFunc(cat *catalog.Catalog, logger *zap.Logger) func(models.Term) {
	return func(term models.Term) {
		status, err := cat.Rebuild(context.Background(), term)
		if err != nil {
			return
		}
		logger.Info("term index serving",
			zap.String("term", status.Term),
			zap.String("build_id", status.BuildID),
			zap.Int("courses", status.Courses),
		)
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	serverURL := fs.String("server", "", "server URL to reload after a successful ingest (empty = no reload)")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: coursegraph ingest [flags] <year>_<term> [<year>_<term> ...]")
		os.Exit(1)
	}
	terms, err := parseTerms(fs.Args())
	if err != nil {
		fail("%v", err)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug || *debug)
	if err != nil {
		fail("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	pipeline := ingest.NewPipeline(cfg, ingest.WithLogger(logger))
	failed := false
	for _, term := range terms {
		res, err := pipeline.Run(context.Background(), term)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest %s failed: %v\n", term, err)
			failed = true
			continue
		}
		if err := cli.WriteIngestResult(os.Stdout, res, format); err != nil {
			fail("Output failed: %v", err)
		}
		if *serverURL != "" {
			var status models.TermStatus
			if err := postJSON(*serverURL+"/api/v1/terms/"+term.String()+"/reload", nil, &status); err != nil {
				fmt.Fprintf(os.Stderr, "Reload %s failed: %v\n", term, err)
				failed = true
			}
		}
	}
	if failed {
		os.Exit(1)
	}
}

func runRatings() {
	fs := flag.NewFlagSet("ratings", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	source := fs.String("source", "", "rating side-table exported by the collector (JSON, required)")
	termFlag := fs.String("term", "", "only refresh instructors of this term (<year>_<term>); default all datasets")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if *source == "" {
		fmt.Println("Usage: coursegraph ratings --source <ratings.json> [--term <year>_<term>]")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug || *debug)
	if err != nil {
		fail("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if _, err := os.Stat(*source); err != nil {
		fail("Failed to open source: %v", err)
	}
	upstream, err := ratings.LoadFile(*source)
	if err != nil {
		fail("%v", err)
	}
	names, err := collectInstructorNames(cfg.Storage.DatasetDir, *termFlag)
	if err != nil {
		fail("%v", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.RatingsDBPath)
	if err != nil {
		fail("Failed to open rating cache: %v", err)
	}
	defer store.Close()

	refresher := ratings.NewRefresher(store, ratings.TableFetcher(upstream),
		ratings.WithLogger(logger),
		ratings.WithWorkers(cfg.Ratings.Workers),
		ratings.WithRetry(cfg.Ratings.MaxRetries, cfg.Ratings.BackoffBase),
		ratings.WithRequestsPerSecond(cfg.Ratings.RequestsPerSecond),
		ratings.WithStaleAfter(cfg.Ratings.StaleAfter()),
	)
	ctx := context.Background()
	stats, err := refresher.Refresh(ctx, names)
	if err != nil {
		fail("Refresh failed: %v", err)
	}
	published, err := refresher.Publish(ctx, cfg.Storage.RatingsJSONPath)
	if err != nil {
		fail("%v", err)
	}
	if err := cli.WriteRefreshStats(os.Stdout, stats, published.Len(), format); err != nil {
		fail("Output failed: %v", err)
	}
}

// collectInstructorNames returns the distinct instructor names of the datasets
// in dir, restricted to one term when termArg is set.
func collectInstructorNames(dir, termArg string) ([]string, error) {
	files, err := ingest.ListDatasets(dir)
	if err != nil {
		return nil, err
	}
	if termArg != "" {
		term, err := models.ParseTerm(termArg)
		if err != nil {
			return nil, err
		}
		path, err := ingest.FindDataset(dir, term)
		if err != nil {
			return nil, err
		}
		files = []ingest.DatasetFile{{Term: term, Path: path}}
	}
	var normalized []models.NormalizedCourseRecord
	for _, f := range files {
		records, err := ingest.ReadDataset(f.Path)
		if err != nil {
			return nil, err
		}
		for i := range records {
			normalized = append(normalized, records[i].Normalized())
		}
	}
	return ratings.CollectNames(normalized), nil
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: coursegraph search --term <year>_<term> [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Every word must prefix a word of the\ncourse code, title, description, prerequisites or instructors.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  coursegraph search --term 25_fall cop 3502
  coursegraph search --term 25_fall "data struct" --limit 5 --offset 5
  coursegraph search --term 25_fall --output json mac2311
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// reorderArgs moves any flags (and their values) that appear after positional
// arguments to the front so that flag.Parse() sees them. Go's flag package stops
// at the first non-flag argument.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseTerms(args []string) ([]models.Term, error) {
	terms := make([]models.Term, 0, len(args))
	for _, a := range args {
		term, err := models.ParseTerm(a)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return terms, nil
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = build the term index locally)")
	termFlag := fs.String("term", "", "term to search, as <year>_<term> (required)")
	offset := fs.Int("offset", 0, "number of matches to skip")
	limit := fs.Int("limit", 10, "number of matches to return")
	outputFormat := fs.String("output", "text", "output format: text, compact (one match per line), or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	term, err := models.ParseTerm(*termFlag)
	if err != nil {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	query := &models.SearchQuery{
		Year:   term.Year,
		Term:   term.Name,
		Query:  buildSearchQuery(fs.Args()),
		Offset: *offset,
		Limit:  *limit,
	}

	var response models.SearchResponse
	if *serverURL != "" {
		// Use the HTTP API when a server is running.
		if err := postJSON(*serverURL+"/api/v1/search", query, &response); err != nil {
			fail("Search failed: %v", err)
		}
	} else {
		components := localComponents(*configPath, term)
		defer components.Close()
		res, err := components.Engine.Search(context.Background(), query)
		if err != nil {
			fail("Search failed: %v", err)
		}
		response = *res
	}
	if err := cli.WriteSearchResults(os.Stdout, &response, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runGraph() {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = build the term index locally)")
	termFlag := fs.String("term", "", "term, as <year>_<term> (required)")
	major := fs.String("major", "", "major: course code prefix or department name (required)")
	outputFormat := fs.String("output", "text", "output format: text, compact (one edge per line), or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	term, err := models.ParseTerm(*termFlag)
	if err != nil || *major == "" {
		fmt.Println("Usage: coursegraph graph --term <year>_<term> --major <major> [course ...]")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	query := &models.GraphQuery{Year: term.Year, Term: term.Name, Major: *major, Courses: fs.Args()}

	var response models.GraphResponse
	if *serverURL != "" {
		if err := postJSON(*serverURL+"/api/v1/graph", query, &response); err != nil {
			fail("Graph failed: %v", err)
		}
	} else {
		components := localComponents(*configPath, term)
		defer components.Close()
		res, err := components.Engine.ExtractGraph(context.Background(), query)
		if err != nil {
			fail("Graph failed: %v", err)
		}
		response = *res
	}
	if err := cli.WriteGraph(os.Stdout, &response, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runTerms() {
	fs := flag.NewFlagSet("terms", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = list dataset files)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	if *serverURL == "" {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fail("Failed to load config: %v", err)
		}
		files, err := ingest.ListDatasets(cfg.Storage.DatasetDir)
		if err != nil {
			fail("%v", err)
		}
		for _, f := range files {
			fmt.Printf("%s\t%s\n", f.Term, f.Path)
		}
		return
	}
	var out struct {
		Terms []models.TermStatus `json:"terms"`
	}
	if err := getJSON(*serverURL+"/api/v1/terms", &out); err != nil {
		fail("Terms failed: %v", err)
	}
	if err := cli.WriteTerms(os.Stdout, out.Terms, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runReload() {
	fs := flag.NewFlagSet("reload", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(reorderArgs(os.Args[2:]))
	if fs.NArg() < 1 {
		fmt.Println("Usage: coursegraph reload [--server URL] <year>_<term>")
		os.Exit(1)
	}
	term, err := models.ParseTerm(fs.Arg(0))
	if err != nil {
		fail("%v", err)
	}
	var status models.TermStatus
	if err := postJSON(*serverURL+"/api/v1/terms/"+term.String()+"/reload", nil, &status); err != nil {
		fail("Reload failed: %v", err)
	}
	fmt.Printf("Reloaded %s: %d courses, %d majors (build %s)\n", status.Term, status.Courses, status.Majors, status.BuildID)
}

func postJSON(url string, in, out interface{}) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	resp, err := http.Post(url, "application/json", body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func getJSON(url string, out interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Catalog *catalog.Catalog
	Engine  *search.Engine
}

func (c *Components) Close() {
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) *Components {
	catOpts := []catalog.Option{catalog.WithLogger(logger)}
	if cfg.Storage.BleveIndexPath != "" {
		catOpts = append(catOpts, catalog.WithIndexDir(cfg.Storage.BleveIndexPath))
	}
	cat := catalog.New(ingest.DatasetLoader{Dir: cfg.Storage.DatasetDir}, catOpts...)
	engine := search.NewEngine(cat, &cfg.Search, search.WithLogger(logger))
	return &Components{Catalog: cat, Engine: engine}
}

// localComponents builds the index of one term in process, for commands run
// without a server.
func localComponents(configPath string, term models.Term) *Components {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug)
	if err != nil {
		fail("Failed to create logger: %v", err)
	}
	// Local indexes are throwaway; keep them in memory.
	cfg.Storage.BleveIndexPath = ""
	components := initializeComponents(cfg, logger)
	if _, err := components.Catalog.Rebuild(context.Background(), term); err != nil {
		components.Close()
		fail("Failed to load %s: %v", term, err)
	}
	return components
}

func printUsage() {
	fmt.Println(`coursegraph - Course catalog search and prerequisite graphs

Usage:
  coursegraph server [flags]                     Start the HTTP server
  coursegraph ingest [flags] <year>_<term> ...   Merge raw shards into the canonical dataset
  coursegraph ratings --source <file> [flags]    Refresh the instructor rating cache and side-table
  coursegraph search --term <t> [flags] <query>  Search courses
  coursegraph graph --term <t> --major <m> [course ...]
                                                 Show a prerequisite graph
  coursegraph terms [flags]                      List serving terms
  coursegraph reload <year>_<term>               Rebuild a term on the running server
  coursegraph version                            Show version
  coursegraph help                               Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/coursegraph/config.yaml)
  --debug            Enable debug logging

Ingest Flags:
  --config string    Config file path
  --output string    Output format: text or json (default: text)
  --server string    Reload the term on this server after ingesting

Ratings Flags:
  --source string    Rating side-table exported by the collector
  --term string      Only refresh instructors of one term

Search / Graph Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to build the index locally.
  --term string      Term as <year>_<term>, e.g. 25_fall
  --limit int        Matches per page (search, default: 10)
  --offset int       Matches to skip (search)
  --major string     Code prefix or department name (graph)
  --output string    Output format: text, compact, or json

Examples:
  coursegraph ingest 25_fall
  coursegraph ratings --source scraped_ratings.json
  coursegraph server
  coursegraph search --term 25_fall cop 3502
  coursegraph graph --term 25_fall --major COP COP3502C
  coursegraph terms --output json`)
}
