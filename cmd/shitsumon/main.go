// Package main is the Shitsumon CLI entry point.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
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

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/hyperjump/shitsumon/internal/cli"
	"github.com/hyperjump/shitsumon/internal/config"
	"github.com/hyperjump/shitsumon/internal/finder"
	"github.com/hyperjump/shitsumon/internal/kg"
	"github.com/hyperjump/shitsumon/internal/llm"
	"github.com/hyperjump/shitsumon/internal/metrics"
	"github.com/hyperjump/shitsumon/internal/models"
	"github.com/hyperjump/shitsumon/internal/nlp"
	"github.com/hyperjump/shitsumon/internal/server"
	"github.com/hyperjump/shitsumon/internal/watcher"
	"github.com/hyperjump/shitsumon/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/shitsumon/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if present, and a missing default file yields the built-in
// defaults with an empty resolved path.
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
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
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
	case "find":
		runFind()
	case "batch":
		runBatch()
	case "classify", "expand", "assess":
		runStage(command)
	case "version", "--version", "-v":
		fmt.Printf("shitsumon version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// Components holds the finder and the collaborators that need closing.
type Components struct {
	Finder  *finder.Finder
	Metrics *metrics.Metrics
	graph   *kg.Neo4jLookup
}

// Close releases the finder and the knowledge-graph driver.
func (c *Components) Close() error {
	var result *multierror.Error
	if err := c.Finder.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.graph != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.graph.Close(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// initializeComponents builds the finder with the collaborators enabled in cfg. A
// knowledge graph that cannot be reached is logged and left out.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) *Components {
	m := metrics.New(nil)
	opts := []finder.Option{
		finder.WithLogger(logger),
		finder.WithMetrics(m),
	}
	c := &Components{Metrics: m}

	collab := cfg.Collaborators
	if collab.NLP.Enabled {
		opts = append(opts, finder.WithEntityExtractor(nlp.NewProseExtractor(logger.Named("nlp"))))
	}
	if collab.KnowledgeGraph.Enabled {
		graph, err := kg.NewNeo4jLookup(ctx, collab.KnowledgeGraph, logger.Named("kg"))
		if err != nil {
			logger.Warn("knowledge graph unavailable", zap.String("uri", collab.KnowledgeGraph.URI), zap.Error(err))
		} else {
			c.graph = graph
			opts = append(opts, finder.WithKnowledgeGraph(graph))
		}
	}
	if collab.LLM.Enabled {
		opts = append(opts, finder.WithConversationalEngine(llm.NewOpenAIEngine(collab.LLM, logger.Named("llm"))))
	}

	c.Finder = finder.New(*cfg, opts...)
	return c
}

func mustLogger(debug bool) *zap.Logger {
	logger, err := utils.NewLogger(debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func mustConfig(path string) (*config.Config, string) {
	cfg, resolved, err := loadConfig(path)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath := mustConfig(*configPath)
	debugMode := cfg.Debug || *debug
	logger := mustLogger(debugMode)
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	components := initializeComponents(ctx, cfg, logger)
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn("shutdown errors", zap.Error(err))
		}
	}()
	f := components.Finder
	f.Start(ctx)

	if resolvedConfigPath != "" {
		w := watcher.NewWatcher(resolvedConfigPath, func(next *config.Config) {
			f.Optimizer().Reload(next.Monitoring)
		}, watcher.WithLogger(logger.Named("watcher")))
		if err := w.Start(ctx); err != nil {
			logger.Warn("config watcher not started", zap.Error(err))
		} else {
			defer w.Stop()
		}
	}

	srv := server.NewServer(f, components.Metrics, &cfg.Server, logger.Named("server"))
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = srv.Stop(stopCtx)
}

// commandArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them.
func commandArgsReorder(args []string) []string {
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

func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// queryContext returns nil when no context flag was given.
func queryContext(sessionID, userID, domains string) *models.QueryContext {
	var preferred []models.BusinessDomain
	for _, d := range strings.Split(domains, ",") {
		if bd, ok := models.ParseDomain(strings.TrimSpace(d)); ok {
			preferred = append(preferred, bd)
		}
	}
	if sessionID == "" && userID == "" && len(preferred) == 0 {
		return nil
	}
	return &models.QueryContext{SessionID: sessionID, UserID: userID, PreferredDomains: preferred}
}

type queryFlags struct {
	configPath *string
	serverURL  *string
	mode       *string
	session    *string
	user       *string
	domains    *string
	output     *string
	debug      *bool
}

func addQueryFlags(fs *flag.FlagSet) queryFlags {
	return queryFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		serverURL:  fs.String("server", "", "server URL; empty runs the pipeline in-process"),
		mode:       fs.String("mode", string(models.ModeStandard), "processing mode: fast, standard, comprehensive or custom"),
		session:    fs.String("session", "", "session ID for conversational context"),
		user:       fs.String("user", "", "user ID"),
		domains:    fs.String("domains", "", "comma-separated preferred business domains"),
		output:     fs.String("output", "text", "output format: text or json"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
	}
}

func (q queryFlags) parse() (models.Mode, *models.QueryContext, cli.OutputFormat) {
	mode, err := models.ParseMode(*q.mode)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return mode, queryContext(*q.session, *q.user, *q.domains), cli.ParseOutputFormat(*q.output)
}

// local builds an in-process finder. The returned function releases it.
func (q queryFlags) local() (*finder.Finder, func()) {
	cfg, _ := mustConfig(*q.configPath)
	logger := zap.NewNop()
	if cfg.Debug || *q.debug {
		logger = mustLogger(true)
	}
	components := initializeComponents(context.Background(), cfg, logger)
	return components.Finder, func() {
		_ = components.Close()
		_ = logger.Sync()
	}
}

func runFind() {
	fs := flag.NewFlagSet("find", flag.ExitOnError)
	qf := addQueryFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: shitsumon find [flags] <query>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(commandArgsReorder(os.Args[2:]))

	query := buildQuery(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	mode, qctx, format := qf.parse()

	var res models.QueryFinderResult
	if *qf.serverURL != "" {
		body := map[string]interface{}{"query": query, "mode": mode, "context": qctx}
		if err := postJSON(*qf.serverURL+"/api/v1/find", body, &res); err != nil {
			fmt.Printf("Find failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		f, release := qf.local()
		res = *f.Find(context.Background(), query, mode, qctx)
		release()
	}
	if err := cli.WriteResult(os.Stdout, &res, format); err != nil {
		fmt.Printf("Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runBatch() {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	qf := addQueryFlags(fs)
	input := fs.String("input", "", "query file (.txt, .csv or .xlsx); - or empty reads stdin")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: shitsumon batch [flags] [-input FILE]\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[2:])

	queries, err := readBatchInput(*input, os.Stdin)
	if err != nil {
		fmt.Printf("Failed to read queries: %v\n", err)
		os.Exit(1)
	}
	mode, qctx, format := qf.parse()

	var res *models.BatchProcessingResult
	if *qf.serverURL != "" {
		res = &models.BatchProcessingResult{}
		body := map[string]interface{}{"queries": queries, "mode": mode, "context": qctx}
		err = postJSON(*qf.serverURL+"/api/v1/batch", body, res)
	} else {
		f, release := qf.local()
		ctx, cancel := context.WithCancel(context.Background())
		f.Start(ctx)
		res, err = f.BatchFind(ctx, queries, mode, qctx)
		cancel()
		release()
	}
	if err != nil {
		fmt.Printf("Batch failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteBatch(os.Stdout, res, format); err != nil {
		fmt.Printf("Output failed: %v\n", err)
		os.Exit(1)
	}
}

func readBatchInput(path string, stdin io.Reader) ([]string, error) {
	if path == "" || path == "-" {
		return cli.ReadQueries(bufio.NewReader(stdin))
	}
	return cli.LoadQueries(path)
}

// runStage runs classify, expand or assess on a single query in-process.
func runStage(command string) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	qf := addQueryFlags(fs)
	qtype := fs.String("type", "", "question type for assess (default: classified)")
	domain := fs.String("domain", "", "business domain for assess (default: primary expanded domain)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: shitsumon %s [flags] <query>\n\n", command)
		fs.PrintDefaults()
	}
	_ = fs.Parse(commandArgsReorder(os.Args[2:]))

	query := buildQuery(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	_, qctx, format := qf.parse()
	f, release := qf.local()
	defer release()
	ctx := context.Background()

	var err error
	switch command {
	case "classify":
		err = cli.WriteClassification(os.Stdout, f.Classify(ctx, query, qctx), format)
	case "expand":
		err = cli.WriteExpansion(os.Stdout, f.Expand(ctx, query, qctx), format)
	case "assess":
		t := models.ParseQuestionType(*qtype)
		if *qtype == "" {
			t = f.Classify(ctx, query, qctx).Type
		}
		d, ok := models.ParseDomain(*domain)
		if !ok {
			d = f.Expand(ctx, query, qctx).PrimaryDomain()
		}
		err = cli.WriteAssessment(os.Stdout, f.Assess(ctx, query, t, d, qctx), format)
	}
	if err != nil {
		fmt.Printf("Output failed: %v\n", err)
		os.Exit(1)
	}
}

var httpClient = &http.Client{Timeout: 60 * time.Second}

// postJSON posts body to url and decodes a 200 response into out. Other statuses
// return the server's error message.
func postJSON(url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printUsage() {
	fmt.Println(`shitsumon - Question classification, domain expansion and quality scoring

Usage:
  shitsumon server [flags]              Start the HTTP server
  shitsumon find [flags] <query>        Run the full pipeline on one query
  shitsumon batch [flags] [-input FILE] Run the pipeline over a list of queries
  shitsumon classify [flags] <query>    Classify the question type
  shitsumon expand [flags] <query>      Expand the query across business domains
  shitsumon assess [flags] <query>      Score query quality
  shitsumon version                     Show version
  shitsumon help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/shitsumon/config.yaml)
  --debug            Enable debug logging

Query Flags (find, batch, classify, expand, assess):
  --config string    Config file path
  --server string    Server URL for find and batch; empty runs in-process
  --mode string      fast, standard, comprehensive or custom (default: standard)
  --session string   Session ID for conversational context
  --user string      User ID
  --domains string   Comma-separated preferred domains
  --output string    Output format: text or json (default: text)

Batch Flags:
  --input string     Query file: .txt (one per line), .csv or .xlsx (first column)

Assess Flags:
  --type string      Question type (default: classified)
  --domain string    Business domain (default: primary expanded domain)

Examples:
  shitsumon server
  shitsumon find "why did churn rise in Q3"
  shitsumon find --mode comprehensive --session s-1 "compare plan A vs plan B"
  shitsumon batch --input queries.xlsx --output json
  shitsumon classify "how to set up a marketing campaign"
  shitsumon assess --domain finance "what is our burn rate"`)
}
