package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohmanhakim/docs-crawler/internal/build"
	"github.com/rohmanhakim/docs-crawler/internal/config"
	"github.com/rohmanhakim/docs-crawler/internal/query"
	"github.com/rohmanhakim/docs-crawler/internal/scheduler"
)

var (
	cfgFile           string
	seedURLs          []string
	maxDepth          int
	workers           int
	outputDir         string
	dryRun            bool
	maxPages          int
	userAgent         string
	timeout           time.Duration
	baseDelay         time.Duration
	jitter            time.Duration
	randomSeed        int64
	allowedHosts      []string
	allowedPathPrefix []string
	retryMax          int
	socksEndpoint     string
	controlEndpoint   string
	controlPassword   string
	rankRefresh       time.Duration
	pagerankIters     int
	damping           float64
	topK              int
)

// querySeedPlaceholder satisfies Config.Build()'s non-empty-seed
// invariant for the query and repl commands, which never crawl and
// never consult SeedURLs.
var querySeedPlaceholder = url.URL{Scheme: "http", Host: "query.onion"}

func parseStringSliceToSet(values []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range values {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

func parseSeedURLs(urlStrings []string) ([]url.URL, error) {
	if len(urlStrings) == 0 {
		return nil, fmt.Errorf("seed URLs cannot be empty")
	}
	urls := make([]url.URL, 0, len(urlStrings))
	for _, s := range urlStrings {
		parsed, err := url.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("error parsing seed URL %s: %w", s, err)
		}
		urls = append(urls, *parsed)
	}
	return urls, nil
}

var rootCmd = &cobra.Command{
	Use:     "darksearch",
	Short:   "A .onion search engine: crawl, index, and query.",
	Version: build.FullVersion(),
	Long: `darksearch crawls .onion sites over a SOCKS5 proxy, builds a
TF-IDF + PageRank search index from what it finds, and serves ranked
queries against that index -- either one-shot or interactively.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "output", "root directory for crawl state and the search index")
	rootCmd.PersistentFlags().Float64Var(&damping, "damping", 0, "PageRank damping factor")
	rootCmd.PersistentFlags().IntVar(&pagerankIters, "pagerank-iters", 0, "maximum PageRank power-iteration steps")
	rootCmd.PersistentFlags().IntVar(&topK, "top-k", 0, "number of results a query returns")

	crawlCmd.Flags().StringArrayVar(&seedURLs, "seed-url", []string{}, "one or more starting URLs (can be repeated)")
	crawlCmd.Flags().IntVar(&maxDepth, "max-depth", 0, "maximum link depth from a seed URL")
	crawlCmd.Flags().IntVar(&workers, "workers", 0, "number of concurrent crawl worker goroutines")
	crawlCmd.Flags().BoolVar(&dryRun, "dry-run", false, "stored in the config; the crawl does not read it and always writes output")
	crawlCmd.Flags().IntVar(&maxPages, "max-pages", 0, "stored in the config; the crawl does not read it and does not cap pages")
	crawlCmd.Flags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	crawlCmd.Flags().DurationVar(&timeout, "request-timeout", 0, "per-fetch deadline")
	crawlCmd.Flags().DurationVar(&baseDelay, "base-delay", 0, "minimum delay between requests to the same host")
	crawlCmd.Flags().DurationVar(&jitter, "jitter", 0, "random jitter added to base delay")
	crawlCmd.Flags().Int64Var(&randomSeed, "random-seed", 0, "seed for random number generation (0 for current time)")
	crawlCmd.Flags().StringArrayVar(&allowedHosts, "allowed-host", []string{}, "stored in the config; the crawl does not read it and does not restrict hosts")
	crawlCmd.Flags().StringArrayVar(&allowedPathPrefix, "allowed-path-prefix", []string{}, "stored in the config; the crawl does not read it and does not restrict paths")
	crawlCmd.Flags().IntVar(&retryMax, "retry-max", 0, "fetch attempts before a URL is marked failed")
	crawlCmd.Flags().StringVar(&socksEndpoint, "socks-endpoint", "", "SOCKS5 proxy host:port")
	crawlCmd.Flags().StringVar(&controlEndpoint, "control-endpoint", "", "circuit-rotation control-port host:port")
	crawlCmd.Flags().StringVar(&controlPassword, "control-password", "", "control-port authentication secret")
	crawlCmd.Flags().DurationVar(&rankRefresh, "rank-refresh", 0, "how often the Ranker recomputes TF-IDF and PageRank")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(replCmd)
}

// InitConfigWithError builds a Config from --config-file if given,
// otherwise from CLI flags layered over defaults. seedUrls must be
// non-empty; the crawl command supplies real seeds, query/repl supply
// querySeedPlaceholder.
func InitConfigWithError(seedUrls []url.URL) (config.Config, error) {
	if len(seedUrls) == 0 {
		return config.Config{}, fmt.Errorf("%w: seedUrls cannot be empty", config.ErrInvalidConfig)
	}

	if cfgFile != "" {
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	builder := config.WithDefault(seedUrls)

	if maxDepth > 0 {
		builder = builder.WithMaxDepth(maxDepth)
	}
	if workers > 0 {
		builder = builder.WithConcurrency(workers)
	}
	if outputDir != "" && outputDir != "output" {
		builder = builder.WithOutputDir(outputDir)
	}
	if dryRun {
		builder = builder.WithDryRun(dryRun)
	}
	if maxPages > 0 {
		builder = builder.WithMaxPages(maxPages)
	}
	if userAgent != "" {
		builder = builder.WithUserAgent(userAgent)
	}
	if timeout > 0 {
		builder = builder.WithTimeout(timeout)
	}
	if baseDelay > 0 {
		builder = builder.WithBaseDelay(baseDelay)
	}
	if jitter > 0 {
		builder = builder.WithJitter(jitter)
	}
	if randomSeed != 0 {
		builder = builder.WithRandomSeed(randomSeed)
	}
	if len(allowedHosts) > 0 {
		builder = builder.WithAllowedHosts(parseStringSliceToSet(allowedHosts))
	}
	if len(allowedPathPrefix) > 0 {
		builder = builder.WithAllowedPathPrefix(allowedPathPrefix)
	}
	if retryMax > 0 {
		builder = builder.WithMaxAttempt(retryMax)
	}
	if socksEndpoint != "" {
		builder = builder.WithSocksEndpoint(socksEndpoint)
	}
	if controlEndpoint != "" {
		builder = builder.WithControlEndpoint(controlEndpoint)
	}
	if controlPassword != "" {
		builder = builder.WithControlPassword(controlPassword)
	}
	if rankRefresh > 0 {
		builder = builder.WithRankRefreshInterval(rankRefresh)
	}
	if pagerankIters > 0 {
		builder = builder.WithPagerankIters(pagerankIters)
	}
	if damping > 0 {
		builder = builder.WithDamping(damping)
	}
	if topK > 0 {
		builder = builder.WithTopK(topK)
	}

	return builder.Build()
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run the crawler until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		parsedURLs, err := parseSeedURLs(seedURLs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(2)
		}

		cfg, err := InitConfigWithError(parsedURLs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(2)
		}

		sched, err := scheduler.New(cfg, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(2)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = sched.Run(ctx)
		if ctx.Err() != nil {
			fmt.Println("shutting down")
			os.Exit(130)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Run a single ranked query against the crawled index",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := InitConfigWithError([]url.URL{querySeedPlaceholder})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(2)
		}

		engine, err := scheduler.OpenQueryEngine(cfg, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(2)
		}

		k := cfg.TopK()
		results := engine.Query(strings.Join(args, " "), k)
		printResults(os.Stdout, results)
	},
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactively query the crawled index",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := InitConfigWithError([]url.URL{querySeedPlaceholder})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(2)
		}

		engine, err := scheduler.OpenQueryEngine(cfg, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(2)
		}

		runRepl(engine, cfg.TopK(), os.Stdin, os.Stdout)
	},
}

// runRepl reads "query <text>" and "exit" lines from in until exit is
// typed or in is closed.
func runRepl(engine *query.Engine, k int, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" {
			return
		}
		text := strings.TrimPrefix(line, "query ")
		results := engine.Query(text, k)
		printResults(out, results)
	}
}

func printResults(out io.Writer, results []query.Result) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No results")
		return
	}
	for _, r := range results {
		fmt.Fprintf(out, "%s\t%.6f\t%s\t%v\n", r.Url, r.Score, r.Title, r.TermFreqs)
	}
}
