package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jward/cellscope"
	"github.com/jward/cellscope/internal/config"
)

var (
	flagDB      string
	flagFormat  string
	flagVerbose bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "cellscope",
	Short:         "Cell dependency graphs for multi-kernel notebooks",
	Long:          "Cellscope extracts what each notebook cell defines, uses, writes and reads, and links the cells into a dependency graph stored in SQLite.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagFormat == "" {
			flagFormat = defaultFormat(os.Stdout)
		}
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .cellscope/index.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "", "output format: json|text (default: text on a terminal, json otherwise)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging on stderr")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(cellsCmd)
	rootCmd.AddCommand(queryCmd)
}

var (
	flagAliases     string
	flagConfig      string
	flagExternalURL string
	flagTimeout     time.Duration
	flagRateLimit   float64
	flagSave        bool
	flagScriptsDir  string
	flagTrace       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <notebook>...",
	Short: "Analyze notebooks and print their cell dependency graphs",
	Long:  "Parses every code cell, links the cells into a dependency graph and prints one capture per notebook. With --save the captures are also written to the database.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&flagAliases, "aliases", "", "YAML alias file mapping names to canonical names")
	analyzeCmd.Flags().StringVar(&flagConfig, "config", "", "config file (default: "+config.DefaultFile+")")
	analyzeCmd.Flags().StringVar(&flagExternalURL, "external-url", "", "external analyzer base URL for statistical kernels")
	analyzeCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "external analyzer timeout per cell (e.g. 5s)")
	analyzeCmd.Flags().Float64Var(&flagRateLimit, "rate-limit", 0, "maximum external analyzer calls per second (0: unlimited)")
	analyzeCmd.Flags().BoolVar(&flagSave, "save", false, "persist captures to the database")
	analyzeCmd.Flags().StringVar(&flagScriptsDir, "scripts-dir", "", "load kernel scripts from disk path instead of embedded")
	analyzeCmd.Flags().BoolVar(&flagTrace, "trace", false, "print analysis spans to stderr")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	start := time.Now()
	logger := newLogger(os.Stderr, flagVerbose)

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return outputError("analyze", err)
	}
	aliases, err := mergeAliases(cfg.Aliases, flagAliases)
	if err != nil {
		return outputError("analyze", err)
	}

	opts := []cellscope.Option{
		cellscope.WithLogger(logger),
		cellscope.WithAliases(aliases),
		cellscope.WithStatisticalKernels(cfg.StatisticalKernels...),
		cellscope.WithExternalURL(firstNonEmpty(flagExternalURL, cfg.External.URL)),
		cellscope.WithExternalTimeout(cfg.External.TimeoutDuration()),
		cellscope.WithExternalRateLimit(cfg.External.RateLimit),
	}
	if flagTimeout > 0 {
		opts = append(opts, cellscope.WithExternalTimeout(flagTimeout))
	}
	if flagRateLimit > 0 {
		opts = append(opts, cellscope.WithExternalRateLimit(flagRateLimit))
	}
	if flagTrace {
		tp, err := newTracerProvider(os.Stderr)
		if err != nil {
			return outputError("analyze", err)
		}
		defer func() { _ = tp.Shutdown(context.Background()) }()
		opts = append(opts, cellscope.WithTracerProvider(tp))
	}
	if flagScriptsDir != "" {
		opts = append(opts, cellscope.WithScriptsDir(flagScriptsDir))
	}

	var dbPath string
	if flagSave {
		cwd, err := os.Getwd()
		if err != nil {
			return outputError("analyze", fmt.Errorf("getting cwd: %w", err))
		}
		dbPath = resolveDBPath(findRepoRoot(cwd))
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return outputError("analyze", fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err))
		}
		opts = append(opts, cellscope.WithStore(dbPath))
	}

	paths := make([]string, 0, len(args))
	for _, arg := range args {
		p, err := resolveFilePath(arg)
		if err != nil {
			return outputError("analyze", err)
		}
		paths = append(paths, p)
	}

	engine, err := cellscope.New(opts...)
	if err != nil {
		return outputError("analyze", fmt.Errorf("creating engine: %w", err))
	}
	defer engine.Close()

	captures, analyzeErr := engine.AnalyzeFiles(cmd.Context(), paths)

	result := CLIResult{Command: "analyze", Results: captures}
	if analyzeErr != nil {
		result.Error = analyzeErr.Error()
	}
	if err := outputResult(result); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Analyzed %d of %d notebook(s) in %s\n",
		len(captures), len(paths), time.Since(start).Round(time.Millisecond))
	if dbPath != "" {
		fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)
	}

	if analyzeErr != nil {
		errorHandled = flagFormat == "json"
		return analyzeErr
	}
	return nil
}

// newTracerProvider exports every span to w as it ends.
func newTracerProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp)), nil
}

// defaultFormat picks text for an interactive terminal and json otherwise.
func defaultFormat(f *os.File) string {
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return "text"
	}
	return "json"
}

// newLogger builds the stderr text logger. Warnings only, unless verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// mergeAliases layers the aliases file over the config file's aliases.
func mergeAliases(fromConfig map[string]string, path string) (cellscope.AliasMap, error) {
	merged := make(cellscope.AliasMap, len(fromConfig))
	for k, v := range fromConfig {
		merged[k] = v
	}
	if path == "" {
		return merged, nil
	}
	fromFile, err := cellscope.LoadAliases(path)
	if err != nil {
		return nil, err
	}
	for k, v := range fromFile {
		merged[k] = v
	}
	return merged, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag or the default.
func resolveDBPath(repoRoot string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(repoRoot, flagDB)
	}
	return filepath.Join(repoRoot, ".cellscope", "index.db")
}
