package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simplesurance/forkpr/internal/batch"
	"github.com/simplesurance/forkpr/internal/bulkaction"
	"github.com/simplesurance/forkpr/internal/cfg"
	"github.com/simplesurance/forkpr/internal/checkpoint"
	"github.com/simplesurance/forkpr/internal/githubclt"
	"github.com/simplesurance/forkpr/internal/lock"
	"github.com/simplesurance/forkpr/internal/logfields"
	"github.com/simplesurance/forkpr/internal/metrics"
	"github.com/simplesurance/forkpr/internal/worklist"
)

const appName = "forkpr"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught , terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

type arguments struct {
	Files             *[]string
	Token             *string
	MaxRepositories   *int
	Cancel            *bool
	DryRun            *bool
	Synced            *bool
	StarRepositories  *string
	WatchRepositories *string
	EnableIssues      *string
	ConfigFile        *string
	Verbose           *bool
	ShowVersion       *bool
	CheckpointFile    *string
	LockFile          *string
	MetricsFile       *string
	PullRequestLabel  *string
}

var args arguments

func mustParseCommandlineParams() {
	args = arguments{
		Files: pflag.StringArrayP(
			"file",
			"f",
			nil,
			"worklist file with the repositories, can be specified multiple times",
		),
		Token: pflag.StringP(
			"token",
			"t",
			"",
			"GitHub API token or path to a file containing it,\n"+
				"if unset the environment variable "+cfg.TokenEnvVar+" is used",
		),
		MaxRepositories: pflag.IntP(
			"maximum-repositories",
			"m",
			0,
			"maximum number of repositories that are processed per worklist file, 0 is unlimited",
		),
		Cancel: pflag.Bool(
			"cancel",
			false,
			"clear the lock of a running or aborted run and exit",
		),
		DryRun: pflag.BoolP(
			"dry-run",
			"d",
			false,
			"do not change anything on GitHub and do not advance the checkpoint",
		),
		Synced: pflag.BoolP(
			"synced",
			"s",
			false,
			"discard the checkpoint and process all worklist items",
		),
		StarRepositories: pflag.String(
			"star-repositories",
			"",
			"star all repositories of the `USER`",
		),
		WatchRepositories: pflag.String(
			"watch-repositories",
			"",
			"watch all repositories of the `USER`",
		),
		EnableIssues: pflag.String(
			"enable-issues",
			"",
			"enable the issue tracker of all repositories of the `USER`",
		),
		ConfigFile: pflag.StringP(
			"cfg-file",
			"c",
			"",
			"path to an optional configuration file",
		),
		Verbose: pflag.BoolP(
			"verbose",
			"v",
			false,
			"enable verbose logging",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
		CheckpointFile: pflag.String(
			"checkpoint-file",
			cfg.DefCheckpointFile,
			"file that stores the progress per worklist file",
		),
		LockFile: pflag.String(
			"lock-file",
			cfg.DefLockFile,
			"file that prevents concurrent runs",
		),
		MetricsFile: pflag.String(
			"metrics-file",
			"",
			"write prometheus metrics in the text format to the file",
		),
		PullRequestLabel: pflag.String(
			"label",
			batch.DefPullRequestLabel,
			"label that is added to created pull requests, empty disables labelling",
		),
	}

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTION]...\nCreate pull requests that merge upstream changes into forks.\n", appName)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()
}

func mustParseCfg() *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	config := cfg.Default()

	if *args.ConfigFile != "" {
		var err error

		config, err = cfg.LoadFile(afero.NewOsFs(), *args.ConfigFile)
		exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)
	}

	if pflag.CommandLine.Changed("checkpoint-file") {
		config.CheckpointFile = *args.CheckpointFile
	}

	if pflag.CommandLine.Changed("lock-file") {
		config.LockFile = *args.LockFile
	}

	if pflag.CommandLine.Changed("metrics-file") {
		config.MetricsFile = *args.MetricsFile
	}

	if pflag.CommandLine.Changed("label") {
		config.PullRequestLabel = *args.PullRequestLabel
	}

	return config
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stderr,
		logLevel),
	)

	return logger
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	cfg.OutputPaths = []string{"stderr"}
	cfg.Encoding = config.LogFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	exitOnErr("could not initialize logger", err)

	return logger
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if *args.Verbose {
		logLevel = zapcore.DebugLevel
	} else {
		if err := (&logLevel).Set(config.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "can not set log level to %q: %s \n", config.LogLevel, err)
			os.Exit(2)
		}
	}

	switch config.LogFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logLevel)
	default:
		fmt.Fprintf(os.Stderr, "unsupported log-format argument: %q\n", config.LogFormat)
		os.Exit(2)
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.Register(func(context.Context, os.Signal) {
		// syncing stderr fails on some platforms, the error is ignored
		_ = logger.Sync()
	})
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

func bulkActionArgs() []*bulkActionArg {
	var result []*bulkActionArg

	for _, a := range []*bulkActionArg{
		{action: bulkaction.ActionStar, owner: *args.StarRepositories},
		{action: bulkaction.ActionWatch, owner: *args.WatchRepositories},
		{action: bulkaction.ActionEnableIssues, owner: *args.EnableIssues},
	} {
		if a.owner != "" {
			result = append(result, a)
		}
	}

	return result
}

func main() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 1)
	goodbye.Notify(context.Background())

	mustParseCommandlineParams()

	if *args.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		os.Exit(0) // nolint:gocritic // defer functions won't run
	}

	config := mustParseCfg()

	mustInitLogger(config)

	osFs := afero.NewOsFs()
	lck := lock.New(osFs, config.LockFile)

	if *args.Cancel {
		lck.Cancel()
		goodbye.Exit(context.Background(), 0)
	}

	actions := bulkActionArgs()
	if len(*args.Files) == 0 && len(actions) == 0 {
		fmt.Fprintln(os.Stderr, "no worklist file and no bulk action specified, nothing to do")
		pflag.Usage()
		goodbye.Exit(context.Background(), 0)
	}

	token, err := cfg.ResolveToken(osFs, *args.Token, os.Getenv(cfg.TokenEnvVar), config.GithubAPIToken)
	exitOnErr("could not load the GitHub API token", err)

	logger.Info(
		"configuration loaded",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		zap.String("github_api_token", hide(token)),
		zap.String("checkpoint_file", config.CheckpointFile),
		zap.String("lock_file", config.LockFile),
		zap.String("metrics_file", config.MetricsFile),
		zap.String("pull_request_label", config.PullRequestLabel),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
		zap.Bool("dry_run", *args.DryRun),
		zap.Bool("synced", *args.Synced),
		zap.Int("maximum_repositories", *args.MaxRepositories),
	)

	if token == "" {
		logger.Warn(
			"no GitHub API token configured, requests are unauthenticated",
			logfields.Event("github_token_missing"),
		)
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		if sig != nil {
			logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
		}

		cancelFn()

		if lck.Held() {
			lck.Release()
		}
	})

	r := runner{
		fs:              osFs,
		clt:             githubclt.New(token),
		out:             os.Stdout,
		checkpointFile:  config.CheckpointFile,
		label:           config.PullRequestLabel,
		maxItemsPerFile: *args.MaxRepositories,
		dryRun:          *args.DryRun,
		synced:          *args.Synced,
		onCheckpointLoaded: func(store *checkpoint.Store) {
			goodbye.Register(func(context.Context, os.Signal) {
				if err := store.Flush(); err != nil {
					logger.Error(
						"persisting checkpoint failed",
						logfields.Event("checkpoint_flush_failed"),
						zap.Error(err),
					)
				}
			})
		},
		logger: logger,
	}

	if config.MetricsFile != "" {
		r.metrics = metrics.New()
	}

	err = lck.Do(func() error {
		return r.run(ctx, *args.Files, actions)
	})

	if err := r.metrics.WriteToTextfile(config.MetricsFile); err != nil {
		logger.Warn(
			"writing metrics file failed",
			logfields.Event("metrics_write_failed"),
			zap.String("metrics_file", config.MetricsFile),
			zap.Error(err),
		)
	}

	if errors.Is(err, lock.ErrLocked) {
		logger.Info(
			"another run is in progress, nothing done, use --cancel to clear a stale lock",
			logfields.Event("run_declined"),
			zap.String("lock_file", config.LockFile),
		)

		goodbye.Exit(context.Background(), 0)
	}

	if err != nil {
		var parseErr *worklist.ConfigParseError
		if errors.As(err, &parseErr) {
			logger.Error("loading worklist failed", logfields.Event("worklist_load_failed"), zap.Error(err))
		} else {
			logger.Error("run failed", logfields.Event("run_failed"), zap.Error(err))
		}

		goodbye.Exit(context.Background(), 1)
	}

	goodbye.Exit(context.Background(), 0)
}
