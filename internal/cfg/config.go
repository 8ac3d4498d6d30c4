package cfg

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml"
	"github.com/spf13/afero"

	"github.com/simplesurance/forkpr/internal/batch"
)

const (
	DefCheckpointFile = "forkpr-checkpoint.json"
	DefLockFile       = "forkpr.lock"
	DefLogFormat      = "logfmt"
	DefLogLevel       = "info"
	DefLogTimeKey     = "time"
)

const pullRequestLabelKey = "pull_request_label"

type Config struct {
	GithubAPIToken   string `toml:"github_api_token"`
	CheckpointFile   string `toml:"checkpoint_file"`
	LockFile         string `toml:"lock_file"`
	MetricsFile      string `toml:"metrics_file"`
	PullRequestLabel string `toml:"pull_request_label"`
	LogFormat        string `toml:"log_format"`
	LogLevel         string `toml:"log_level"`
	LogTimeKey       string `toml:"log_time_key"`
}

// Default returns the configuration that is used when no configuration file
// is specified.
func Default() *Config {
	return &Config{
		CheckpointFile:   DefCheckpointFile,
		LockFile:         DefLockFile,
		PullRequestLabel: batch.DefPullRequestLabel,
		LogFormat:        DefLogFormat,
		LogLevel:         DefLogLevel,
		LogTimeKey:       DefLogTimeKey,
	}
}

// Load parses a TOML configuration.
// Unset settings have their default values. pull_request_label can be set to
// an empty string to disable labelling.
func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	tree, err := toml.LoadBytes(data)
	if err != nil {
		return nil, err
	}

	if err := tree.Unmarshal(&result); err != nil {
		return nil, err
	}

	result.applyDefaults(!tree.Has(pullRequestLabelKey))

	return &result, nil
}

// LoadFile parses the TOML configuration file at path.
func LoadFile(fs afero.Fs, path string) (*Config, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	result, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s failed: %w", path, err)
	}

	return result, nil
}

func (c *Config) applyDefaults(labelUnset bool) {
	def := Default()

	if c.CheckpointFile == "" {
		c.CheckpointFile = def.CheckpointFile
	}

	if c.LockFile == "" {
		c.LockFile = def.LockFile
	}

	if labelUnset {
		c.PullRequestLabel = def.PullRequestLabel
	}

	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}

	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	if c.LogTimeKey == "" {
		c.LogTimeKey = def.LogTimeKey
	}
}
