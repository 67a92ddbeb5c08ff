package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// POLLY_MERGE_BITBUCKET_URL.
const EnvPrefix = "POLLY_MERGE"

// Defaults.
const (
	DefaultTrigger  = "@polly"
	DefaultTimeout  = 10 * time.Second
	DefaultPageSize = 25
)

var (
	// ErrMissingToken is returned when no API token is configured.
	ErrMissingToken = errors.New("POLLY_MERGE_BITBUCKET_API_TOKEN is not set")

	// ErrMissingURL is returned when no Bitbucket URL is configured.
	ErrMissingURL = errors.New("POLLY_MERGE_BITBUCKET_URL is not set")
)

// Config is everything a run needs.
type Config struct {
	// APIToken is the user's personal access token. It needs write access
	// to merge.
	APIToken string `mapstructure:"bitbucket_api_token"`

	// BitbucketURL is the base URL of the server, e.g. https://bb.example.com.
	BitbucketURL string `mapstructure:"bitbucket_url"`

	// TriggerComment is the directive prefix, "@polly" by default.
	TriggerComment string `mapstructure:"trigger_comment"`

	// LogFile receives result lines in append mode. Empty means stdout.
	LogFile string `mapstructure:"log_file"`

	Timeout  time.Duration `mapstructure:"timeout"`
	PageSize int           `mapstructure:"page_size"`
	DryRun   bool          `mapstructure:"dry_run"`
	Verbose  bool          `mapstructure:"verbose"`
}

// Options controls where Load looks for configuration.
type Options struct {
	// ConfigFile is an optional YAML file. It must exist when set.
	ConfigFile string

	// EnvFile is a dotenv file loaded into the environment if it exists.
	// Variables already set are not overridden.
	EnvFile string

	// Flags are bound over file and environment values when changed.
	// Flag names are the keys with "-" for "_", plus "url" and "trigger".
	Flags *pflag.FlagSet
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"url":       "bitbucket_url",
	"trigger":   "trigger_comment",
	"log-file":  "log_file",
	"timeout":   "timeout",
	"page-size": "page_size",
	"dry-run":   "dry_run",
	"verbose":   "verbose",
}

var keys = []string{
	"bitbucket_api_token",
	"bitbucket_url",
	"trigger_comment",
	"log_file",
	"timeout",
	"page_size",
	"dry_run",
	"verbose",
}

// Load resolves configuration from, in increasing precedence: defaults,
// the config file, the environment (after the dotenv file), and changed
// flags. The result is validated.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("trigger_comment", DefaultTrigger)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("page_size", DefaultPageSize)
	v.SetDefault("dry_run", false)
	v.SetDefault("verbose", false)

	v.SetEnvPrefix(EnvPrefix)
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			flag := opts.Flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", opts.ConfigFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and normalises the rest.
func (c *Config) Validate() error {
	c.APIToken = strings.TrimSpace(c.APIToken)
	if c.APIToken == "" {
		return ErrMissingToken
	}

	c.BitbucketURL = strings.TrimRight(strings.TrimSpace(c.BitbucketURL), "/")
	if c.BitbucketURL == "" {
		return ErrMissingURL
	}
	u, err := url.Parse(c.BitbucketURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf(
			"invalid POLLY_MERGE_BITBUCKET_URL %q: expected http(s)://host",
			c.BitbucketURL,
		)
	}

	if strings.TrimSpace(c.TriggerComment) == "" {
		c.TriggerComment = DefaultTrigger
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	return nil
}
