package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allEnv = []string{
	"POLLY_MERGE_BITBUCKET_API_TOKEN",
	"POLLY_MERGE_BITBUCKET_URL",
	"POLLY_MERGE_TRIGGER_COMMENT",
	"POLLY_MERGE_LOG_FILE",
	"POLLY_MERGE_TIMEOUT",
	"POLLY_MERGE_PAGE_SIZE",
	"POLLY_MERGE_DRY_RUN",
	"POLLY_MERGE_VERBOSE",
}

// clearEnv unsets every polly-merge variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnv {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("url", "", "")
	fs.String("trigger", DefaultTrigger, "")
	fs.String("log-file", "", "")
	fs.Duration("timeout", DefaultTimeout, "")
	fs.Int("page-size", DefaultPageSize, "")
	fs.Bool("dry-run", false, "")
	fs.Bool("verbose", false, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLLY_MERGE_BITBUCKET_API_TOKEN", "tok")
	t.Setenv("POLLY_MERGE_BITBUCKET_URL", "https://bb.example.com/")
	t.Setenv("POLLY_MERGE_TRIGGER_COMMENT", "@bors")
	t.Setenv("POLLY_MERGE_LOG_FILE", "/tmp/polly.log")
	t.Setenv("POLLY_MERGE_TIMEOUT", "30s")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, "tok", cfg.APIToken)
	assert.Equal(t, "https://bb.example.com", cfg.BitbucketURL)
	assert.Equal(t, "@bors", cfg.TriggerComment)
	assert.Equal(t, "/tmp/polly.log", cfg.LogFile)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.False(t, cfg.DryRun)
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLLY_MERGE_BITBUCKET_API_TOKEN", "tok")
	t.Setenv("POLLY_MERGE_BITBUCKET_URL", "https://bb.example.com")

	cfg, err := Load(Options{Flags: testFlags(t)})
	require.NoError(t, err)

	assert.Equal(t, DefaultTrigger, cfg.TriggerComment)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.Empty(t, cfg.LogFile)
}

func TestLoadMissingRequired(t *testing.T) {
	clearEnv(t)

	_, err := Load(Options{})
	assert.True(t, errors.Is(err, ErrMissingToken))

	t.Setenv("POLLY_MERGE_BITBUCKET_API_TOKEN", "tok")
	_, err = Load(Options{})
	assert.True(t, errors.Is(err, ErrMissingURL))
}

func TestLoadInvalidURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLLY_MERGE_BITBUCKET_API_TOKEN", "tok")
	t.Setenv("POLLY_MERGE_BITBUCKET_URL", "bb.example.com")

	_, err := Load(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid POLLY_MERGE_BITBUCKET_URL")
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLLY_MERGE_BITBUCKET_API_TOKEN", "tok")
	t.Setenv("POLLY_MERGE_BITBUCKET_URL", "https://env.example.com")
	t.Setenv("POLLY_MERGE_TRIGGER_COMMENT", "@env")

	cfg, err := Load(Options{Flags: testFlags(t,
		"--url", "https://flag.example.com",
		"--dry-run",
		"--page-size", "5",
	)})
	require.NoError(t, err)

	assert.Equal(t, "https://flag.example.com", cfg.BitbucketURL)
	assert.Equal(t, "@env", cfg.TriggerComment)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 5, cfg.PageSize)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLLY_MERGE_BITBUCKET_API_TOKEN", "tok")

	path := filepath.Join(t.TempDir(), "polly.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"bitbucket_url: https://file.example.com\n"+
			"trigger_comment: \"@file\"\n"+
			"page_size: 50\n",
	), 0o644))

	cfg, err := Load(Options{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com", cfg.BitbucketURL)
	assert.Equal(t, "@file", cfg.TriggerComment)
	assert.Equal(t, 50, cfg.PageSize)

	t.Setenv("POLLY_MERGE_PAGE_SIZE", "10")
	cfg, err = Load(Options{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.PageSize)
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(Options{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLLY_MERGE_BITBUCKET_URL", "https://kept.example.com")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"POLLY_MERGE_BITBUCKET_API_TOKEN=from-dotenv\n"+
			"POLLY_MERGE_BITBUCKET_URL=https://dotenv.example.com\n",
	), 0o600))

	cfg, err := Load(Options{EnvFile: path})
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", cfg.APIToken)
	assert.Equal(t, "https://kept.example.com", cfg.BitbucketURL)

	// A missing dotenv file is not an error.
	_, err = Load(Options{EnvFile: filepath.Join(t.TempDir(), ".env")})
	require.NoError(t, err)
}
