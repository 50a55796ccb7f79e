package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cleanEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("STUDYBOT_BOT_TOKEN", "")
	t.Setenv("STUDYBOT_DATA_DIR", "")
	t.Setenv("STUDYBOT_STORAGE_DRIVER", "")
}

func TestLoad_Defaults(t *testing.T) {
	cleanEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.DataDir)
	assert.Equal(t, "json", cfg.Storage.Driver)
	assert.Equal(t, filepath.Join(".", "studybot.db"), cfg.Storage.BoltPath)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, 0.6, cfg.Search.FuzzyCutoff)
	assert.Equal(t, ":8080", cfg.Webhook.Listen)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Token)
	assert.ErrorIs(t, cfg.RequireToken(), ErrMissingToken)
}

func TestLoad_Env(t *testing.T) {
	cleanEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("STUDYBOT_DATA_DIR", "/var/lib/studybot")
	t.Setenv("STUDYBOT_SEARCH_MAX_RESULTS", "10")
	t.Setenv("STUDYBOT_INGEST_NOTES", "true")
	t.Setenv("STUDYBOT_SESSIONS_TTL", "5m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Token)
	assert.NoError(t, cfg.RequireToken())
	assert.Equal(t, "/var/lib/studybot", cfg.DataDir)
	assert.Equal(t, filepath.Join("/var/lib/studybot", "studybot.db"), cfg.Storage.BoltPath)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.True(t, cfg.Ingest.Notes)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.TTL)
}

func TestLoad_PrefixedTokenFallback(t *testing.T) {
	cleanEnv(t)
	t.Setenv("STUDYBOT_BOT_TOKEN", "999:xyz")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "999:xyz", cfg.Token)
}

func TestLoad_File(t *testing.T) {
	cleanEnv(t)
	path := filepath.Join(t.TempDir(), "bot.yaml")
	content := `
data_dir: /data
storage:
  driver: bolt
  bolt_path: /data/kb.db
search:
  fuzzy_cutoff: 0.75
parser:
  loose_separators: true
webhook:
  url: https://bot.example.org/webhook
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data", cfg.DataDir)
	assert.Equal(t, "bolt", cfg.Storage.Driver)
	assert.Equal(t, "/data/kb.db", cfg.Storage.BoltPath)
	assert.Equal(t, 0.75, cfg.Search.FuzzyCutoff)
	assert.True(t, cfg.Parser.LooseSeparators)
	assert.Equal(t, "https://bot.example.org/webhook", cfg.Webhook.URL)
}

func TestLoad_DotEnv(t *testing.T) {
	cleanEnv(t)
	require.NoError(t, os.WriteFile(".env", []byte("TELEGRAM_BOT_TOKEN=from-dotenv\n"), 0o644))
	os.Unsetenv("TELEGRAM_BOT_TOKEN")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Token)
}

func TestLoad_MissingFile(t *testing.T) {
	cleanEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DataDir: ".",
			Storage: StorageConfig{Driver: "json"},
			Log:     LogConfig{Level: "info"},
			Search:  SearchConfig{MaxResults: 5, FuzzyCutoff: 0.6},
		}
	}
	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }},
		{"postgres without url", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"zero results", func(c *Config) { c.Search.MaxResults = 0 }},
		{"cutoff above one", func(c *Config) { c.Search.FuzzyCutoff = 1.5 }},
		{"cutoff zero", func(c *Config) { c.Search.FuzzyCutoff = 0 }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"negative ttl", func(c *Config) { c.Sessions.TTL = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}

	c := base()
	c.Storage.Driver = "postgres"
	c.DatabaseURL = "postgres://localhost/studybot"
	assert.NoError(t, c.Validate())
}

func TestSetDataDir(t *testing.T) {
	c := &Config{DataDir: "."}
	c.applyDerived()
	c.SetDataDir("/srv")
	assert.Equal(t, "/srv", c.DataDir)
	assert.Equal(t, filepath.Join("/srv", "studybot.db"), c.Storage.BoltPath)

	c = &Config{DataDir: ".", Storage: StorageConfig{BoltPath: "/custom.db"}}
	c.SetDataDir("/srv")
	assert.Equal(t, "/custom.db", c.Storage.BoltPath)
}
