package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// ErrMissingToken é retornado quando o token do bot não foi configurado.
var ErrMissingToken = errors.New("variavel de ambiente TELEGRAM_BOT_TOKEN nao encontrada")

type Config struct {
	Token       string         `mapstructure:"bot_token"`
	DataDir     string         `mapstructure:"data_dir"`
	DatabaseURL string         `mapstructure:"database_url"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Log         LogConfig      `mapstructure:"log"`
	Search      SearchConfig   `mapstructure:"search"`
	Parser      ParserConfig   `mapstructure:"parser"`
	Ingest      IngestConfig   `mapstructure:"ingest"`
	Webhook     WebhookConfig  `mapstructure:"webhook"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Sessions    SessionsConfig `mapstructure:"sessions"`
}

type StorageConfig struct {
	Driver   string `mapstructure:"driver"`
	BoltPath string `mapstructure:"bolt_path"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type SearchConfig struct {
	MaxResults  int     `mapstructure:"max_results"`
	FuzzyCutoff float64 `mapstructure:"fuzzy_cutoff"`
}

type ParserConfig struct {
	LooseSeparators bool `mapstructure:"loose_separators"`
}

type IngestConfig struct {
	Notes bool `mapstructure:"notes"`
}

type WebhookConfig struct {
	URL    string `mapstructure:"url"`
	Listen string `mapstructure:"listen"`
	Ngrok  bool   `mapstructure:"ngrok"`
}

type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type SessionsConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot_token", "")
	v.SetDefault("data_dir", ".")
	v.SetDefault("database_url", "")
	v.SetDefault("storage.driver", "json")
	v.SetDefault("storage.bolt_path", "")
	v.SetDefault("log.file", "study_bot.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.fuzzy_cutoff", 0.6)
	v.SetDefault("parser.loose_separators", false)
	v.SetDefault("ingest.notes", false)
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.listen", ":8080")
	v.SetDefault("webhook.ngrok", false)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("sessions.ttl", 30*time.Minute)
}

// Load carrega o .env (se existir), o arquivo de configuração e as variáveis
// STUDYBOT_*. Com file vazio procura studybot.yaml no diretório atual.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("erro ao carregar o arquivo .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("STUDYBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("erro ao ler %s: %w", file, err)
		}
	} else {
		v.SetConfigName("studybot")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("erro ao ler configuração: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("erro ao decodificar configuração: %w", err)
	}

	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Token = token
	}
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDerived preenche o que depende de outras chaves.
func (c *Config) applyDerived() {
	if c.Storage.BoltPath == "" {
		c.Storage.BoltPath = filepath.Join(c.DataDir, "studybot.db")
	}
}

// SetDataDir troca o diretório de dados (flag --data-dir).
func (c *Config) SetDataDir(dir string) {
	if c.Storage.BoltPath == filepath.Join(c.DataDir, "studybot.db") {
		c.Storage.BoltPath = filepath.Join(dir, "studybot.db")
	}
	c.DataDir = dir
}

// Validate verifica as chaves que não têm como ser corrigidas sozinhas.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "json", "bolt":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: storage.driver postgres requer database_url")
		}
	default:
		return fmt.Errorf("config: storage.driver %q invalido (use json, bolt ou postgres)", c.Storage.Driver)
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir nao pode ser vazio")
	}
	if c.Search.MaxResults < 1 {
		return fmt.Errorf("config: search.max_results deve ser maior que zero")
	}
	if c.Search.FuzzyCutoff <= 0 || c.Search.FuzzyCutoff > 1 {
		return fmt.Errorf("config: search.fuzzy_cutoff deve estar entre 0 e 1")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	if c.Sessions.TTL < 0 {
		return fmt.Errorf("config: sessions.ttl nao pode ser negativo")
	}
	return nil
}

// RequireToken falha se o token do bot não estiver configurado.
func (c *Config) RequireToken() error {
	if c.Token == "" {
		return ErrMissingToken
	}
	return nil
}
