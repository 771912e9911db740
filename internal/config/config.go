package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "NERDEMO"

type Server struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
	SessionTTL      time.Duration `mapstructure:"session_ttl" validate:"gte=0"`
}

// Model locates the model artifacts. An empty Dir resolves to the installed
// recommended model under Root, then to ./my_ner_model. Registry optionally
// replaces the built-in model registry with a JSON file.
type Model struct {
	Dir      string `mapstructure:"dir"`
	Root     string `mapstructure:"root"`
	Registry string `mapstructure:"registry"`
}

type Inference struct {
	Backend     string        `mapstructure:"backend" validate:"oneof=python native remote"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MaxBytes    int           `mapstructure:"max_bytes" validate:"gte=0"`
	Tokenizer   string        `mapstructure:"tokenizer" validate:"oneof=wordpiece hf"`
	PythonBin   string        `mapstructure:"python_bin"`
	ORTLibrary  string        `mapstructure:"ort_library"`
	RemoteURL   string        `mapstructure:"remote_url" validate:"required_if=Backend remote"`
	RemoteToken string        `mapstructure:"remote_token"`
}

type Annotator struct {
	ExcludeTags []string `mapstructure:"exclude_tags"`
}

type Cache struct {
	Enabled   bool          `mapstructure:"enabled"`
	RedisAddr string        `mapstructure:"redis_addr" validate:"required_if=Enabled true"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db" validate:"gte=0"`
	TTL       time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

type Audit struct {
	Enabled bool   `mapstructure:"enabled"`
	File    string `mapstructure:"file"`
}

type Logging struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	File   string `mapstructure:"file"`
}

type Config struct {
	Server    Server    `mapstructure:"server"`
	Model     Model     `mapstructure:"model"`
	Inference Inference `mapstructure:"inference"`
	Annotator Annotator `mapstructure:"annotator"`
	Cache     Cache     `mapstructure:"cache"`
	Audit     Audit     `mapstructure:"audit"`
	Logging   Logging   `mapstructure:"logging"`
}

func Default() Config {
	return Config{
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8501,
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			SessionTTL:      30 * time.Minute,
		},
		Model: Model{
			Root: "~/.nerdemo/models",
		},
		Inference: Inference{
			Backend:   "python",
			Timeout:   30 * time.Second,
			MaxBytes:  32 * 1024,
			Tokenizer: "wordpiece",
			PythonBin: "python3",
		},
		Annotator: Annotator{ExcludeTags: []string{"O", "B-PER"}},
		Cache:     Cache{TTL: time.Hour},
		Audit:     Audit{File: "~/.nerdemo/annotations.jsonl"},
		Logging:   Logging{Level: "info", Format: "console"},
	}
}

func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".nerdemo", "config.yaml"), nil
}

// Load reads path (YAML), then NERDEMO_* environment variables and a .env file
// in the working directory. A missing file yields the defaults.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func EnsureConfigDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.session_ttl", d.Server.SessionTTL)
	v.SetDefault("model.dir", d.Model.Dir)
	v.SetDefault("model.root", d.Model.Root)
	v.SetDefault("model.registry", d.Model.Registry)
	v.SetDefault("inference.backend", d.Inference.Backend)
	v.SetDefault("inference.timeout", d.Inference.Timeout)
	v.SetDefault("inference.max_bytes", d.Inference.MaxBytes)
	v.SetDefault("inference.tokenizer", d.Inference.Tokenizer)
	v.SetDefault("inference.python_bin", d.Inference.PythonBin)
	v.SetDefault("inference.ort_library", d.Inference.ORTLibrary)
	v.SetDefault("inference.remote_url", d.Inference.RemoteURL)
	v.SetDefault("inference.remote_token", d.Inference.RemoteToken)
	v.SetDefault("annotator.exclude_tags", d.Annotator.ExcludeTags)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.password", d.Cache.Password)
	v.SetDefault("cache.db", d.Cache.DB)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.file", d.Audit.File)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
}

func (c *Config) normalize() {
	c.Model.Dir = expandHome(c.Model.Dir)
	c.Model.Root = expandHome(c.Model.Root)
	c.Model.Registry = expandHome(c.Model.Registry)
	c.Audit.File = expandHome(c.Audit.File)
	c.Logging.File = expandHome(c.Logging.File)
	c.Inference.Backend = strings.ToLower(strings.TrimSpace(c.Inference.Backend))
	c.Inference.Tokenizer = strings.ToLower(strings.TrimSpace(c.Inference.Tokenizer))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	tags := make([]string, 0, len(c.Annotator.ExcludeTags))
	for _, t := range c.Annotator.ExcludeTags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	c.Annotator.ExcludeTags = tags
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
