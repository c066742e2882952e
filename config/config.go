// Package config loads the YAML configuration shared by the server and the
// trainer.
package config

import (
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"scorecast/logging"
	"scorecast/ml"
)

const FileName = "config.yaml"

// Config is the full service configuration, shared by the server and the trainer.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      logging.Config `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Model    ModelConfig    `yaml:"model"`
	Training TrainingConfig `yaml:"training"`
	Cache    CacheConfig    `yaml:"cache"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

// DatabaseConfig locates the sqlite history store. An empty path disables it.
type DatabaseConfig struct {
	Path string `yaml:"path"`
	// HistoryBuffer bounds the queue of predictions waiting to be stored.
	HistoryBuffer int `yaml:"history_buffer"`
}

// ModelConfig locates the artifact and sets the neighbor count.
type ModelConfig struct {
	Path      string `yaml:"path"`
	Neighbors int    `yaml:"neighbors"`
}

// TrainingConfig controls dataset parsing and the trainer run.
type TrainingConfig struct {
	DataPath      string        `yaml:"data_path"`
	Delimiter     string        `yaml:"delimiter"`
	Encoding      string        `yaml:"encoding"`
	Sentinel      string        `yaml:"sentinel"`
	TestRatio     float64       `yaml:"test_ratio"`
	Seed          int64         `yaml:"seed"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// CacheConfig sizes the prediction LRU. Zero disables it.
type CacheConfig struct {
	Size int `yaml:"size"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:           8080,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   1 << 20,
		},
		Log: logging.Config{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Database: DatabaseConfig{
			Path:          "data/scorecast.db",
			HistoryBuffer: 1024,
		},
		Model: ModelConfig{
			Path:      "models/knn.model",
			Neighbors: ml.DefaultNeighbors,
		},
		Training: TrainingConfig{
			DataPath:      "data/MICRODADOS_ENEM.csv",
			Delimiter:     ";",
			Encoding:      "iso-8859-1",
			Sentinel:      ml.DefaultSentinel,
			Seed:          42,
			WatchDebounce: 2 * time.Second,
		},
		Cache: CacheConfig{Size: 4096},
	}
}

// Find looks for name in the working directory, then in its parent. It
// returns "" when neither exists.
func Find(name string) string {
	if name == "" {
		name = FileName
	}
	for _, candidate := range []string{name, filepath.Join("..", name)} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Load reads path over the defaults. Relative paths inside the file are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file: %s", path)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "error unmarshalling config file: %s", path)
	}
	c.resolvePaths(filepath.Dir(path))
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config file: %s", path)
	}
	return c, nil
}

// LoadOrDefault loads the file Find locates, or returns the defaults when
// there is none. explicit, when set, must exist.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path := explicit
	if path == "" {
		path = Find(FileName)
	}
	if path == "" {
		return Default(), "", nil
	}
	c, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return c, path, nil
}

func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{&c.Database.Path, &c.Model.Path, &c.Training.DataPath, &c.Log.File} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.Model.Neighbors < 1 {
		return errors.Errorf("model.neighbors must be at least 1, got %d", c.Model.Neighbors)
	}
	if c.Training.TestRatio < 0 || c.Training.TestRatio >= 1 {
		return errors.Errorf("training.test_ratio must be in [0,1), got %v", c.Training.TestRatio)
	}
	if _, err := c.Training.DelimiterRune(); err != nil {
		return err
	}
	if c.Cache.Size < 0 {
		return errors.Errorf("cache.size must not be negative, got %d", c.Cache.Size)
	}
	return nil
}

// DelimiterRune returns the single-character field separator.
func (t TrainingConfig) DelimiterRune() (rune, error) {
	if t.Delimiter == "" {
		return ';', nil
	}
	if t.Delimiter == `\t` {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(t.Delimiter)
	if r == utf8.RuneError || size != len(t.Delimiter) {
		return 0, errors.Errorf("training.delimiter must be a single character, got %q", t.Delimiter)
	}
	return r, nil
}
