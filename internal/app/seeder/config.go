package seeder

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/heartmarshall/oeisdb/internal/domain"
)

// Config holds seeder pipeline settings.
type Config struct {
	Query       string `yaml:"query"        env:"SEEDER_QUERY"        env-default:"keyword:nice"`
	RawPath     string `yaml:"raw_path"     env:"SEEDER_RAW_PATH"     env-default:"./data/entries.jsonl"`
	DatasetPath string `yaml:"dataset_path" env:"SEEDER_DATASET_PATH" env-default:"./data/entries.mjs"`
	TextPath    string `yaml:"text_path"    env:"SEEDER_TEXT_PATH"`
	// Indices, when set, makes the entries phase fetch exactly these records.
	Indices   []string `yaml:"indices"      env:"SEEDER_INDICES"      env-separator:","`
	TermCount int      `yaml:"term_count"   env:"SEEDER_TERM_COUNT"   env-default:"10"`
	BatchSize int      `yaml:"batch_size"   env:"SEEDER_BATCH_SIZE"   env-default:"500"`
	DryRun    bool     `yaml:"dry_run"      env:"SEEDER_DRY_RUN"`
}

// LoadConfig reads seeder configuration from a YAML file and environment variables.
// Priority: ENV > YAML > defaults (via env-default tags).
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("seeder config: file %s not found", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("seeder config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("seeder config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("seeder config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings every phase relies on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Query) == "" && c.TextPath == "" && len(c.Indices) == 0 {
		return fmt.Errorf("query is required unless text_path or indices is set")
	}
	for _, idx := range c.Indices {
		if !domain.ValidIndex(idx) {
			return fmt.Errorf("indices: %q is not an A-number", idx)
		}
	}
	if c.TermCount <= 0 {
		return fmt.Errorf("term_count must be > 0 (got %d)", c.TermCount)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.RawPath == "" {
		return fmt.Errorf("raw_path is required")
	}
	if c.DatasetPath == "" {
		return fmt.Errorf("dataset_path is required")
	}
	return nil
}
