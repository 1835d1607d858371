package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Region         Region         `yaml:"region"`
	Sources        []Source       `yaml:"sources"`
	Scraper        Scraper        `yaml:"scraper"`
	Categorization Categorization `yaml:"categorization"`
	OCR            OCR            `yaml:"ocr"`
	Server         Server         `yaml:"server"`
	Output         Output         `yaml:"output"`
	Logging        Logging        `yaml:"logging"`
}

// Region describes the geographic area the pipeline curates events for.
// Cities feed the location resolver's ambiguity heuristic; the center
// coordinates are the last-resort fallback for unresolvable venues.
type Region struct {
	Name      string   `yaml:"name"`
	Cities    []string `yaml:"cities"`
	CenterLat float64  `yaml:"center_lat"`
	CenterLon float64  `yaml:"center_lon"`
}

// Source is a single scraping source. Options carries per-type settings
// (CSS selectors for html sources, field names for jsonapi sources, the
// venue key for venue sources).
type Source struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Type    string            `yaml:"type"`
	Enabled bool              `yaml:"enabled"`
	Options map[string]string `yaml:"options"`
}

type Scraper struct {
	MinDelayMs           int `yaml:"min_delay_ms"`
	MaxDelayMs           int `yaml:"max_delay_ms"`
	MaxRetries           int `yaml:"max_retries"`
	TimeoutSeconds       int `yaml:"timeout_seconds"`
	Workers              int `yaml:"workers"`
	CycleDeadlineMinutes int `yaml:"cycle_deadline_minutes"`
	MaxDescriptionLength int `yaml:"max_description_length"`
}

type Categorization struct {
	URL            string `yaml:"url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MinIntervalMs  int    `yaml:"min_interval_ms"`
}

type OCR struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for eventpipe.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "eventpipe")
}

// DataDir returns the XDG data directory for eventpipe.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "eventpipe")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/eventpipe/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'eventpipe init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Region: Region{
			Name:      "Hochfranken",
			Cities:    []string{"Hof", "Selb", "Rehau", "Naila", "Münchberg", "Schwarzenbach", "Oberkotzau"},
			CenterLat: 50.3135,
			CenterLon: 11.9128,
		},
		Scraper: Scraper{
			MinDelayMs:           800,
			MaxDelayMs:           2500,
			MaxRetries:           3,
			TimeoutSeconds:       15,
			Workers:              4,
			CycleDeadlineMinutes: 30,
			MaxDescriptionLength: 600,
		},
		Categorization: Categorization{
			URL:            "http://localhost:11434",
			Model:          "qwen2.5:7b",
			TimeoutSeconds: 20,
			MinIntervalMs:  500,
		},
		OCR: OCR{
			Enabled:        false,
			URL:            "http://localhost:11434",
			Model:          "llava:13b",
			TimeoutSeconds: 60,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// EnabledSources returns the sources that are enabled, preserving order.
func (c *Config) EnabledSources() []Source {
	var out []Source
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks a single source descriptor. An invalid descriptor
// aborts only that source's processing, never the run.
func (s Source) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("source has no name")
	}
	if s.Type == "" {
		return fmt.Errorf("source %s has no type", s.Name)
	}
	if s.URL == "" && s.Type != "venue" {
		return fmt.Errorf("source %s has no url", s.Name)
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
