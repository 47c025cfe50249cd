package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    Server    `yaml:"server"`
	Sources   Sources   `yaml:"sources"`
	GitHub    GitHub    `yaml:"github"`
	AI        AI        `yaml:"ai"`
	Storage   Storage   `yaml:"storage"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Log       Log       `yaml:"log"`
}

type Server struct {
	Port int `yaml:"port"`
}

// Sources holds the metadata provider base URLs. Defaults point at the
// public npms.io and npm registry services.
type Sources struct {
	NpmsBaseURL      string `yaml:"npms_base_url"`
	RegistryBaseURL  string `yaml:"registry_base_url"`
	DownloadsBaseURL string `yaml:"downloads_base_url"`
}

// GitHub configures the source-hosting API client. Token is the
// optional server credential used for enrichment calls; it raises the
// anonymous rate limit and is overridden by GITHUB_TOKEN.
type GitHub struct {
	APIBaseURL string  `yaml:"api_base_url"`
	RawBaseURL string  `yaml:"raw_base_url"`
	Token      string  `yaml:"token"`
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
}

// AI configures the generative text client. A missing APIKey switches
// /api/ai responses to demo mode; GEMINI_API_KEY overrides the file
// value.
type AI struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
}

type Storage struct {
	Path string `yaml:"path"`
}

type RateLimit struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type Log struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Filename   string `yaml:"filename"`    // log file path
	MaxSize    int    `yaml:"max_size"`    // megabytes
	MaxBackups int    `yaml:"max_backups"` // number of backups
	MaxAge     int    `yaml:"max_age"`     // days
	Compress   bool   `yaml:"compress"`    // compress rotated files
}

var (
	config *Config
	once   sync.Once
)

// Load loads the configuration from the default config file
func Load() (*Config, error) {
	return LoadFromFile("config/config.yaml")
}

// LoadFromFile loads the configuration from the specified file
func LoadFromFile(path string) (*Config, error) {
	var loadErr error
	once.Do(func() {
		config = &Config{}
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = err
			return
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			loadErr = err
			return
		}
		applyDefaults(config)
		applyEnv(config)
		loadErr = os.MkdirAll(config.Storage.Path, 0755)
	})
	return config, loadErr
}

// Get returns the current configuration
func Get() *Config {
	return config
}

func applyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Sources.NpmsBaseURL == "" {
		c.Sources.NpmsBaseURL = "https://api.npms.io"
	}
	if c.Sources.RegistryBaseURL == "" {
		c.Sources.RegistryBaseURL = "https://registry.npmjs.org"
	}
	if c.Sources.DownloadsBaseURL == "" {
		c.Sources.DownloadsBaseURL = "https://api.npmjs.org"
	}
	if c.GitHub.APIBaseURL == "" {
		c.GitHub.APIBaseURL = "https://api.github.com"
	}
	if c.GitHub.RawBaseURL == "" {
		c.GitHub.RawBaseURL = "https://raw.githubusercontent.com"
	}
	if c.GitHub.RPS == 0 {
		c.GitHub.RPS = 5
	}
	if c.GitHub.Burst == 0 {
		c.GitHub.Burst = 10
	}
	if c.AI.BaseURL == "" {
		c.AI.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if c.AI.Model == "" {
		c.AI.Model = "gemini-1.5-flash"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data"
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 10
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Filename == "" {
		c.Log.Filename = "logs/npmtok.log"
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = 100
	}
}

// applyEnv lets deployment secrets override file values.
func applyEnv(c *Config) {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
}
