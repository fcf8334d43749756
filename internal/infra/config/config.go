package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Provider string        `mapstructure:"provider" yaml:"provider"`
	Player   PlayerConfig  `mapstructure:"player" yaml:"player"`
	Cache    CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Fetch    FetchConfig   `mapstructure:"fetch" yaml:"fetch"`
	History  HistoryConfig `mapstructure:"history" yaml:"history"`
	Log      LogConfig     `mapstructure:"log" yaml:"log"`
}

type PlayerConfig struct {
	// Command is the player binary. The ANV_PLAYER environment variable
	// overrides it, matching what users of mpv wrappers expect.
	Command string `mapstructure:"command" yaml:"command"`
}

type CacheConfig struct {
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Preload int    `mapstructure:"preload" yaml:"preload"`
}

type FetchConfig struct {
	// FallbackTool is the external downloader used when the managed HTTP
	// client fails, and for all background/lazy fills.
	FallbackTool string `mapstructure:"fallback_tool" yaml:"fallback_tool"`
}

type HistoryConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

// Load reads the optional YAML config and applies ANV_* environment
// overrides. A missing file is fine; defaults cover everything.
func Load(path string) (*Config, error) {
	v := viper.New()

	cacheBase, err := os.UserCacheDir()
	if err != nil {
		cacheBase = "."
	}
	dataBase, err := os.UserConfigDir()
	if err != nil {
		dataBase = "."
	}

	v.SetDefault("provider", "allanime")
	v.SetDefault("player.command", "mpv")
	v.SetDefault("cache.dir", filepath.Join(cacheBase, "anv"))
	v.SetDefault("cache.preload", 5)
	v.SetDefault("fetch.fallback_tool", "curl")
	v.SetDefault("history.path", filepath.Join(dataBase, "anv", "history.db"))
	v.SetDefault("log.path", filepath.Join(dataBase, "anv", "anv.log"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("ANV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Cache.Preload < 0 {
		return fmt.Errorf("cache.preload must not be negative")
	}
	if c.Player.Command == "" {
		return fmt.Errorf("player.command must not be empty")
	}
	if c.Fetch.FallbackTool == "" {
		return fmt.Errorf("fetch.fallback_tool must not be empty")
	}
	switch c.Provider {
	case "allanime", "mangadex", "mangapill":
	default:
		return fmt.Errorf("unknown provider %q (expected allanime, mangadex or mangapill)", c.Provider)
	}
	return nil
}

// PlayerCommand resolves the player binary, preferring the ANV_PLAYER
// environment variable over the configured command.
func (c *Config) PlayerCommand() string {
	if env := strings.TrimSpace(os.Getenv("ANV_PLAYER")); env != "" {
		return env
	}
	return c.Player.Command
}
