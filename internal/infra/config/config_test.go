package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "allanime" {
		t.Errorf("provider = %q", cfg.Provider)
	}
	if cfg.Player.Command != "mpv" {
		t.Errorf("player = %q", cfg.Player.Command)
	}
	if cfg.Cache.Preload != 5 {
		t.Errorf("preload = %d", cfg.Cache.Preload)
	}
	if cfg.Fetch.FallbackTool != "curl" {
		t.Errorf("fallback tool = %q", cfg.Fetch.FallbackTool)
	}
	if cfg.History.Path == "" || cfg.Cache.Dir == "" {
		t.Error("paths not defaulted")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `provider: mangadex
cache:
  preload: 9
player:
  command: vlc
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "mangadex" || cfg.Cache.Preload != 9 || cfg.Player.Command != "vlc" {
		t.Errorf("cfg = %+v", cfg)
	}
	// Untouched keys keep their defaults.
	if cfg.Fetch.FallbackTool != "curl" {
		t.Errorf("fallback tool = %q", cfg.Fetch.FallbackTool)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("explicit missing config file should error")
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg.Provider = "nonsense"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown provider accepted")
	}
	cfg.Provider = "mangapill"
	if err := cfg.Validate(); err != nil {
		t.Errorf("mangapill rejected: %v", err)
	}

	cfg.Cache.Preload = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative preload accepted")
	}
}

func TestPlayerCommandEnvOverride(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	t.Setenv("ANV_PLAYER", "")
	if got := cfg.PlayerCommand(); got != "mpv" {
		t.Errorf("PlayerCommand = %q", got)
	}
	t.Setenv("ANV_PLAYER", "celluloid")
	if got := cfg.PlayerCommand(); got != "celluloid" {
		t.Errorf("PlayerCommand = %q", got)
	}
}
