package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "http://127.0.0.1:4000" {
		t.Errorf("BaseURL = %q, want default", cfg.API.BaseURL)
	}
	if cfg.Poll.RouteStats != 1500*time.Millisecond {
		t.Errorf("RouteStats = %v, want 1.5s", cfg.Poll.RouteStats)
	}
	if cfg.Poll.Nodes != 5*time.Second || cfg.Poll.Pipelines != 5*time.Second {
		t.Errorf("Nodes/Pipelines = %v/%v, want 5s", cfg.Poll.Nodes, cfg.Poll.Pipelines)
	}
	if cfg.Poll.Dashboard != 30*time.Second {
		t.Errorf("Dashboard = %v, want 30s", cfg.Poll.Dashboard)
	}
}

func TestLoadOverridesAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srtconsole.yaml")
	data := []byte("api:\n  base_url: http://gw.local:4000\nsession:\n  driver: redis\npoll:\n  nodes: 10s\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvAPIURL, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "http://gw.local:4000" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Session.Driver != "redis" {
		t.Errorf("Driver = %q, want redis", cfg.Session.Driver)
	}
	if cfg.Poll.Nodes != 10*time.Second {
		t.Errorf("Nodes = %v, want 10s", cfg.Poll.Nodes)
	}
	// untouched keys keep defaults
	if cfg.Poll.Pipelines != 5*time.Second {
		t.Errorf("Pipelines = %v, want 5s", cfg.Poll.Pipelines)
	}

	t.Setenv(EnvAPIURL, "https://gw.example:8443")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://gw.example:8443" {
		t.Errorf("BaseURL with env = %q", cfg.API.BaseURL)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Defaults()
	cfg.Web.Port = 9999
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Web.Port != 9999 {
		t.Errorf("Port = %d, want 9999", got.Web.Port)
	}
}
