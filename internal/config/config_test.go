package config_test

import (
	"os"
	"strings"
	"testing"

	"backbeat/internal/config"
)

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault("demo")))
	if err != nil {
		t.Fatalf("default template should validate: %v", err)
	}
	if cfg.Galaxy.ID != "demo" || cfg.Galaxy.Kind != "content-galaxy" {
		t.Fatalf("unexpected galaxy section: %+v", cfg.Galaxy)
	}
	if cfg.Scheduling.WindowWeeks != 4 || cfg.Scheduling.PostsPerWeek != 3 {
		t.Fatalf("unexpected scheduling defaults: %+v", cfg.Scheduling)
	}
	if !cfg.Features.SparsePromos || !cfg.Features.StrictInvariants {
		t.Fatalf("feature defaults should be on: %+v", cfg.Features)
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()

	if _, err := config.Load(dir); err == nil || !strings.Contains(err.Error(), "bb galaxy config import") {
		t.Fatalf("missing config should point at the import command, got %v", err)
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("missing config is not an error for LoadOptional: %v %v", cfg, err)
	}

	path := config.Path(dir)
	if err := os.WriteFile(path, []byte(config.GenerateDefault("demo")), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	loaded, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Galaxy.ID != "demo" {
		t.Fatalf("unexpected galaxy id %q", loaded.Galaxy.ID)
	}
	fromFile, err := config.FromFile(path)
	if err != nil {
		t.Fatalf("from file: %v", err)
	}
	if fromFile.Galaxy.ID != loaded.Galaxy.ID {
		t.Fatalf("FromFile and Load disagree: %q vs %q", fromFile.Galaxy.ID, loaded.Galaxy.ID)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *config.Config { return config.Default("demo") }

	cfg := base()
	cfg.Scheduling.PostsPerWeek = 9
	if err := cfg.Validate(); err == nil {
		t.Fatalf("posts_per_week over 7 should fail")
	}

	cfg = base()
	cfg.Scheduling.PreferredDays = []string{"Caturday"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown weekday should fail")
	}

	cfg = base()
	cfg.Webhooks = []config.WebhookConfig{{}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("webhook without url should fail")
	}
}
