package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"artstudio/internal/config"
)

func TestConfigInitShowAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, func(cfg *config.Config) {
		cfg.Gemini.APIKey = "very-secret-key"
	})

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Config path: "+env.configPath)
	requireContains(t, out, "Gemini key loaded: yes")
	requireContains(t, out, "Configuration valid")

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[gemini]")
	if strings.Contains(out, "very-secret-key") {
		t.Fatalf("expected key masked, got:\n%s", out)
	}

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestInvalidConfigFailsBeforeCommandRuns(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[gemini]\nimage_size = \"8K\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, err := runCLI(t, []string{"styles"}, path)
	if err == nil || !strings.Contains(err.Error(), "gemini.image_size") {
		t.Fatalf("expected validation error, got %v", err)
	}
}
