package main

import (
	"encoding/json"
	"testing"

	"artstudio/internal/api"
	"artstudio/internal/config"
)

func TestStylesCommand(t *testing.T) {
	env := setupCLITestEnv(t, func(cfg *config.Config) {
		cfg.Studio.Styles = []string{"Oil Painting", "Pixel Art"}
		cfg.Studio.DefaultStyle = "Pixel Art"
	})

	out, _, err := runCLI(t, []string{"styles"}, env.configPath)
	if err != nil {
		t.Fatalf("styles: %v", err)
	}
	requireContains(t, out, "Oil Painting")
	requireContains(t, out, "Pixel Art")

	out, _, err = runCLI(t, []string{"styles", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("styles --json: %v", err)
	}
	var resp api.StylesResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if resp.Default != "Pixel Art" || len(resp.Styles) != 2 {
		t.Fatalf("unexpected styles payload: %+v", resp)
	}
}
