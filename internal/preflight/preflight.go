package preflight

import (
	"context"

	"artstudio/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// The Gemini check makes one network call and is skipped when no key is set.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Upload directory", cfg.UploadDir()),
		CheckDirectoryAccess("Render directory", cfg.RenderDir()),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	if cfg.HasGeminiKey() {
		results = append(results, CheckGemini(ctx, cfg.Gemini))
	} else {
		results = append(results, Result{Name: geminiCheckName, Detail: "API key missing (set GEMINI_API_KEY)"})
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
