package preflight

import (
	"context"
	"fmt"
	"strings"

	"docgate/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	if cfg.Engine.ProfileDir != "" {
		results = append(results, CheckDirectoryAccess("Profile directory", cfg.Engine.ProfileDir))
	}

	results = append(results, CheckExecutable("Bridge agent", cfg.Engine.AgentCommand))
	results = append(results, CheckExecutable("Engine executable", cfg.Engine.Executable))

	results = append(results, CheckPortFree(ctx, "Gateway listener", cfg.RPCAddress()))
	results = append(results, CheckPortFree(ctx, "Engine bridge", cfg.EngineAddress()))
	if cfg.Server.APIBind != "" {
		results = append(results, CheckPortFree(ctx, "HTTP API listener", cfg.Server.APIBind))
	}

	return results
}

// Failures joins the details of every failed check, or returns nil.
func Failures(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(failed, "; "))
}
