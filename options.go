package modelsync

import (
	"fmt"

	"github.com/jward/modelsync/internal/config"
	"github.com/jward/modelsync/internal/rules"
)

// OptionsFromConfig translates a project configuration into engine
// options. root resolves relative paths.
func OptionsFromConfig(root string, cfg *config.Config) ([]Option, error) {
	unloaded, err := rules.New(cfg.UnloadedModules, cfg.UnloadedRule)
	if err != nil {
		return nil, fmt.Errorf("modelsync: unloaded_rule: %w", err)
	}
	opts := []Option{
		WithConfigDir(cfg.ConfigDir),
		WithExternalStorage(cfg.ExternalStorage),
		WithUnloaded(unloaded),
	}
	if p := cfg.CachePath(root); p != "" {
		opts = append(opts, WithCache(p))
	}
	return opts, nil
}
