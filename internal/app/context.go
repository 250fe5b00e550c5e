package app

import (
	"context"
	"errors"

	"homeline/internal/config"
	"homeline/internal/repo"
)

// DefaultSchemeID names the scheme used when none is given.
const DefaultSchemeID = "default"

// ResolveSchemeConfig picks the active scheme and ensures a config
// exists for it. A homeline.yml in the workspace wins and is synced
// into the DB; otherwise the stored config is used, seeded from the
// defaults on first run.
func ResolveSchemeConfig(ctx context.Context, workspace, schemeOverride string, r repo.Repo) (string, *config.Config, error) {
	schemeID := schemeOverride
	if schemeID == "" {
		schemeID = DefaultSchemeID
	}
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}
	if fileCfg != nil {
		if schemeOverride == "" && fileCfg.Scheme.ID != "" {
			schemeID = fileCfg.Scheme.ID
		}
		if err := r.UpsertSchemeConfig(ctx, schemeID, fileCfg); err != nil {
			return "", nil, err
		}
		return schemeID, fileCfg, nil
	}
	cfg, err := r.GetSchemeConfig(ctx, schemeID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		cfg = config.Default(schemeID)
		if err := r.UpsertSchemeConfig(ctx, schemeID, cfg); err != nil {
			return "", nil, err
		}
	}
	return schemeID, cfg, nil
}
