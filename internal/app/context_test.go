package app_test

import (
	"context"
	"os"
	"testing"

	"homeline/internal/app"
	"homeline/internal/config"
	"homeline/internal/db"
	"homeline/internal/migrate"
	"homeline/internal/repo"
)

func newRepo(t *testing.T) (string, repo.Repo) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return workspace, repo.Repo{DB: conn}
}

func TestResolveSeedsDefault(t *testing.T) {
	workspace, r := newRepo(t)
	ctx := context.Background()

	schemeID, cfg, err := app.ResolveSchemeConfig(ctx, workspace, "", r)
	if err != nil {
		t.Fatal(err)
	}
	if schemeID != app.DefaultSchemeID || cfg == nil {
		t.Fatalf("scheme = %s cfg = %v", schemeID, cfg)
	}
	// the seeded config is persisted for the next run
	stored, err := r.GetSchemeConfig(ctx, app.DefaultSchemeID)
	if err != nil {
		t.Fatalf("stored config: %v", err)
	}
	if stored.Officers.MaxSlots != cfg.Officers.MaxSlots {
		t.Fatalf("stored config differs")
	}
}

func TestResolveFileWinsAndSyncs(t *testing.T) {
	workspace, r := newRepo(t)
	ctx := context.Background()

	yaml := config.GenerateDefault("custom")
	if err := os.WriteFile(config.Path(workspace), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	schemeID, cfg, err := app.ResolveSchemeConfig(ctx, workspace, "", r)
	if err != nil {
		t.Fatal(err)
	}
	if schemeID != "custom" {
		t.Fatalf("scheme = %s, want custom", schemeID)
	}
	if cfg.Scheme.ID != "custom" {
		t.Fatalf("cfg scheme = %s", cfg.Scheme.ID)
	}
	if _, err := r.GetSchemeConfig(ctx, "custom"); err != nil {
		t.Fatalf("file config not synced to db: %v", err)
	}
}

func TestResolveOverride(t *testing.T) {
	workspace, r := newRepo(t)
	ctx := context.Background()

	schemeID, _, err := app.ResolveSchemeConfig(ctx, workspace, "pilot", r)
	if err != nil {
		t.Fatal(err)
	}
	if schemeID != "pilot" {
		t.Fatalf("scheme = %s, want pilot", schemeID)
	}
	if _, err := r.GetSchemeConfig(ctx, "pilot"); err != nil {
		t.Fatalf("override scheme not seeded: %v", err)
	}
}
