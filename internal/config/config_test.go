package config_test

import (
	"strings"
	"testing"

	"homeline/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default("test-scheme")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Scheme.ID != "test-scheme" {
		t.Fatalf("scheme id = %s", cfg.Scheme.ID)
	}
	if cfg.Eligibility.Married.MinAge != 21 || cfg.Eligibility.Single.MinAge != 35 {
		t.Fatalf("unexpected age thresholds %d/%d", cfg.Eligibility.Married.MinAge, cfg.Eligibility.Single.MinAge)
	}
	if cfg.Officers.MaxSlots != 10 {
		t.Fatalf("max slots = %d", cfg.Officers.MaxSlots)
	}
}

func TestGenerateDefaultRoundTrip(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault("s1")))
	if err != nil {
		t.Fatalf("generated yaml invalid: %v", err)
	}
	if !cfg.KnownUnitType("two_room") || cfg.Tier("five_room") != 4 {
		t.Fatalf("catalog not carried over: %+v", cfg.Units.Catalog)
	}
}

func TestUnitTypeNamesOrder(t *testing.T) {
	cfg := config.Default("s1")
	names := cfg.UnitTypeNames()
	want := []string{"two_room", "three_room", "four_room", "five_room"}
	if len(names) != len(want) {
		t.Fatalf("names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestSingleTierAllowed(t *testing.T) {
	cfg := config.Default("s1")
	if !cfg.SingleTierAllowed(1) || cfg.SingleTierAllowed(2) {
		t.Fatalf("default single tiers should allow only tier 1")
	}
	// an empty list falls back to the smallest catalog tier
	cfg.Eligibility.Single.Tiers = nil
	if !cfg.SingleTierAllowed(1) || cfg.SingleTierAllowed(3) {
		t.Fatalf("fallback should allow only the smallest tier")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing scheme id", func(c *config.Config) { c.Scheme.ID = "" }, "scheme.id"},
		{"empty catalog", func(c *config.Config) { c.Units.Catalog = nil }, "catalog"},
		{"bad tier", func(c *config.Config) {
			c.Units.Catalog["two_room"] = config.UnitType{Tier: 0}
		}, "invalid tier"},
		{"unknown single tier", func(c *config.Config) {
			c.Eligibility.Single.Tiers = []int{9}
		}, "unknown tier"},
		{"zero married age", func(c *config.Config) { c.Eligibility.Married.MinAge = 0 }, "married.min_age"},
		{"zero max slots", func(c *config.Config) { c.Officers.MaxSlots = 0 }, "max_slots"},
		{"webhook without url", func(c *config.Config) {
			c.Webhooks = append(c.Webhooks, config.WebhookConfig{})
		}, "no url"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := config.Default("s1")
			c.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), c.want) {
				t.Fatalf("err = %v, want mention of %q", err, c.want)
			}
		})
	}
}

func TestFromYAMLInvalid(t *testing.T) {
	if _, err := config.FromYAML([]byte("scheme: [")); err == nil {
		t.Fatalf("expected yaml parse error")
	}
}
