package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"

	"indexer-engine/internal/testutil"
)

// chdir changes the working directory to dir and returns a func that
// restores it, matching config.Load's relative "config"/"." search paths.
func chdir(t *testing.T, dir string) func() {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	return func() {
		if err := os.Chdir(orig); err != nil {
			t.Fatalf("restore Chdir failed: %v", err)
		}
	}
}

func TestDurationHelpers(t *testing.T) {
	c := Config{
		IndexerHandlerTimeoutSecs: 2,
		DelayForServiceErrorMillis: 1500,
		DelayForEmptyPageMillis:    250,
	}
	if c.HandlerTimeout() != 2*time.Second {
		t.Fatalf("unexpected handler timeout: %v", c.HandlerTimeout())
	}
	if c.DelayForServiceError() != 1500*time.Millisecond {
		t.Fatalf("unexpected service error delay: %v", c.DelayForServiceError())
	}
	if c.DelayForEmptyPage() != 250*time.Millisecond {
		t.Fatalf("unexpected empty page delay: %v", c.DelayForEmptyPage())
	}
}

func TestLoadAppliesDefaultsAndFileOverrides(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	if err := sb.WriteFile("default.yaml", []byte(`
fuel_node: http://test-node:4000/graphql
node_graphql_page_size: 25
`), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	viper.Reset()
	origWd := chdir(t, sb.Root)
	defer origWd()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.FuelNode != "http://test-node:4000/graphql" {
		t.Fatalf("expected file override, got %q", cfg.FuelNode)
	}
	if cfg.NodeGraphQLPageSize != 25 {
		t.Fatalf("expected file override, got %d", cfg.NodeGraphQLPageSize)
	}
	// indexer_failed_calls was not set in the file; the default applies.
	if cfg.IndexerFailedCalls != 5 {
		t.Fatalf("expected default indexer_failed_calls=5, got %d", cfg.IndexerFailedCalls)
	}
}
