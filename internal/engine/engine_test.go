package engine

import (
	"os"
	"path/filepath"
	"testing"

	"pfidx/internal/am"
)

func TestOpenWiresAllLayers(t *testing.T) {
	e := Open(Config{PoolSize: 8, ReplacementPolicy: "lru"})
	if e.PF == nil || e.SP == nil || e.AM == nil {
		t.Fatal("Open left a layer nil")
	}
}

func TestCountersReflectIndexActivity(t *testing.T) {
	e := Open(Config{PoolSize: 8})
	base := filepath.Join(t.TempDir(), "idx")
	if err := e.AM.CreateIndex(base, 0, am.Int, 4); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	fid, err := e.AM.OpenIndex(base, 0)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	if err := e.AM.InsertEntry(fid, am.EncodeInt(1), 1); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}

	c := e.Counters()
	if c.LogicalRequests == 0 {
		t.Fatal("expected nonzero logical requests after index activity")
	}
	if c.PageAllocations == 0 {
		t.Fatal("expected at least one page allocation")
	}
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	if err := os.WriteFile(path, []byte("pool_size: 128\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.PoolSize != 128 {
		t.Fatalf("PoolSize = %d, want 128", cfg.PoolSize)
	}
	if cfg.ReplacementPolicy != "lru" {
		t.Fatalf("ReplacementPolicy = %q, want default lru", cfg.ReplacementPolicy)
	}
}
