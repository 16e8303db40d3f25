package config_test

import (
	"path/filepath"
	"testing"

	"github.com/sarchlab/rvoo/config"
)

func TestDefaultValidates(t *testing.T) {
	if err := config.Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := config.DualIssueConfig()
	c.MemSpeculation = "aggressive"

	path := filepath.Join(t.TempDir(), "cfg.json")
	if err := c.SaveConfig(path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if loaded.Width != 2 || loaded.MemSpeculation != "aggressive" {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestValidateRejectsBadSpeculationMode(t *testing.T) {
	c := config.Default()
	c.MemSpeculation = "bogus"

	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error for bad mem_speculation")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := config.Default()
	clone := c.Clone()
	clone.Width = 999

	if c.Width == 999 {
		t.Fatalf("expected Clone to be independent of the original")
	}
}
