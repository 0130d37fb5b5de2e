package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultIsPopulated(t *testing.T) {
	cfg := Default()
	if cfg.MainBranchName != "main" {
		t.Errorf("MainBranchName = %q, want %q", cfg.MainBranchName, "main")
	}
	if cfg.DagDir == "" {
		t.Error("DagDir should not be empty")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.MainBranchName = "trunk"
	cfg.LogJSON = true

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.MainBranchName != "trunk" {
		t.Errorf("MainBranchName = %q, want %q", loaded.MainBranchName, "trunk")
	}
	if !loaded.LogJSON {
		t.Error("LogJSON = false, want true")
	}
}

func TestExpandPath(t *testing.T) {
	if got := expandPath(""); got != "" {
		t.Errorf("expandPath(\"\") = %q, want empty", got)
	}
	if got := expandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("expandPath(/abs/path) = %q, want unchanged", got)
	}
}
