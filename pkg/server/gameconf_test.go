package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "goweave.yaml")
	data := `
name: testweave
addr: ":9001"
db: world.db
journal: journal.db
start_world: w1
start_location: start
global_scope: s1
tick_limit: 500
cors_origins:
  - https://example.org
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	conf, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if conf.Name != "testweave" || conf.Addr != ":9001" {
		t.Errorf("identity = %q %q", conf.Name, conf.Addr)
	}
	if conf.DBPath != filepath.Join(dir, "world.db") {
		t.Errorf("db path = %q, want resolved against the config dir", conf.DBPath)
	}
	if conf.JournalPath != filepath.Join(dir, "journal.db") {
		t.Errorf("journal path = %q", conf.JournalPath)
	}
	if conf.StartWorld != "w1" || conf.StartLocation != "start" {
		t.Errorf("start position = %q %q", conf.StartWorld, conf.StartLocation)
	}
	if conf.GlobalScopeID() != "s1" {
		t.Errorf("global scope = %q", conf.GlobalScopeID())
	}
	if conf.TickLimit != 500 {
		t.Errorf("tick limit = %d", conf.TickLimit)
	}
	// Unset fields keep their defaults.
	if conf.JournalRetention != 86400 {
		t.Errorf("journal retention = %d", conf.JournalRetention)
	}
}

func TestLoadConfigAbsolutePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "goweave.yaml")
	abs := filepath.Join(dir, "elsewhere", "world.db")
	if err := os.WriteFile(path, []byte("db: "+abs+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	conf, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if conf.DBPath != abs {
		t.Errorf("db path = %q, want %q untouched", conf.DBPath, abs)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Errorf("missing file: expected an error")
	}
}
