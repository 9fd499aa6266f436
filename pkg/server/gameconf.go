package server

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/weaveworld/goweave/pkg/worlddb"
	"gopkg.in/yaml.v3"
)

// Config holds server configuration, loaded from a YAML file.
type Config struct {
	// --- Identity ---
	Name string `yaml:"name"`
	Addr string `yaml:"addr"`

	// --- Storage ---
	DBPath      string `yaml:"db"`
	JournalPath string `yaml:"journal"`
	// JournalRetention is how long journaled events are kept, in
	// seconds. 0 disables the cleanup sweep.
	JournalRetention int `yaml:"journal_retention"`

	// --- Starting position ---
	// StartWorld and StartLocation name where a player with no pending
	// destination and no preferred portal lands on portin.
	StartWorld    string `yaml:"start_world"`
	StartLocation string `yaml:"start_location"`
	// GlobalScope is the scope id used for "global" portal destinations.
	GlobalScope string `yaml:"global_scope"`

	// --- Script limits ---
	TickLimit  int `yaml:"tick_limit"`
	StackLimit int `yaml:"stack_limit"`

	// --- Web ---
	CORSOrigins []string `yaml:"cors_origins"`
	StaticDir   string   `yaml:"static_dir"`
}

// DefaultConfig returns a Config with workable defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:             "goweave",
		Addr:             ":4001",
		JournalRetention: 86400,
		TickLimit:        0, // 0 means the task package default
		StackLimit:       0,
	}
}

// LoadConfig loads a YAML config file over the defaults. Relative
// storage paths are resolved against the config file's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	conf := DefaultConfig()
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	baseDir := filepath.Dir(path)
	if conf.DBPath != "" && !filepath.IsAbs(conf.DBPath) {
		conf.DBPath = filepath.Join(baseDir, conf.DBPath)
	}
	if conf.JournalPath != "" && !filepath.IsAbs(conf.JournalPath) {
		conf.JournalPath = filepath.Join(baseDir, conf.JournalPath)
	}
	return conf, nil
}

// GlobalScopeID returns the configured global scope id.
func (c *Config) GlobalScopeID() worlddb.ScopeID {
	return worlddb.ScopeID(c.GlobalScope)
}

// WatchConfig starts an fsnotify watcher on the config file. When the
// file is rewritten, it is reloaded and passed to apply on whatever
// goroutine the watcher runs. Editors often replace rather than write,
// so the watch covers the directory and filters by name.
func WatchConfig(path string, apply func(*Config)) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: resolving %s: %w", path, err)
	}

	// Coalesce bursts of events; a rewrite produces several.
	var mu sync.Mutex
	var pending *time.Timer

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Base(event.Name) != filepath.Base(absPath) {
					continue
				}
				mu.Lock()
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(250*time.Millisecond, func() {
					conf, err := LoadConfig(absPath)
					if err != nil {
						log.Printf("config: reload failed: %v", err)
						return
					}
					log.Printf("config: reloaded %s", absPath)
					apply(conf)
				})
				mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("config: watcher error: %v", err)
			}
		}
	}()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watching %s: %w", filepath.Dir(absPath), err)
	}
	return watcher, nil
}
