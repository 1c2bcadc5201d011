// Package config loads the service's layered configuration: a YAML file
// read with spf13/viper (the same direct-viper idiom used to parse label
// mutex groups), overlaid with environment variables, with an fsnotify
// watch so the file can be hot-reloaded without a restart. The baseline
// defaults ship embedded in the binary and are decoded with yaml.v3
// directly, independent of viper, the way a fixed main.yaml shipped
// alongside the original service.
package config

import (
	_ "embed"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the set of tunables this service reads. A watching Loader
// re-reads every field on each config file change; a Config value already
// copied out of Current keeps its old values.
type Config struct {
	HTTPAddr       string
	DBPath         string
	BlobRoot       string
	ReportCapacity int
	LogLevel       string
}

//go:embed default.yaml
var defaultYAML []byte

// defaults decodes the embedded baseline config. It panics on failure
// since default.yaml is a build-time asset, not user input.
func defaults() Config {
	var cfg Config
	raw := struct {
		HTTPAddr       string `yaml:"http_addr"`
		DBPath         string `yaml:"db_path"`
		BlobRoot       string `yaml:"blob_root"`
		ReportCapacity int    `yaml:"report_capacity"`
		LogLevel       string `yaml:"log_level"`
	}{}
	if err := yaml.Unmarshal(defaultYAML, &raw); err != nil {
		panic(fmt.Sprintf("config: decode embedded default.yaml: %v", err))
	}
	cfg.HTTPAddr = raw.HTTPAddr
	cfg.DBPath = raw.DBPath
	cfg.BlobRoot = raw.BlobRoot
	cfg.ReportCapacity = raw.ReportCapacity
	cfg.LogLevel = raw.LogLevel
	return cfg
}

// Loader owns a viper instance and the last-loaded Config, updated
// in-place (behind a lock) on every fsnotify write or create event.
type Loader struct {
	v      *viper.Viper
	logger *log.Logger

	mu      sync.RWMutex
	current Config

	watching atomic.Bool
}

// Load reads configPath (YAML) into a fresh Loader, falling back to
// defaults() for any key the file doesn't set. configPath may be empty,
// in which case only defaults and environment overrides apply.
func Load(configPath string) (*Loader, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("COMMENTSD")
	v.AutomaticEnv()

	d := defaults()
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("blob_root", d.BlobRoot)
	v.SetDefault("report_capacity", d.ReportCapacity)
	v.SetDefault("log_level", d.LogLevel)

	l := &Loader{v: v, logger: log.New(log.Writer(), "config: ", log.LstdFlags)}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	l.reload()
	return l, nil
}

func (l *Loader) reload() {
	cfg := Config{
		HTTPAddr:       l.v.GetString("http_addr"),
		DBPath:         l.v.GetString("db_path"),
		BlobRoot:       l.v.GetString("blob_root"),
		ReportCapacity: l.v.GetInt("report_capacity"),
		LogLevel:       l.v.GetString("log_level"),
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
}

// Current returns a snapshot of the loaded configuration.
func (l *Loader) Current() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// WatchForChanges starts an fsnotify watch on the config file (a no-op if
// the Loader was built without one) and reloads on every write or create
// event. A reload only refreshes the snapshot returned by Current; nothing
// is notified, so a component that copied its settings at startup keeps
// running with them.
func (l *Loader) WatchForChanges() error {
	if l.v.ConfigFileUsed() == "" {
		return nil
	}
	if !l.watching.CompareAndSwap(false, true) {
		return nil // already watching
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: start watcher: %w", err)
	}
	if err := watcher.Add(l.v.ConfigFileUsed()); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", l.v.ConfigFileUsed(), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := l.v.ReadInConfig(); err != nil {
						l.logger.Printf("reload failed: %v", err)
						continue
					}
					l.reload()
					l.logger.Printf("reloaded config from %s", event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Printf("watch error: %v", err)
			}
		}
	}()
	return nil
}
