package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/small-frappuccino/tasbot/pkg/errutil"
	"github.com/small-frappuccino/tasbot/pkg/log"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

// Environment overrides for the PIX block.
const (
	EnvPIXKey          = "PIX_KEY"
	EnvPIXMerchantName = "PIX_MERCHANT_NAME"
	EnvPIXMerchantCity = "PIX_MERCHANT_CITY"
)

// ConfigManager owns settings.yaml. Reads are served from memory; writes go
// through Update, which validates before persisting.
type ConfigManager struct {
	path string

	mu        sync.RWMutex
	settings  Settings
	lastSaved []byte
	loaded    bool
}

// --- Initialization & Persistence ---

// NewConfigManager creates a manager for path. Nothing is read until Load.
func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path, settings: DefaultSettings()}
}

// Path returns the settings file location.
func (mgr *ConfigManager) Path() string { return mgr.path }

// Load reads the file. A missing file is created with the defaults.
func (mgr *ConfigManager) Load() error {
	data, err := os.ReadFile(mgr.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return errutil.HandleConfigError("read", mgr.path, func() error { return err })
		}
		log.ApplicationLogger().Info("📝 Settings file not found; writing defaults", "path", mgr.path)
		mgr.mu.Lock()
		mgr.settings = DefaultSettings()
		mgr.loaded = true
		err = mgr.saveLocked()
		mgr.mu.Unlock()
		return err
	}

	s, err := decode(data)
	if err != nil {
		return errutil.HandleConfigError("parse", mgr.path, func() error { return err })
	}

	mgr.mu.Lock()
	mgr.settings = s
	mgr.loaded = true
	mgr.mu.Unlock()

	log.ApplicationLogger().Info("⚙️ Settings loaded",
		"path", mgr.path,
		"price_per_million", s.Pricing.PricePerMillion,
		"origins", len(s.Origins))
	return nil
}

// decode overlays the file on DefaultSettings, so keys the file omits keep their defaults.
func decode(data []byte) (Settings, error) {
	s := DefaultSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	s.fillDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Save writes the current settings.
func (mgr *ConfigManager) Save() error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.saveLocked()
}

// saveLocked writes to a temp file in the same directory and renames it over
// the target so readers never see a partial file.
func (mgr *ConfigManager) saveLocked() error {
	data, err := yaml.Marshal(mgr.settings)
	if err != nil {
		return errutil.HandleConfigError("encode", mgr.path, func() error { return err })
	}
	return errutil.HandleConfigError("write", mgr.path, func() error {
		dir := filepath.Dir(mgr.path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		tmp, err := os.CreateTemp(dir, filepath.Base(mgr.path)+".*.tmp")
		if err != nil {
			return err
		}
		tmpName := tmp.Name()
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return err
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return err
		}
		if err := os.Rename(tmpName, mgr.path); err != nil {
			os.Remove(tmpName)
			return err
		}
		mgr.lastSaved = data
		return nil
	})
}

// --- Access ---

// Snapshot returns a copy of the settings with PIX environment overrides applied.
func (mgr *ConfigManager) Snapshot() Settings {
	mgr.mu.RLock()
	s := mgr.settings.clone()
	mgr.mu.RUnlock()

	if v := strings.TrimSpace(os.Getenv(EnvPIXKey)); v != "" {
		s.PIX.Key = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPIXMerchantName)); v != "" {
		s.PIX.MerchantName = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPIXMerchantCity)); v != "" {
		s.PIX.MerchantCity = v
	}
	return s
}

// Pricing returns the current tariff.
func (mgr *ConfigManager) Pricing() transport.Pricing {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return mgr.settings.TransportPricing()
}

// Update applies fn to a copy, validates the result and persists it. On any
// error the in-memory settings are left untouched.
func (mgr *ConfigManager) Update(fn func(*Settings) error) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	next := mgr.settings.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	prev := mgr.settings
	mgr.settings = next
	if err := mgr.saveLocked(); err != nil {
		mgr.settings = prev
		return err
	}
	return nil
}

// UpdatePricing replaces the tariff and persists it.
func (mgr *ConfigManager) UpdatePricing(p transport.Pricing) error {
	if err := p.Validate(); err != nil {
		return NewValidationError("pricing", p, err.Error())
	}
	err := mgr.Update(func(s *Settings) error {
		s.Pricing = PricingSettings{
			PricePerMillion:       p.PricePerMillion,
			HighPrioritySurcharge: p.HighSurcharge,
			MinimumSilver:         p.MinimumSilver,
		}
		return nil
	})
	if err == nil {
		log.ApplicationLogger().Info("💰 Pricing updated",
			"price_per_million", p.PricePerMillion,
			"high_surcharge", p.HighSurcharge,
			"minimum_silver", p.MinimumSilver)
	}
	return err
}

// --- Hot reload ---

// Watch reloads the file whenever it changes on disk and calls onChange with the
// new snapshot. Writes made by Save itself are ignored. It blocks until ctx is done.
func (mgr *ConfigManager) Watch(ctx context.Context, onChange func(Settings)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return NewConfigError("watch", mgr.path, err)
	}
	defer w.Close()

	// Editors replace the file instead of writing in place, so watch the directory.
	dir := filepath.Dir(mgr.path)
	if err := w.Add(dir); err != nil {
		return NewConfigError("watch", dir, err)
	}
	target := filepath.Clean(mgr.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			changed, err := mgr.reload()
			if err != nil {
				log.ApplicationLogger().Warn("⚠️ Settings reload failed; keeping previous values", "path", mgr.path, "error", err)
				continue
			}
			if changed && onChange != nil {
				onChange(mgr.Snapshot())
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.ApplicationLogger().Warn("⚠️ Settings watcher error", "error", err)
		}
	}
}

func (mgr *ConfigManager) reload() (bool, error) {
	data, err := os.ReadFile(mgr.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	mgr.mu.RLock()
	same := bytes.Equal(data, mgr.lastSaved)
	mgr.mu.RUnlock()
	if same {
		return false, nil
	}

	s, err := decode(data)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", mgr.path, err)
	}

	mgr.mu.Lock()
	mgr.settings = s
	mgr.lastSaved = data
	mgr.mu.Unlock()

	log.ApplicationLogger().Info("🔁 Settings reloaded from disk", "path", mgr.path)
	return true, nil
}
