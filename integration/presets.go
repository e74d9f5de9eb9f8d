package integration

import (
	"fmt"

	"github.com/rony4d/go-gauge-funder/emission"
)

// Package integration provides configuration presets and assembly helpers for
// running funders. Presets bundle the emission schedule, storage backend and
// keeper cadence into named profiles so operators do not have to tune each
// flag by hand.
//
// Usage:
//   cfg := integration.DevPreset()        // accelerated schedule, in-memory store
//   cfg := integration.ProductionPreset() // mainnet schedule, leveldb, journal on
//
// Each preset returns a PresetConfig that the launcher merges into its
// main config before CLI overrides are applied.

// PresetConfig captures the parameters that vary across profiles.
type PresetConfig struct {
	Name       string // human-readable identifier (e.g., "dev", "production")
	Network    string // emission rules preset: emission.MainNetName or emission.FakeNetName
	DBBackend  string // "leveldb" or "memory"
	CacheMB    int    // leveldb cache size
	Handles    int    // leveldb open file handles
	KeeperCron string // checkpoint cadence (cron spec with seconds)
	Journal    bool   // whether checkpoints are journaled to SQLite
}

func DefaultPreset() PresetConfig {
	return PresetConfig{
		Name:       "default",
		Network:    emission.MainNetName,
		DBBackend:  "leveldb",
		CacheMB:    64,
		Handles:    64,
		KeeperCron: "0 0 0 * * 4", // Thursdays, the week boundary of unix time
		Journal:    false,
	}
}

// DevPreset returns a profile for local development: the accelerated
// schedule, an in-memory store that vanishes on exit and a keeper that
// runs every minute.
func DevPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "dev"
	cfg.Network = emission.FakeNetName
	cfg.DBBackend = "memory"
	cfg.CacheMB = 0
	cfg.Handles = 0
	cfg.KeeperCron = "0 * * * * *"
	return cfg
}

// ProductionPreset returns a profile for long-running keepers: the mainnet
// schedule, a larger leveldb cache and the checkpoint journal enabled.
func ProductionPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "production"
	cfg.CacheMB = 256
	cfg.Handles = 256
	cfg.KeeperCron = "0 0 * * * *"
	cfg.Journal = true
	return cfg
}

// GetPresetByName looks up a preset by name.
//
// Example:
//
//	preset, err := integration.GetPresetByName("dev")
//	if err != nil {
//	    log.Fatal(err)
//	}
func GetPresetByName(name string) (PresetConfig, error) {
	switch name {
	case "dev":
		return DevPreset(), nil
	case "production":
		return ProductionPreset(), nil
	case "default":
		return DefaultPreset(), nil
	default:
		return PresetConfig{}, fmt.Errorf("unknown preset: %q (valid: dev, production, default)", name)
	}
}

// ApplyPreset merges preset into target. Non-zero preset fields win; the
// journal switch is always applied.
func ApplyPreset(target *PresetConfig, preset PresetConfig) {
	if preset.Network != "" {
		target.Network = preset.Network
	}
	if preset.DBBackend != "" {
		target.DBBackend = preset.DBBackend
	}
	if preset.CacheMB > 0 {
		target.CacheMB = preset.CacheMB
	}
	if preset.Handles > 0 {
		target.Handles = preset.Handles
	}
	if preset.KeeperCron != "" {
		target.KeeperCron = preset.KeeperCron
	}
	target.Journal = preset.Journal
	if preset.Name != "" {
		target.Name = preset.Name
	}
}

// RulesByName returns the emission rules preset called name.
func RulesByName(name string) (emission.Rules, error) {
	switch name {
	case emission.MainNetName:
		return emission.MainNetRules(), nil
	case emission.FakeNetName:
		return emission.FakeNetRules(), nil
	default:
		return emission.Rules{}, fmt.Errorf("unknown network: %q (valid: %s, %s)", name, emission.MainNetName, emission.FakeNetName)
	}
}
