// This file maps the CLI context and the YAML config file onto the launcher
// config and converts it into an integration.Config.

package launcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/urfave/cli.v1"
	"gopkg.in/yaml.v3"

	"github.com/rony4d/go-gauge-funder/integration"
	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/registry"
	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

var errBadAddress = errors.New("invalid address")

// Config aggregates every subsystem's configuration the launcher needs.
type Config struct {
	Node     NodeConfig     `yaml:"node"`
	Store    StoreConfig    `yaml:"store"`
	Emission EmissionConfig `yaml:"emission"`
	Registry RegistryConfig `yaml:"registry"`
	Keeper   KeeperConfig   `yaml:"keeper"`
}

type NodeConfig struct {
	DataDir string        `yaml:"datadir"`
	Preset  string        `yaml:"-"` // selected by --preset only
	Caller  string        `yaml:"caller"`
	Now     int64         `yaml:"now"` // fixed clock when non-zero
	Logging LoggingConfig `yaml:"logging"`
}

type LoggingConfig struct {
	Verbosity int    `yaml:"verbosity"`
	Format    string `yaml:"format"`
	Color     bool   `yaml:"color"`
	SentryDSN string `yaml:"sentry_dsn"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"`
	CacheMB int    `yaml:"cache_mb"`
	Handles int    `yaml:"handles"`
	Journal string `yaml:"journal"`
}

type EmissionConfig struct {
	Network string `yaml:"network"`
	Oracle  string `yaml:"oracle"`
	Weight  string `yaml:"weight"`
}

type RegistryConfig struct {
	Address        string `yaml:"address"`
	Owner          string `yaml:"owner"`
	Fallback       string `yaml:"fallback"`
	Implementation string `yaml:"implementation"`
	Funder         string `yaml:"funder"`
}

type KeeperConfig struct {
	Cron         string   `yaml:"cron"`
	Participants []string `yaml:"participants"`
}

func defaultConfig() Config {
	def := DefaultConfig()
	cfg := Config{
		Node: NodeConfig{
			DataDir: resolvePath(def.DataDir),
			Preset:  def.Preset,
			Logging: LoggingConfig{
				Verbosity: def.Logging.Verbosity,
				Format:    def.Logging.Format,
				Color:     def.Logging.Color,
			},
		},
		Emission: EmissionConfig{
			Oracle: def.Oracle,
			Weight: def.ConstantWeight,
		},
		Registry: RegistryConfig{
			Address: def.RegistryAddr,
		},
	}
	applyPreset(&cfg, integration.DefaultPreset())
	return cfg
}

// MakeAllConfigs merges defaults, the selected preset, an optional config
// file and CLI flag overrides into a single config struct, in that order.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()

	if isSet(ctx, "preset") {
		cfg.Node.Preset = stringOf(ctx, "preset")
	}
	preset, err := integration.GetPresetByName(cfg.Node.Preset)
	if err != nil {
		return cfg, err
	}
	applyPreset(&cfg, preset)

	if file := stringOf(ctx, "config"); file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to load config file %s: %w", file, err)
		}
	}

	applyCLIOverrides(ctx, &cfg)

	if cfg.Store.Backend != "memory" || cfg.Store.Journal != "" {
		if err := ensureDir(cfg.Node.DataDir); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func applyPreset(cfg *Config, p integration.PresetConfig) {
	cfg.Node.Preset = p.Name
	cfg.Emission.Network = p.Network
	cfg.Store.Backend = p.DBBackend
	cfg.Store.CacheMB = p.CacheMB
	cfg.Store.Handles = p.Handles
	cfg.Keeper.Cron = p.KeeperCron
	cfg.Store.Journal = ""
	if p.Journal {
		cfg.Store.Journal = DefaultConfig().JournalFile
	}
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	cfg.Node.DataDir = resolvePath(cfg.Node.DataDir)
	return nil
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if isSet(ctx, "datadir") {
		cfg.Node.DataDir = resolvePath(stringOf(ctx, "datadir"))
	}
	if isSet(ctx, "caller") {
		cfg.Node.Caller = stringOf(ctx, "caller")
	}
	if isSet(ctx, "now") {
		cfg.Node.Now = int64Of(ctx, "now")
	}

	if isSet(ctx, "log.format") {
		cfg.Node.Logging.Format = stringOf(ctx, "log.format")
	}
	if isSet(ctx, "log.verbosity") {
		cfg.Node.Logging.Verbosity = intOf(ctx, "log.verbosity")
	}
	if isSet(ctx, "log.color") {
		cfg.Node.Logging.Color = boolOf(ctx, "log.color")
	}
	if isSet(ctx, "sentry.dsn") {
		cfg.Node.Logging.SentryDSN = stringOf(ctx, "sentry.dsn")
	}

	if isSet(ctx, "db.backend") {
		cfg.Store.Backend = stringOf(ctx, "db.backend")
	}
	if isSet(ctx, "cache") {
		cfg.Store.CacheMB = intOf(ctx, "cache")
	}
	if isSet(ctx, "handles") {
		cfg.Store.Handles = intOf(ctx, "handles")
	}
	if isSet(ctx, "journal") {
		cfg.Store.Journal = stringOf(ctx, "journal")
	}

	if isSet(ctx, "network") {
		cfg.Emission.Network = stringOf(ctx, "network")
	}
	if isSet(ctx, "oracle") {
		cfg.Emission.Oracle = stringOf(ctx, "oracle")
	}
	if isSet(ctx, "oracle.weight") {
		cfg.Emission.Weight = stringOf(ctx, "oracle.weight")
	}

	if isSet(ctx, "registry.address") {
		cfg.Registry.Address = stringOf(ctx, "registry.address")
	}
	if isSet(ctx, "registry.owner") {
		cfg.Registry.Owner = stringOf(ctx, "registry.owner")
	}
	if isSet(ctx, "registry.fallback") {
		cfg.Registry.Fallback = stringOf(ctx, "registry.fallback")
	}
	if isSet(ctx, "registry.implementation") {
		cfg.Registry.Implementation = stringOf(ctx, "registry.implementation")
	}
	if isSet(ctx, "funder") {
		cfg.Registry.Funder = stringOf(ctx, "funder")
	}

	if isSet(ctx, "keeper.cron") {
		cfg.Keeper.Cron = stringOf(ctx, "keeper.cron")
	}
	if isSet(ctx, "keeper.participants") {
		cfg.Keeper.Participants = splitCSV(stringOf(ctx, "keeper.participants"))
	}
}

// Integration converts the launcher config into the assembly config.
func (cfg Config) Integration() (integration.Config, error) {
	rules, err := integration.RulesByName(cfg.Emission.Network)
	if err != nil {
		return integration.Config{}, err
	}
	out := integration.Config{
		DataDir:    cfg.Node.DataDir,
		DBBackend:  cfg.Store.Backend,
		CacheMB:    cfg.Store.CacheMB,
		Handles:    cfg.Store.Handles,
		Rules:      rules,
		OracleKind: cfg.Emission.Oracle,
	}
	if cfg.Emission.Oracle == integration.OracleConstant {
		if out.ConstantWeight, err = fixed.Parse(cfg.Emission.Weight); err != nil {
			return out, fmt.Errorf("oracle weight: %w", err)
		}
	}
	if cfg.Store.Journal != "" {
		out.JournalPath = cfg.Store.Journal
		if !filepath.IsAbs(out.JournalPath) {
			out.JournalPath = filepath.Join(cfg.Node.DataDir, out.JournalPath)
		}
	}
	if cfg.Node.Now != 0 {
		now := inter.Timestamp(cfg.Node.Now)
		out.Clock = func() inter.Timestamp { return now }
	}

	reg := registry.Config{Clock: out.Clock}
	for _, f := range []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"registry.address", cfg.Registry.Address, &reg.Address},
		{"registry.owner", cfg.Registry.Owner, &reg.Owner},
		{"registry.fallback", cfg.Registry.Fallback, &reg.FallbackReceiver},
		{"registry.implementation", cfg.Registry.Implementation, &reg.Implementation},
	} {
		if *f.dst, err = parseAddress(f.raw); err != nil {
			return out, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	out.Registry = reg
	return out, nil
}

// Caller is the address owner-only commands act as.
func (cfg Config) Caller() (common.Address, error) {
	return parseAddress(cfg.Node.Caller)
}

// KeeperParticipants parses the configured keeper participants.
func (cfg Config) KeeperParticipants() ([]common.Address, error) {
	out := make([]common.Address, 0, len(cfg.Keeper.Participants))
	for _, raw := range cfg.Keeper.Participants {
		addr, err := parseAddress(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// Every flag is registered on both the app and each command, so a value may
// live in either context.

func isSet(ctx *cli.Context, name string) bool {
	return ctx.IsSet(name) || ctx.GlobalIsSet(name)
}

func stringOf(ctx *cli.Context, name string) string {
	if ctx.IsSet(name) {
		return ctx.String(name)
	}
	if ctx.GlobalIsSet(name) {
		return ctx.GlobalString(name)
	}
	return ctx.String(name)
}

func intOf(ctx *cli.Context, name string) int {
	if !ctx.IsSet(name) && ctx.GlobalIsSet(name) {
		return ctx.GlobalInt(name)
	}
	return ctx.Int(name)
}

func int64Of(ctx *cli.Context, name string) int64 {
	if !ctx.IsSet(name) && ctx.GlobalIsSet(name) {
		return ctx.GlobalInt64(name)
	}
	return ctx.Int64(name)
}

func boolOf(ctx *cli.Context, name string) bool {
	if !ctx.IsSet(name) && ctx.GlobalIsSet(name) {
		return ctx.GlobalBool(name)
	}
	return ctx.Bool(name)
}

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %q", errBadAddress, raw)
	}
	return common.HexToAddress(raw), nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
