package launcher

import (
	"github.com/rony4d/go-gauge-funder/integration"
)

// Defaults bundles the baseline values the launcher uses before presets,
// config files and flags override them.

type Defaults struct {
	DataDir        string // root for chaindata and the checkpoint journal
	Preset         string // profile applied on top of these defaults
	Oracle         string // relative weight source (table or constant)
	ConstantWeight string // weight served by the constant oracle, 1e18 scale
	RegistryAddr   string // factory address instance addresses derive from
	JournalFile    string // journal file name used when a preset turns journaling on
	Logging        LoggingDefaults
}

// LoggingDefaults controls log verbosity/format.
type LoggingDefaults struct {
	Verbosity int    // 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace
	Format    string // text or json
	Color     bool
}

func DefaultConfig() Defaults {
	return Defaults{
		DataDir:        "~/.gauge-funder",
		Preset:         "default",
		Oracle:         integration.OracleTable,
		ConstantWeight: "1000000000000000000",
		RegistryAddr:   "0x0000000000000000000000000000000000000fac",
		JournalFile:    "journal.db",
		Logging: LoggingDefaults{
			Verbosity: 3,
			Format:    "text",
			Color:     false,
		},
	}
}
