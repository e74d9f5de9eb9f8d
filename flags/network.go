package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// EmissionFlags select the emission schedule and weight source.

func EmissionFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "network",
			Usage: "Emission rules preset (main|fake)",
		},
		cli.StringFlag{
			Name:  "oracle",
			Usage: "Relative weight source (table|constant)",
			Value: "table",
		},
		cli.StringFlag{
			Name:  "oracle.weight",
			Usage: "Weight served by the constant oracle (1e18 = 100%)",
			Value: "1000000000000000000",
		},
		cli.Int64Flag{
			Name:  "now",
			Usage: "Override the clock with a fixed unix timestamp",
		},
		cli.StringFlag{
			Name:  "caller",
			Usage: "Address the command acts as for owner-only operations",
		},
	}
}

// RegistryFlags isolates the factory bootstrap parameters.
func RegistryFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "registry.address",
			Usage: "Factory address that instance addresses are derived from",
			Value: "0x0000000000000000000000000000000000000fac",
		},
		cli.StringFlag{
			Name:  "registry.owner",
			Usage: "Initial factory owner",
		},
		cli.StringFlag{
			Name:  "registry.fallback",
			Usage: "Initial fallback receiver",
		},
		cli.StringFlag{
			Name:  "registry.implementation",
			Usage: "Initial implementation address",
		},
		cli.StringFlag{
			Name:  "funder",
			Usage: "Funder instance address (defaults to the only deployed one)",
		},
	}
}

// KeeperFlags tunes the background checkpoint keeper.
func KeeperFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "keeper.cron",
			Usage: "Checkpoint cadence as a cron spec with seconds",
		},
		cli.StringFlag{
			Name:  "keeper.participants",
			Usage: "Comma-separated participants to checkpoint besides the known ones",
		},
	}
}
