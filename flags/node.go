package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// StoreFlags holds knobs for the local key-value store and checkpoint journal.

func StoreFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "db.backend",
			Usage: "Key-value backend (leveldb|memory)",
			Value: "leveldb",
		},
		cli.IntFlag{
			Name:  "cache",
			Usage: "Megabytes of memory allocated to the leveldb cache",
			Value: 64,
		},
		cli.IntFlag{
			Name:  "handles",
			Usage: "Number of open file handles for leveldb",
			Value: 64,
		},
		cli.StringFlag{
			Name:  "journal",
			Usage: "SQLite checkpoint journal path (relative to datadir, empty disables)",
		},
	}
}
