package launcher

import (
	"github.com/rony4d/go-gauge-funder/flags"
)

var app = flags.NewApp("checkpoint and emission accounting for fundraising gauges")

func init() {
	app.Commands = commands()
}

// Launch parses args and runs the selected command.
func Launch(args []string) error {
	return app.Run(args)
}
