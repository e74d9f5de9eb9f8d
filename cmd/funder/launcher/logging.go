package launcher

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/log"
	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
)

var sentryLevels = []logrus.Level{
	logrus.PanicLevel,
	logrus.FatalLevel,
	logrus.ErrorLevel,
}

// setupLogging routes library logs (go-ethereum log) and operator output
// (logrus) to w according to cfg.
func setupLogging(cfg LoggingConfig, w io.Writer) (*logrus.Logger, error) {
	var format log.Format
	switch cfg.Format {
	case "json":
		format = log.JSONFormat()
	case "text", "":
		format = log.TerminalFormat(cfg.Color)
	default:
		return nil, fmt.Errorf("unknown log format: %q (valid: text, json)", cfg.Format)
	}
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(cfg.Verbosity), log.StreamHandler(w, format)))

	logger := logrus.New()
	logger.Out = w
	logger.Level = logrusLevel(cfg.Verbosity)
	if cfg.Format == "json" {
		logger.Formatter = &logrus.JSONFormatter{}
	} else {
		logger.Formatter = &logrus.TextFormatter{
			DisableColors: !cfg.Color,
			FullTimestamp: true,
		}
	}

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, sentryLevels)
		if err != nil {
			return nil, fmt.Errorf("sentry hook: %w", err)
		}
		logger.AddHook(hook)
	}
	return logger, nil
}

// logrusLevel maps the go-ethereum verbosity scale onto logrus levels.
func logrusLevel(verbosity int) logrus.Level {
	switch {
	case verbosity <= 0:
		return logrus.FatalLevel
	case verbosity == 1:
		return logrus.ErrorLevel
	case verbosity == 2:
		return logrus.WarnLevel
	case verbosity == 3:
		return logrus.InfoLevel
	case verbosity == 4:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}
