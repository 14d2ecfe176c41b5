package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger. It is usable before Init is called so
// packages and tests never see a nil logger.
var Logger = logrus.New()

// Init configures Logger from the textual level ("debug", "info", ...) and
// format ("text" or "json"). Unknown levels fall back to info.
func Init(level, format string) {
	Logger = logrus.New()
	Logger.SetOutput(os.Stdout)
	if strings.EqualFold(format, "json") {
		Logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)
}

// Discard silences Logger. Tests call it to keep output readable.
func Discard() {
	Logger.SetOutput(io.Discard)
}
