package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup configures the process-wide logrus logger.
// Unknown levels fall back to info, format "json" selects the JSON formatter.
func Setup(level, format string) {
	SetupTo(os.Stdout, level, format)
}

// SetupTo configures the global logrus logger to write to w.
func SetupTo(w io.Writer, level, format string) {
	logrus.SetOutput(w)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)

	if strings.EqualFold(strings.TrimSpace(format), "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000000Z07:00",
		})
		return
	}

	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "15:04:05.000000000",
		FullTimestamp:   true,
	})
}

// Peer returns an entry tagged with a remote peer identity.
func Peer(id string) *logrus.Entry {
	return logrus.WithField("peer", id)
}

// Conn returns an entry tagged with a relay connection identity.
func Conn(id string) *logrus.Entry {
	return logrus.WithField("conn", id)
}
