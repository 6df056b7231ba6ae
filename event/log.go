package event

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the logger shared by all packages.
var Log = logrus.New()

func init() {
	Log.SetOutput(os.Stderr)
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel applies the named log level, keeping the current one if name is unknown.
func SetLevel(name string) {
	if name == "" {
		return
	}
	level, err := logrus.ParseLevel(name)
	if err != nil {
		Log.Warnf("log: unknown level %q, keeping %s", name, Log.GetLevel())
		return
	}
	Log.SetLevel(level)
}
