package app

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func SetupLogging(config LoggingConfig) error {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return errors.Wrap(err, "parse log level")
	}

	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	switch config.Format {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(new(logrus.JSONFormatter))
	default:
		return errors.Errorf("unsupported log format: %s", config.Format)
	}

	return nil
}
