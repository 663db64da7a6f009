package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type Config struct {
	Level    string `yaml:"level"`
	ToFile   bool   `yaml:"to_file"`
	Filename string `yaml:"filename"`
}

var logging *logrus.Logger

func init() {
	logging = build(&Config{Level: "debug", ToFile: false})
}

// Init reconfigures the process logger from the loaded config. Components
// grab scoped entries with GetLogger().WithField afterwards.
func Init(cfg *Config) {
	if cfg == nil {
		return
	}
	logging = build(cfg)
}

func build(cfg *Config) *logrus.Logger {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	var out io.Writer = os.Stdout
	if cfg.ToFile {
		file, err := os.OpenFile(cfg.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			out = io.MultiWriter(os.Stdout, file)
		}
	}
	return &logrus.Logger{
		Out: out,
		Formatter: &logrus.TextFormatter{
			ForceColors:     true,
			TimestampFormat: "2006-01-02 15:04:05.000",
			FullTimestamp:   true,
		},
		Level: level,
	}
}

func GetLogger() *logrus.Logger {
	return logging
}
