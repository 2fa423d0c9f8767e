// Package logger configures the global logrus logger.
package logger

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// DefaultConfig returns the default configuration of logger.
func DefaultConfig() *Config {
	return &Config{
		Level: "info",
		Color: true,
	}
}

// Config is the configuration of logger.
type Config struct {
	Level string `json:"level" yaml:"level"`
	Color bool   `json:"color" yaml:"color"`
	// JSON switches to the JSON formatter; Color is ignored then.
	JSON bool `json:"json,omitempty" yaml:"json,omitempty"`
}

// Validate reports an unparsable level.
func (c Config) Validate() []error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return []error{err}
	}
	return nil
}

// SetLogrus sets logrus globally.
func SetLogrus(c Config) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		panic(fmt.Sprintf("invalid log level: %s", c.Level))
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(Formatter(c))
}

// Formatter returns the formatter c selects.
func Formatter(c Config) logrus.Formatter {
	if c.JSON {
		return &logrus.JSONFormatter{}
	}
	return &logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   c.Color,
		DisableColors: !c.Color,
	}
}

// New returns a standalone logger writing to out, configured like SetLogrus
// configures the global one.
func New(c Config, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	log.SetFormatter(Formatter(c))
	return log, nil
}
