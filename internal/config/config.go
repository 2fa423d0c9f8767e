// Package config reads querykit settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// Backends the CLI can run queries against.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config holds every setting querykit reads from the environment.
type Config struct {
	Backend string
	DSN     string

	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration

	SchemaDir string

	LogLevel string
	LogColor bool

	Metrics bool
}

// Load reads files into the environment, without overriding variables that
// are already set, and then builds a Config. Missing files are skipped; with
// no files, .env in the working directory is tried.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			logrus.WithField("file", f).Debug("no env file loaded")
		}
	}

	return Config{
		Backend:       cast.ToString(getOrReturnDefaultValue("QUERYKIT_BACKEND", BackendMemory)),
		DSN:           cast.ToString(getOrReturnDefaultValue("QUERYKIT_DSN", "")),
		MongoURI:      cast.ToString(getOrReturnDefaultValue("QUERYKIT_MONGO_URI", "mongodb://localhost:27017")),
		MongoDatabase: cast.ToString(getOrReturnDefaultValue("QUERYKIT_MONGO_DATABASE", "querykit")),
		MongoTimeout:  cast.ToDuration(getOrReturnDefaultValue("QUERYKIT_MONGO_TIMEOUT", "10s")),
		SchemaDir:     cast.ToString(getOrReturnDefaultValue("QUERYKIT_SCHEMA_DIR", "schema")),
		LogLevel:      cast.ToString(getOrReturnDefaultValue("QUERYKIT_LOG_LEVEL", "info")),
		LogColor:      cast.ToBool(getOrReturnDefaultValue("QUERYKIT_LOG_COLOR", true)),
		Metrics:       cast.ToBool(getOrReturnDefaultValue("QUERYKIT_METRICS", false)),
	}
}

// Validate checks the backend name and the settings it needs.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendSQLite, BackendPostgres:
		if c.DSN == "" {
			return fmt.Errorf("backend %s requires QUERYKIT_DSN", c.Backend)
		}
	case BackendMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("backend %s requires QUERYKIT_MONGO_URI and QUERYKIT_MONGO_DATABASE", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func getOrReturnDefaultValue(key string, defaultValue any) any {
	val, exists := os.LookupEnv(key)
	if exists {
		return val
	}
	return defaultValue
}
