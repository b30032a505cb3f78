package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every geuebt environment variable. Sections are
// separated by a double underscore: GEUEBT_STORAGE__DRIVER -> storage.driver.
const EnvPrefix = "GEUEBT_"

// legacyEnv maps the variables understood by earlier deployments onto config keys.
var legacyEnv = map[string]string{
	"MONGO_URL": "storage.mongo_uri",
	"MONGO_DB":  "storage.mongo_database",
	"API_HOST":  "server.host",
	"API_PORT":  "server.port",
}

// flagKeys maps CLI flag names onto config keys. Flags not listed here are
// not configuration (e.g. --config itself).
var flagKeys = map[string]string{
	"host":           "server.host",
	"port":           "server.port",
	"max-body-size":  "server.max_body_size",
	"storage-driver": "storage.driver",
	"sqlite-path":    "storage.sqlite_path",
	"postgres-dsn":   "storage.postgres_dsn",
	"badger-dir":     "storage.badger_dir",
	"mongo-uri":      "storage.mongo_uri",
	"mongo-database": "storage.mongo_database",
	"blob-driver":    "blob.driver",
	"blob-root":      "blob.fs_root",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"metrics":        "metrics.enabled",
}

// Result carries the decoded config and the file it was read from, if any.
type Result struct {
	Config   Config
	FileUsed string
}

// findConfigFile returns the explicit path or the first geuebt.yaml/.yml in the working directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"geuebt.yaml", "geuebt.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load builds the configuration. Precedence, lowest to highest: defaults,
// config file, legacy environment, GEUEBT_ environment, explicitly set flags.
func Load(cfgFile string, flags *pflag.FlagSet) (Result, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return Result{}, fmt.Errorf("load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return Result{}, fmt.Errorf("read config file %s: %w", used, err)
		}
	}

	legacy := make(map[string]any)
	for name, key := range legacyEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			legacy[key] = v
		}
	}
	if len(legacy) > 0 {
		// MONGO_URL only makes sense with the mongo driver.
		if _, ok := legacy["storage.mongo_uri"]; ok {
			legacy["storage.driver"] = StorageMongo
		}
		if err := k.Load(confmap.Provider(legacy, "."), nil); err != nil {
			return Result{}, fmt.Errorf("load legacy env: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Result{}, fmt.Errorf("load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return Result{}, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Result{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	return Result{Config: cfg, FileUsed: used}, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}
