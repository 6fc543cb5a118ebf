// Package config loads flowcore settings with viper: built-in defaults, an
// optional TOML file and FLOWCORE_* environment overrides, in increasing
// precedence.
package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"flowcore/internal/blob"
	"flowcore/internal/catalog"
	"flowcore/internal/logger"
	"flowcore/internal/samples"
)

// EnvPrefix prefixes environment overrides, e.g. FLOWCORE_BLOB_DRIVER.
const EnvPrefix = "FLOWCORE"

// FileName is the config file searched for in the working directory.
const FileName = "flowcore.toml"

// Config is the full flowcore configuration.
type Config struct {
	Log     logger.Config  `mapstructure:"log"`
	Blob    blob.Config    `mapstructure:"blob"`
	Catalog catalog.Config `mapstructure:"catalog"`
	Samples samples.Config `mapstructure:"samples"`
	Metrics Metrics        `mapstructure:"metrics"`
}

// Metrics configures the Prometheus recorder.
type Metrics struct {
	Namespace string `mapstructure:"namespace"`
}

// SetDefaults registers every key with its default. Keys unknown to viper
// are not picked up from the environment, so all of them are listed here.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("blob.driver", string(blob.DriverFilesystem))
	v.SetDefault("blob.fs_root", "./blobdata")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.path_style", false)
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")
	v.SetDefault("blob.s3.session_token", "")
	v.SetDefault("catalog.driver", string(catalog.DriverSQLite))
	v.SetDefault("catalog.sqlite_path", "flowcore.db")
	v.SetDefault("catalog.postgres_dsn", "")
	v.SetDefault("samples.header_cache_size", samples.DefaultHeaderCacheSize)
	v.SetDefault("metrics.namespace", "flowcore")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads configuration. An explicit path must exist; with an empty path
// FileName is used when present in the working directory.
func Load(path string) (*Config, error) {
	v, err := Read(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(v)
}

// Read returns the viper instance Load decodes, for callers that need the
// raw settings.
func Read(path string) (*viper.Viper, error) {
	v := New()
	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		return v, nil
	}
	v.SetConfigName(strings.TrimSuffix(FileName, ".toml"))
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}
	return v, nil
}

// Settings returns the effective settings as a nested map with secrets
// masked.
func Settings(v *viper.Viper) map[string]any {
	all := v.AllSettings()
	for _, key := range secretKeys {
		if v.GetString(key) != "" {
			setPath(all, strings.Split(key, "."), "********")
		}
	}
	return all
}

var secretKeys = []string{"blob.s3.secret_access_key", "blob.s3.session_token", "catalog.postgres_dsn"}

func setPath(m map[string]any, path []string, val any) {
	for _, k := range path[:len(path)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			return
		}
		m = next
	}
	m[path[len(path)-1]] = val
}

// Unmarshal decodes v into a Config.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return &cfg, nil
}
