package config

// loader.go - configuration loading.
//
// Precedence order (highest wins):
//   1. CLI flags that were set explicitly
//   2. Environment variables (REPOSERVE_*)
//   3. Config file (--config, any format viper reads)
//   4. Defaults (defaults.go)

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"reposerve/internal/errors"
)

// Load builds a Config from defaults, the optional config file, the
// environment, and fs.  fs may be nil.  The result is not validated.
func Load(fs *pflag.FlagSet, file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, errors.Wrapf(err, "bind flags")
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Config("config", file, err.Error(),
				"the file must exist and be YAML, JSON, or TOML")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(err, "decode config")
	}
	return cfg, nil
}

// setDefaults registers every key so that environment variables are
// picked up even for keys without a flag.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("listen", d.Listen)
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("max-clients", d.MaxClients)
	v.SetDefault("repo", d.RepoDir)
	v.SetDefault("chunk-size", d.ChunkSize)
	v.SetDefault("buffer-size", d.BufferSize)
	v.SetDefault("read-timeout", d.ReadTimeout)
	v.SetDefault("write-timeout", d.WriteTimeout)
	v.SetDefault("admin-addr", d.AdminAddr)
	v.SetDefault("name", d.Name)
	v.SetDefault("retries", d.Retries)
	v.SetDefault("dial-timeout", d.DialTimeout)
	v.SetDefault("idle-timeout", d.IdleTimeout)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("log-file", d.LogFile)
	v.SetDefault("log-max-size", d.LogMaxSizeMB)
	v.SetDefault("log-max-backups", d.LogMaxBackups)
}
