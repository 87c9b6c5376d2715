package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads one YAML file, fills unset keys with defaults and validates the
// result. Defaults apply only to keys the file does not set, so an explicit
// zero survives.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeOptions); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}

	set := make(keySet)
	for _, key := range v.AllKeys() {
		set.mark(key)
	}
	cfg.applyDefaults(set)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeOptions(dc *mapstructure.DecoderConfig) {
	dc.TagName = "toml"
	dc.WeaklyTypedInput = true
}
