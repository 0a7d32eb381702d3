package internal

import (
	"fmt"

	"github.com/spf13/viper"
)

type TreelineConfig struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		Workdir      string `mapstructure:"workdir"`
		PoolCapacity int    `mapstructure:"pool_capacity"`
	} `mapstructure:"storage"`

	Debug bool `mapstructure:"debug"`
}

func LoadConfig(path string) (*TreelineConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("app_name", "treeline")
	v.SetDefault("storage.workdir", "data")
	v.SetDefault("storage.pool_capacity", 128)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg TreelineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
