package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "cihatbot"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyEntryDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("database.path", "data/cihat_bot.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.port", 9090)

	v.SetDefault("application.name", "cihat-bot")
}

// applyEntryDefaults 给映射型条目补默认值。
// viper 的 SetDefault 无法覆盖按名字索引的条目，所以在解码后统一处理。
func (c *Config) applyEntryDefaults() {
	for name, connector := range c.Connectors {
		if connector.Exchange == "" {
			connector.Exchange = name
		}
		switch connector.Kind {
		case ConnectorKindBinance:
			if connector.PollInterval == 0 {
				connector.PollInterval = 10 * time.Second
			}
			if connector.CandleLimit == 0 {
				connector.CandleLimit = 500
			}
			if connector.Retry.MaxAttempts == 0 {
				connector.Retry.MaxAttempts = 5
			}
			if connector.Retry.MinDelay == 0 {
				connector.Retry.MinDelay = 500 * time.Millisecond
			}
			if connector.Retry.MaxDelay == 0 {
				connector.Retry.MaxDelay = 5 * time.Second
			}
		case ConnectorKindPaper:
			if connector.TickInterval == 0 {
				connector.TickInterval = time.Second
			}
			if connector.StartPrice == 0 {
				connector.StartPrice = 100
			}
		}
		c.Connectors[name] = connector
	}

	for name, ui := range c.Uis {
		if ui.Kind == UiKindSocket && ui.Listen == "" {
			ui.Listen = ":8080"
		}
		c.Uis[name] = ui
	}
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
