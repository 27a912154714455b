package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
// Application/Sessions/Traders/Uis/Connectors 共同描述模块树的拓扑：
// 每个条目按名字引用下一层的条目。
type Config struct {
	App         AppConfig                  `mapstructure:"app"`
	Logging     LoggingConfig              `mapstructure:"logging"`
	Database    DatabaseConfig             `mapstructure:"database"`
	Monitor     MonitorConfig              `mapstructure:"monitor"`
	Application ApplicationConfig          `mapstructure:"application"`
	Sessions    map[string]SessionConfig   `mapstructure:"sessions"`
	Traders     map[string]TraderConfig    `mapstructure:"traders"`
	Uis         map[string]UiConfig        `mapstructure:"uis"`
	Connectors  map[string]ConnectorConfig `mapstructure:"connectors"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// DatabaseConfig 管理本地行情缓存数据库。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// MonitorConfig 控制指标服务。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ApplicationConfig 是模块树的根：应用名与其挂载的会话列表。
type ApplicationConfig struct {
	Name     string   `mapstructure:"name"`
	Sessions []string `mapstructure:"sessions"`
}

// SessionConfig 描述一个会话挂载的交易器与前端。
type SessionConfig struct {
	Traders []string `mapstructure:"traders"`
	Uis     []string `mapstructure:"uis"`
}

// TraderConfig 描述一个交易器挂载的连接器。
type TraderConfig struct {
	Connectors []string `mapstructure:"connectors"`
}

// UiConfig 描述一个前端实例。
type UiConfig struct {
	Kind   string `mapstructure:"kind"`
	Listen string `mapstructure:"listen"`
}

// ConnectorConfig 描述一个交易所连接器实例。
// Exchange 是订单文本中引用该连接器的交易所名，留空时取条目名。
type ConnectorConfig struct {
	Kind         string        `mapstructure:"kind"`
	Exchange     string        `mapstructure:"exchange"`
	APIKey       string        `mapstructure:"api_key"`
	APISecret    string        `mapstructure:"api_secret"`
	UseSandbox   bool          `mapstructure:"use_sandbox"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	CandleLimit  int           `mapstructure:"candle_limit"`
	Retry        RetryConfig   `mapstructure:"retry"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
	StartPrice   float64       `mapstructure:"start_price"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// 支持的前端与连接器类型。
const (
	UiKindCli    = "cli"
	UiKindSocket = "socket"

	ConnectorKindBinance = "binance"
	ConnectorKindPaper   = "paper"
)

// Validate 对配置进行基本校验，包括模块树引用的完整性。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于[1,65535]"))
	}

	if c.Application.Name == "" {
		err = multierr.Append(err, errors.New("application.name 不能为空"))
	}
	if len(c.Application.Sessions) == 0 {
		err = multierr.Append(err, errors.New("application.sessions 至少包含一个会话"))
	}
	for _, name := range c.Application.Sessions {
		if _, ok := c.Sessions[name]; !ok {
			err = multierr.Append(err, fmt.Errorf("application 引用了未定义的会话 %q", name))
		}
	}

	for name, session := range c.Sessions {
		if len(session.Traders) == 0 {
			err = multierr.Append(err, fmt.Errorf("会话 %q 至少包含一个交易器", name))
		}
		for _, trader := range session.Traders {
			if _, ok := c.Traders[trader]; !ok {
				err = multierr.Append(err, fmt.Errorf("会话 %q 引用了未定义的交易器 %q", name, trader))
			}
		}
		for _, ui := range session.Uis {
			if _, ok := c.Uis[ui]; !ok {
				err = multierr.Append(err, fmt.Errorf("会话 %q 引用了未定义的前端 %q", name, ui))
			}
		}
	}

	for name, trader := range c.Traders {
		for _, connector := range trader.Connectors {
			if _, ok := c.Connectors[connector]; !ok {
				err = multierr.Append(err, fmt.Errorf("交易器 %q 引用了未定义的连接器 %q", name, connector))
			}
		}
	}

	for name, ui := range c.Uis {
		switch ui.Kind {
		case UiKindCli:
		case UiKindSocket:
			if ui.Listen == "" {
				err = multierr.Append(err, fmt.Errorf("前端 %q 缺少 listen 地址", name))
			}
		default:
			err = multierr.Append(err, fmt.Errorf("前端 %q 类型 %q 不受支持", name, ui.Kind))
		}
	}

	for name, connector := range c.Connectors {
		switch connector.Kind {
		case ConnectorKindBinance:
			if connector.PollInterval <= 0 {
				err = multierr.Append(err, fmt.Errorf("连接器 %q 的 poll_interval 必须大于0", name))
			}
			if connector.CandleLimit <= 0 {
				err = multierr.Append(err, fmt.Errorf("连接器 %q 的 candle_limit 必须大于0", name))
			}
			if connector.Retry.MaxAttempts <= 0 {
				err = multierr.Append(err, fmt.Errorf("连接器 %q 的 retry.max_attempts 必须大于0", name))
			}
			if connector.Retry.MinDelay <= 0 || connector.Retry.MaxDelay <= 0 {
				err = multierr.Append(err, fmt.Errorf("连接器 %q 的 retry.delay 必须为正", name))
			}
			if connector.Retry.MinDelay > connector.Retry.MaxDelay {
				err = multierr.Append(err, fmt.Errorf("连接器 %q 的 retry.min_delay 不能大于 max_delay", name))
			}
		case ConnectorKindPaper:
			if connector.TickInterval <= 0 {
				err = multierr.Append(err, fmt.Errorf("连接器 %q 的 tick_interval 必须大于0", name))
			}
			if connector.StartPrice <= 0 {
				err = multierr.Append(err, fmt.Errorf("连接器 %q 的 start_price 必须大于0", name))
			}
		default:
			err = multierr.Append(err, fmt.Errorf("连接器 %q 类型 %q 不受支持", name, connector.Kind))
		}
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
