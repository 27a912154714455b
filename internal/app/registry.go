package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/gregrebin/cihat-bot/internal/config"
	"github.com/gregrebin/cihat-bot/internal/connector/binance"
	"github.com/gregrebin/cihat-bot/internal/connector/paper"
	"github.com/gregrebin/cihat-bot/internal/injector"
	"github.com/gregrebin/cihat-bot/internal/monitor"
	"github.com/gregrebin/cihat-bot/internal/runtime"
	"github.com/gregrebin/cihat-bot/internal/session"
	"github.com/gregrebin/cihat-bot/internal/store"
	"github.com/gregrebin/cihat-bot/internal/trader"
	"github.com/gregrebin/cihat-bot/internal/ui/cli"
	"github.com/gregrebin/cihat-bot/internal/ui/socket"
)

// BuildRegistry 把配置里的拓扑翻译成注入器注册表。
// store 与 metrics 可为空，为空时对应能力被禁用。
func BuildRegistry(cfg *config.Config, st *store.Store, metrics *monitor.Metrics, logger *zap.Logger) injector.Registry {
	registry := injector.Registry{
		"application": {},
		"session":     {},
		"trader":      {},
		"ui":          {},
		"connector":   {},
	}

	sessionRefs := make([]injector.Ref, 0, len(cfg.Application.Sessions))
	for _, name := range cfg.Application.Sessions {
		sessionRefs = append(sessionRefs, injector.Ref{Category: "session", Name: name})
	}
	registry["application"][cfg.Application.Name] = injector.Entry{
		Build: func(inj *injector.Injector, name string) (runtime.Component, error) {
			return NewApplication(name, inj, logger), nil
		},
		Submodules: sessionRefs,
	}

	for name, sessionCfg := range cfg.Sessions {
		refs := make([]injector.Ref, 0, len(sessionCfg.Traders)+len(sessionCfg.Uis))
		for _, traderName := range sessionCfg.Traders {
			refs = append(refs, injector.Ref{Category: "trader", Name: traderName})
		}
		for _, uiName := range sessionCfg.Uis {
			refs = append(refs, injector.Ref{Category: "ui", Name: uiName})
		}
		registry["session"][name] = injector.Entry{
			Build: func(inj *injector.Injector, name string) (runtime.Component, error) {
				return session.New(name, inj, logger), nil
			},
			Submodules: refs,
		}
	}

	for name, traderCfg := range cfg.Traders {
		refs := make([]injector.Ref, 0, len(traderCfg.Connectors))
		for _, connectorName := range traderCfg.Connectors {
			refs = append(refs, injector.Ref{Category: "connector", Name: connectorName})
		}
		registry["trader"][name] = injector.Entry{
			Build: func(inj *injector.Injector, name string) (runtime.Component, error) {
				return trader.New(name, st, metrics, logger), nil
			},
			Submodules: refs,
		}
	}

	for name, uiCfg := range cfg.Uis {
		uiCfg := uiCfg
		registry["ui"][name] = injector.Entry{
			Build: func(inj *injector.Injector, name string) (runtime.Component, error) {
				switch uiCfg.Kind {
				case config.UiKindCli:
					return cli.New(name, logger), nil
				case config.UiKindSocket:
					return socket.New(name, uiCfg, logger), nil
				}
				return nil, fmt.Errorf("前端类型 %q 不受支持", uiCfg.Kind)
			},
		}
	}

	for name, connectorCfg := range cfg.Connectors {
		connectorCfg := connectorCfg
		registry["connector"][name] = injector.Entry{
			Build: func(inj *injector.Injector, name string) (runtime.Component, error) {
				switch connectorCfg.Kind {
				case config.ConnectorKindBinance:
					return binance.New(name, connectorCfg, st, logger), nil
				case config.ConnectorKindPaper:
					return paper.New(name, connectorCfg, logger), nil
				}
				return nil, fmt.Errorf("连接器类型 %q 不受支持", connectorCfg.Kind)
			},
		}
	}

	return registry
}
