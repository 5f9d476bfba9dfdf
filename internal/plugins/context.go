package plugins

import (
	"github.com/EchoPBX/nimbus/pkg/sdk"
	"go.uber.org/zap"
)

type pluginContext struct {
	log    *zap.Logger
	bot    sdk.Bot
	bus    sdk.Bus
	config map[string]any
}

func newPluginContext(log *zap.Logger, bot sdk.Bot, bus sdk.Bus, cfg map[string]any) sdk.Context {
	if cfg == nil {
		cfg = map[string]any{}
	}
	return &pluginContext{log: log, bot: bot, bus: bus, config: cfg}
}

func (c *pluginContext) Log() *zap.Logger       { return c.log }
func (c *pluginContext) Bot() sdk.Bot           { return c.bot }
func (c *pluginContext) Bus() sdk.Bus           { return c.bus }
func (c *pluginContext) Config() map[string]any { return c.config }
