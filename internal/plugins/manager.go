package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"runtime/debug"
	"time"

	"github.com/EchoPBX/nimbus/internal/workers"
	"github.com/EchoPBX/nimbus/pkg/sdk"
	"go.uber.org/zap"
)

// Registrar receives constructed plugins, normally the engine.
type Registrar interface {
	Register(name string, p sdk.Plugin) error
}

// Symbols is the part of *plugin.Plugin the manager needs.
type Symbols interface {
	Lookup(name string) (plugin.Symbol, error)
}

// Opener opens one loadable unit.
type Opener func(path string) (Symbols, error)

// OpenShared opens a Go plugin built with -buildmode=plugin.
func OpenShared(path string) (Symbols, error) { return plugin.Open(path) }

// unitExt is the file extension of loadable units.
const unitExt = ".so"

// Manager constructs plugins and hands them to the engine. It runs once,
// before the dispatch loop starts.
type Manager struct {
	log     *zap.Logger
	bus     sdk.Bus
	bot     sdk.Bot
	reg     Registrar
	configs func(name string) map[string]any
	open    Opener

	loaded []loaded
}

type loaded struct {
	name   string
	plugin sdk.Plugin
}

func NewManager(log *zap.Logger, bus sdk.Bus, bot sdk.Bot, reg Registrar, configs func(string) map[string]any) *Manager {
	if configs == nil {
		configs = func(string) map[string]any { return nil }
	}
	return &Manager{
		log:     log.With(zap.String("component", "plugins")),
		bus:     bus,
		bot:     bot,
		reg:     reg,
		configs: configs,
		open:    OpenShared,
	}
}

// WithOpener replaces the unit opener.
func (m *Manager) WithOpener(o Opener) *Manager {
	m.open = o
	return m
}

// LoadDir loads every unit in dir. dir must exist and be a directory;
// failures of individual units or plugins are logged and skipped.
func (m *Manager) LoadDir(dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("the specified plugin directory does not exist: %s", dir)
		}
		return 0, fmt.Errorf("stat plugin directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("the specified plugin directory is not a directory: %s", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read plugin directory %s: %w", dir, err)
	}

	m.log.Info("loading plugins from directory", zap.String("dir", dir))
	n := 0
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != unitExt {
			continue
		}
		path := filepath.Join(dir, de.Name())
		ds, err := m.descriptors(path)
		if err != nil {
			m.log.Error("failed to open plugin unit", zap.String("path", path), zap.Error(err))
			continue
		}
		n += m.LoadDescriptors(ds...)
	}

	m.log.Info("loaded plugins", zap.String("dir", dir), zap.Int("count", n))
	m.bus.Publish(sdk.Notice{
		Type: "plugins.loaded",
		Data: map[string]any{"dir": dir, "count": n, "time": time.Now().Unix()},
	})
	return n, nil
}

func (m *Manager) descriptors(path string) (ds []sdk.Descriptor, err error) {
	unit, err := m.open(path)
	if err != nil {
		return nil, err
	}
	sym, err := unit.Lookup(sdk.EntrySymbol)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = &workers.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	switch f := sym.(type) {
	case func() []sdk.Descriptor:
		return f(), nil
	case *[]sdk.Descriptor:
		return *f, nil
	default:
		return nil, fmt.Errorf("symbol %s has type %T", sdk.EntrySymbol, sym)
	}
}

// LoadDescriptors constructs and registers each descriptor and returns how
// many succeeded.
func (m *Manager) LoadDescriptors(ds ...sdk.Descriptor) int {
	n := 0
	for _, d := range ds {
		if err := m.load(d); err != nil {
			fields := []zap.Field{zap.String("name", d.Name), zap.Error(err)}
			if pe, ok := err.(*workers.PanicError); ok {
				fields = append(fields, zap.ByteString("stack", pe.Stack))
			}
			m.log.Error("error loading plugin, skipping", fields...)
			continue
		}
		n++
	}
	return n
}

func (m *Manager) load(d sdk.Descriptor) error {
	if d.New == nil {
		return fmt.Errorf("descriptor %q has no constructor", d.Name)
	}
	log := m.log.With(zap.String("plugin", d.Name))
	p, err := construct(d, newPluginContext(log, m.bot, m.bus, m.configs(d.Name)))
	if err != nil {
		return err
	}
	if err := m.reg.Register(d.Name, p); err != nil {
		return err
	}
	m.loaded = append(m.loaded, loaded{name: d.Name, plugin: p})

	m.bus.Publish(sdk.Notice{
		Type: "plugin.loaded",
		Data: map[string]any{
			"name": d.Name,
			"time": time.Now().Unix(),
		},
	})
	m.log.Info("successfully loaded plugin", zap.String("name", d.Name))
	return nil
}

func construct(d sdk.Descriptor, ctx sdk.Context) (p sdk.Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, &workers.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	p, err = d.New(ctx)
	if err == nil && p == nil {
		err = fmt.Errorf("constructor returned no plugin")
	}
	return p, err
}

// Shutdown stops every loaded plugin that holds resources.
func (m *Manager) Shutdown() {
	for _, l := range m.loaded {
		s, ok := l.plugin.(sdk.Stopper)
		if !ok {
			continue
		}
		if err := s.Stop(); err != nil {
			m.log.Warn("plugin stop failed", zap.String("name", l.name), zap.Error(err))
		}
	}
}
