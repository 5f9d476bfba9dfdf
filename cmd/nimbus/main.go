package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/EchoPBX/nimbus/internal/config"
	"github.com/EchoPBX/nimbus/internal/engine"
	"github.com/EchoPBX/nimbus/internal/events"
	"github.com/EchoPBX/nimbus/internal/httpserver"
	"github.com/EchoPBX/nimbus/internal/logging"
	"github.com/EchoPBX/nimbus/internal/plugins"
	"github.com/EchoPBX/nimbus/internal/reloader"
	"github.com/EchoPBX/nimbus/internal/slack"
	"github.com/EchoPBX/nimbus/pkg/sdk"
	"github.com/EchoPBX/nimbus/plugins/help"
	"github.com/EchoPBX/nimbus/plugins/uptime"
	"go.uber.org/zap"
)

var builtins = map[string]sdk.Descriptor{
	"help":   help.Descriptor,
	"uptime": uptime.Descriptor,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: nimbus <config.yaml>")
		os.Exit(2)
	}
	os.Exit(run(os.Args[1]))
}

func run(cfgPath string) int {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger, level := logging.New(logging.Cfg{
		Level: cfg.Logging.Level,
		JSON:  cfg.Logging.JSON,
		Debug: cfg.DebugMode,
	})
	defer logger.Sync()

	fmt.Println(`
       _           _
 _ __ (_)_ __ ___ | |__  _   _ ___
| '_ \| | '_ ` + "`" + ` _ \| '_ \| | | / __|
| | | | | | | | | | |_) | |_| \__ \
|_| |_|_|_| |_| |_|_.__/ \__,_|___/

nimbus — Slack bot
------------------
Config:  ` + cfgPath + `
`)
	logger.Info("initializing nimbus instance")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	sc := slack.NewClient(cfg, logger)
	if err := sc.Connect(ctx); err != nil {
		logger.Error("startup", zap.Error(err))
		return 1
	}
	defer sc.Close()

	eng := engine.New(engine.Options{
		Username:          cfg.Username,
		IconEmoji:         cfg.IconEmoji(),
		CommandPrefix:     cfg.CommandPrefix,
		PollInterval:      cfg.PollInterval(),
		WorkerPoolSize:    cfg.WorkerPoolSize,
		QueueSize:         cfg.QueueSize,
		InvocationTimeout: cfg.InvocationTimeout(),
		ShutdownGrace:     cfg.ShutdownTimeout(),
		Debug:             cfg.DebugMode,
	}, sc, bus, logger)
	if cfg.DebugMode {
		logger.Info("debug mode is enabled")
	}

	pluginMgr := plugins.NewManager(logger, bus, eng, eng, cfg.PluginConfig)
	for _, name := range cfg.Builtins {
		d, ok := builtins[name]
		if !ok {
			logger.Warn("unknown builtin plugin", zap.String("name", name))
			continue
		}
		pluginMgr.LoadDescriptors(d)
	}
	if _, err := pluginMgr.LoadDir(cfg.PluginDirectory); err != nil {
		logger.Error("startup", zap.Error(err))
		return 1
	}
	defer pluginMgr.Shutdown()

	go sc.Run(ctx)

	reloader.OnSIGHUP(ctx.Done(), func() {
		newCfg, err := config.Load(cfgPath)
		if err != nil {
			logger.Warn("config reload failed", zap.Error(err))
			return
		}
		level.SetLevel(logging.ParseLevel(newCfg.Logging.Level, newCfg.DebugMode))
		eng.SetDebug(newCfg.DebugMode)
		logger.Info("reloaded config", zap.String("level", level.String()), zap.Bool("debug", newCfg.DebugMode))
	})

	var httpSrv *http.Server
	if cfg.HTTP.Enabled {
		srv, err := httpserver.New(cfg, logger, bus, eng)
		if err != nil {
			logger.Error("http", zap.Error(err))
			return 1
		}
		httpSrv = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Bind, cfg.HTTP.Port),
			Handler: srv.Router(),
		}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http", zap.Error(err))
			}
		}()
	}

	errc := make(chan error, 1)
	go func() { errc <- eng.Run(ctx) }()

	code := 0
	select {
	case <-reloader.OnInterrupt(os.Stdin, os.Stdout):
		logger.Info("shutting down...")
		cancel()
		<-errc
	case err := <-errc:
		logger.Error("bot loop stopped", zap.Error(err))
		cancel()
		code = 1
	}

	if httpSrv != nil {
		ctxTimeout, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = httpSrv.Shutdown(ctxTimeout)
	}
	logger.Info("bye")
	return code
}
