// Package engine polls the chat connection and dispatches events to plugins.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/EchoPBX/nimbus/internal/workers"
	"github.com/EchoPBX/nimbus/pkg/sdk"
)

// ErrRunning is returned when the plugin set is changed after Run started.
var ErrRunning = errors.New("engine: already running")

// Conn is the chat-service connection.
type Conn interface {
	Poll(ctx context.Context) ([]sdk.Event, error)
	Post(ctx context.Context, resp *sdk.Response) error
}

type Options struct {
	Username          string
	IconEmoji         string
	CommandPrefix     string
	PollInterval      time.Duration
	WorkerPoolSize    int
	QueueSize         int
	InvocationTimeout time.Duration
	// ShutdownGrace bounds how long Run waits for in-flight invocations
	// and error posts after ctx is cancelled.
	ShutdownGrace time.Duration
	Debug         bool
}

type Engine struct {
	opts    Options
	conn    Conn
	bus     sdk.Bus
	log     *zap.Logger
	pool    *workers.Pool
	started time.Time

	debug   atomic.Bool
	running atomic.Bool
	posts   sync.WaitGroup

	// read-only once Run starts
	plugins []*entry
}

func New(opts Options, conn Conn, bus sdk.Bus, log *zap.Logger) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 10 * time.Second
	}
	log = log.With(zap.String("component", "engine"))
	e := &Engine{
		opts:    opts,
		conn:    conn,
		bus:     bus,
		log:     log,
		pool:    workers.New(opts.WorkerPoolSize, opts.QueueSize, opts.InvocationTimeout, log),
		started: time.Now(),
	}
	e.debug.Store(opts.Debug)
	return e
}

// SetDebug toggles logging of every received event.
func (e *Engine) SetDebug(on bool) { e.debug.Store(on) }

// Run polls until ctx is cancelled or the connection fails. In-flight
// invocations are drained for at most ShutdownGrace before it returns.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	e.pool.Start(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		rctx := context.WithoutCancel(ctx)
		for res := range e.pool.Results() {
			e.report(rctx, res)
		}
		e.posts.Wait()
	}()
	defer e.shutdown(done)

	e.log.Info("starting bot loop", zap.Int("plugins", len(e.plugins)))
	t := time.NewTimer(e.opts.PollInterval)
	defer t.Stop()
	for {
		evs, err := e.conn.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("poll: %w", err)
		}
		for _, ev := range evs {
			e.Process(ctx, ev)
		}

		t.Reset(e.opts.PollInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (e *Engine) shutdown(done <-chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.ShutdownGrace)
	defer cancel()
	if err := e.pool.Stop(ctx); err != nil {
		e.log.Warn("abandoning plugin invocations", zap.Error(err))
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
		e.log.Warn("abandoning pending reports", zap.Duration("grace", e.opts.ShutdownGrace))
	}
}
