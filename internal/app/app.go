// Package app wires the annotator together and runs it: the pose registry
// and store, the marker board, the command router, the goal supervisor
// behind the action server, and the HTTP, console and persistence loops.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"map-annotator/internal/action"
	"map-annotator/internal/api"
	"map-annotator/internal/clock"
	"map-annotator/internal/config"
	"map-annotator/internal/llm_client"
	"map-annotator/internal/markers"
	"map-annotator/internal/metrics"
	"map-annotator/internal/navigator"
	"map-annotator/internal/parser"
	"map-annotator/internal/pose"
	"map-annotator/internal/publisher"
	"map-annotator/internal/registry"
	"map-annotator/internal/router"
	"map-annotator/internal/store"
	"map-annotator/internal/supervisor"
)

const commandQueueSize = 32

// corruptSuffix is appended to a pose file that could not be loaded before
// the registry is written over it.
const corruptSuffix = ".corrupt"

type Options struct {
	Config config.Config
	// Store and Navigator replace the configured ones when set.
	Store     store.Store
	Navigator navigator.Navigator
	// LLM replaces the configured language model backend when set.
	LLM    parser.Generator
	Clock  clock.Clock
	Logger *slog.Logger
	// Registry receives the metrics; a fresh one is created when nil.
	Registry *prometheus.Registry
}

type App struct {
	cfg    config.Config
	logger *slog.Logger
	clock  clock.Clock

	store      store.Store
	closeStore func() error

	reg      *registry.Registry
	board    *markers.Board
	names    *publisher.Latch[[]string]
	nav      navigator.Navigator
	metrics  *metrics.Collector
	action   *action.Server
	router   *router.Router
	api      *api.Server
	parser   *parser.Parser
	resolver *parser.Resolver

	commands chan router.Command
	reloads  chan map[string]pose.Pose

	// unreadable is set while the store holds data that failed to load.
	unreadable atomic.Bool
}

func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	promReg := opts.Registry
	if promReg == nil {
		promReg = prometheus.NewRegistry()
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	a := &App{
		cfg:        cfg,
		logger:     logger.With("component", "app"),
		clock:      clk,
		store:      opts.Store,
		closeStore: func() error { return nil },
		reg:        registry.New(),
		board:      markers.NewBoard(logger),
		names:      publisher.NewLatch[[]string](),
		nav:        opts.Navigator,
		metrics:    metrics.New(promReg),
		parser:     parser.New(nil),
		commands:   make(chan router.Command, commandQueueSize),
		reloads:    make(chan map[string]pose.Pose, 1),
	}

	if a.store == nil {
		s, closeFn, err := store.Open(cfg.Store.Path, store.Format(cfg.Store.Format), logger)
		if err != nil {
			return nil, fmt.Errorf("opening pose store: %w", err)
		}
		a.store, a.closeStore = s, closeFn
	}

	if a.nav == nil {
		simCfg := navigator.DefaultSimConfig()
		simCfg.Speed = cfg.Navigator.Speed
		simCfg.PendingFor = cfg.Navigator.PendingFor
		simCfg.FailRate = cfg.Navigator.FailRate
		if cfg.Navigator.Seed != 0 {
			simCfg.Seed = cfg.Navigator.Seed
		}
		a.nav = navigator.NewSim(simCfg, clk, logger)
	}

	a.action = action.New(a.reg, a.nav, supervisor.Options{
		PollInterval:      cfg.Supervisor.PollInterval,
		StatusTimeout:     cfg.Supervisor.StatusTimeout,
		CommandTimeout:    cfg.Supervisor.CommandTimeout,
		MaxStatusFailures: cfg.Supervisor.MaxStatusFailures,
		Clock:             clk,
		Logger:            logger,
		Observers:         []supervisor.Observer{a.metrics},
	})

	a.router = router.New(a.reg, a.board, a.nav, a.names, router.Options{
		CommandTimeout: cfg.Supervisor.CommandTimeout,
		Logger:         logger,
		Recorder:       a.metrics,
	})

	a.api = api.New(api.Deps{
		Poses:    a.reg,
		Goals:    a.action,
		Markers:  a.board,
		Names:    a.names,
		Commands: a.commands,
		Gatherer: promReg,
		Logger:   logger,
	})

	a.resolver = a.newResolver(ctx, opts.LLM)
	return a, nil
}

// newResolver connects the language model used for free-text console input.
// Without one the console only accepts its grammar.
func (a *App) newResolver(ctx context.Context, llm parser.Generator) *parser.Resolver {
	if llm != nil {
		return parser.NewResolver(llm, a.cfg.LLM.Model, a.parser.Ops())
	}
	p, err := llm_client.New(ctx, llm_client.Config{
		Backend:    a.cfg.LLM.Backend,
		Model:      a.cfg.LLM.Model,
		OllamaHost: a.cfg.LLM.OllamaHost,
	})
	if errors.Is(err, llm_client.ErrDisabled) {
		return nil
	}
	if err != nil {
		a.logger.Warn("language model unavailable, free-text input disabled", "backend", a.cfg.LLM.Backend, "error", err)
		return nil
	}
	a.logger.Info("language model connected", "backend", p.Name(), "model", p.AllowedModelOrDefault(a.cfg.LLM.Model))
	return parser.NewResolver(p, a.cfg.LLM.Model, a.parser.Ops())
}

func (a *App) Registry() *registry.Registry      { return a.reg }
func (a *App) Names() *publisher.Latch[[]string] { return a.names }
func (a *App) Action() *action.Server            { return a.action }
func (a *App) Board() *markers.Board             { return a.board }
func (a *App) Metrics() *metrics.Collector       { return a.metrics }
func (a *App) Handler() *api.Server              { return a.api }

// Commands is the command ingress shared by every front end.
func (a *App) Commands() chan<- router.Command { return a.commands }

// startup loads the stored poses, places their markers and publishes the
// names. A missing or unreadable store leaves the registry empty.
func (a *App) startup(ctx context.Context) {
	if err := a.reg.LoadFrom(ctx, a.store); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.logger.Warn("no saved poses yet, starting empty", "path", a.cfg.Store.Path)
		} else {
			a.logger.Warn("could not load poses, starting empty", "path", a.cfg.Store.Path, "error", err)
			a.unreadable.Store(true)
		}
	} else {
		a.logger.Info("poses loaded", "path", a.cfg.Store.Path, "poses", a.reg.Len())
	}
	a.board.Start(a.reg.NamedPoses())
	a.router.Publish()
}

// shutdown publishes an empty name list and then saves the registry.
func (a *App) shutdown(ctx context.Context) error {
	a.names.Publish([]string{})
	defer a.names.Close()

	saved, saveErr := a.save(ctx)
	switch {
	case saveErr != nil:
		a.logger.Error("saving poses failed", "path", a.cfg.Store.Path, "error", saveErr)
	case saved:
		a.logger.Info("poses saved", "path", a.cfg.Store.Path, "poses", a.reg.Len())
	default:
		a.logger.Warn("left unreadable pose store untouched", "path", a.cfg.Store.Path)
	}
	if err := a.closeStore(); err != nil {
		a.logger.Error("closing pose store failed", "error", err)
		return errors.Join(saveErr, err)
	}
	return saveErr
}

// save writes the registry to the store. A store that failed to load is left
// alone until the registry changes, and a pose file that still fails to load
// is then moved aside instead of being overwritten.
func (a *App) save(ctx context.Context) (bool, error) {
	if a.unreadable.Load() {
		if !a.reg.Dirty() {
			return false, nil
		}
		if err := a.setAsideUnreadable(ctx); err != nil {
			return false, err
		}
	}
	if err := a.reg.SaveTo(ctx, a.store); err != nil {
		return false, err
	}
	return true, nil
}

func (a *App) setAsideUnreadable(ctx context.Context) error {
	if fs, ok := a.store.(*store.FileStore); ok {
		_, err := fs.Load(ctx)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			moved, err := fs.MoveAside(corruptSuffix)
			if err != nil {
				return fmt.Errorf("could not move unreadable pose file aside: %w", err)
			}
			a.logger.Warn("moved unreadable pose file aside", "path", fs.Path(), "moved_to", moved)
		}
	}
	a.unreadable.Store(false)
	return nil
}

// Run starts every component and blocks until ctx is done, the console exits
// or a component fails. The registry is saved on the way out.
func (a *App) Run(ctx context.Context) error {
	a.startup(ctx)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	comps := []component{
		{name: "supervisor", run: a.action.Run},
		{name: "router", run: func(ctx context.Context) error {
			return a.router.Run(ctx, router.Inputs{
				Commands: a.commands,
				Updates:  a.board.Updates(),
				Reloads:  a.reloads,
			})
		}},
	}
	if a.cfg.HTTP.Enabled {
		comps = append(comps, component{name: "http", run: func(ctx context.Context) error {
			return a.api.Run(ctx, a.cfg.HTTP.Addr)
		}})
	}
	if fs, ok := a.store.(*store.FileStore); ok && a.cfg.Store.Watch {
		comps = append(comps, component{name: "watcher", run: func(ctx context.Context) error {
			return a.watch(ctx, fs)
		}})
	}
	if a.cfg.Store.AutosaveInterval > 0 {
		comps = append(comps, component{name: "autosave", run: a.autosave})
	}
	if a.cfg.Console.Enabled {
		comps = append(comps, component{name: "console", run: func(ctx context.Context) error {
			return a.runConsole(ctx, stop)
		}})
	}

	runErr := runComponents(runCtx, a.logger, comps)
	if err := a.shutdown(context.WithoutCancel(ctx)); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// watch reloads the pose file after someone else edits it. Our own saves
// match the registry and are skipped.
func (a *App) watch(ctx context.Context, fs *store.FileStore) error {
	w, err := store.NewWatcher(fs.Path(), a.logger)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-w.Changes:
			if !ok {
				return nil
			}
			poses, err := fs.Load(ctx)
			if err != nil {
				a.logger.Warn("ignoring unreadable pose file change", "path", fs.Path(), "error", err)
				continue
			}
			if a.reg.Equal(poses) {
				continue
			}
			select {
			case a.reloads <- poses:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// autosave writes a dirty registry on every tick. Failures are logged and
// retried on the next tick.
func (a *App) autosave(ctx context.Context) error {
	t := a.clock.NewTicker(a.cfg.Store.AutosaveInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
		}
		if !a.reg.Dirty() {
			continue
		}
		saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := a.save(saveCtx)
		cancel()
		if err != nil {
			a.logger.Error("autosave failed", "error", err)
			continue
		}
		a.logger.Debug("autosaved poses", "poses", a.reg.Len())
	}
}
