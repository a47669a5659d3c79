// Package app wires configuration, storage, dynamic contact providers and
// sessions into a roster processor.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/meszmate/rosterd/internal/config"
	"github.com/meszmate/rosterd/internal/dynamic"
	"github.com/meszmate/rosterd/internal/logging"
	"github.com/meszmate/rosterd/internal/processor"
	"github.com/meszmate/rosterd/internal/session"
	"github.com/meszmate/rosterd/internal/storage/sqlite"
	"github.com/meszmate/rosterd/internal/xmpp"
	"github.com/meszmate/rosterd/internal/xmpp/disco"
	"github.com/meszmate/rosterd/internal/xmpp/roster"
	"github.com/meszmate/rosterd/pkg/plugin"
)

// Options supplies what the configuration file cannot
type Options struct {
	// Accounts maps bare JIDs to bcrypt password hashes
	Accounts map[string]string

	// Logger replaces the logger built from the logging section
	Logger *logging.Logger

	// Registerer receives the processor metrics. A private registry is used
	// when nil.
	Registerer prometheus.Registerer

	// Sources are extra in-process contact sources, consulted after the
	// directory and before plugins
	Sources []dynamic.ContactSource

	// SkipPlugins disables loading binaries from the plugin directory
	SkipPlugins bool

	// Plugins are attached in-process next to the plugin directory
	Plugins []plugin.DynamicRoster
}

// App owns every long-lived component of the daemon
type App struct {
	cfg        *config.Config
	logger     *logging.Logger
	ownsLogger bool

	store   roster.Store
	db      *sqlite.DB
	redis   *redis.Client
	plugins *plugin.Host

	provider  *dynamic.Composite
	sessions  *session.Registry
	auth      *session.Authenticator
	gatherer  prometheus.Gatherer
	processor *processor.Processor
	disco     *disco.Registry
	events    *EventBus
}

// New builds the application from cfg
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: opts.Logger,
		disco:  disco.NewRegistry(),
		events: NewEventBus(),
	}

	if a.logger == nil {
		logger, err := logging.New(logging.Config{
			Level:   cfg.Logging.Level,
			File:    cfg.Logging.File,
			Console: cfg.Logging.Console,
		})
		if err != nil {
			return nil, err
		}
		a.logger = logger
		a.ownsLogger = true
	}

	if err := a.openStore(); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.buildProvider(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}

	a.sessions = session.NewRegistry(a.logger.Named("sessions"))
	auth, err := session.NewAuthenticator(cfg.General.Domain, opts.Accounts, a.logger.Named("auth"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.auth = auth

	reg := opts.Registerer
	if reg == nil {
		private := prometheus.NewRegistry()
		reg = private
		a.gatherer = private
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		a.gatherer = g
	}

	a.processor = processor.New(processor.Options{
		Store:           a.store,
		Provider:        a.provider,
		Notifier:        a.sessions,
		Logger:          a.logger.Named("processor"),
		Metrics:         processor.NewMetrics(reg, cfg.Metrics.Namespace),
		ChunkSize:       cfg.Roster.PushChunkSize,
		AnonymousMarker: cfg.Roster.AnonymousMarker,
	})
	a.disco.Register("roster", processor.Features())

	a.logger.Info("rosterd ready: domain=%s storage=%s", cfg.General.Domain, cfg.Storage.Backend)
	return a, nil
}

func (a *App) openStore() error {
	switch a.cfg.Storage.Backend {
	case "memory":
		a.store = roster.NewMemoryStore()
	case "sqlite":
		db, err := sqlite.New(a.cfg.Storage.Path)
		if err != nil {
			return err
		}
		a.db = db
		a.store = db
	default:
		return fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
	return nil
}

func (a *App) buildProvider(ctx context.Context, opts Options) error {
	logger := a.logger.Named("dynamic")

	var extras dynamic.ExtraStore
	if a.cfg.Dynamic.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: a.cfg.Dynamic.RedisAddr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", a.cfg.Dynamic.RedisAddr, err)
		}
		extras = dynamic.IgnoreSettings(dynamic.NewRedisExtraStore(a.redis, a.cfg.Dynamic.RedisPrefix))
	}

	var sources []dynamic.ContactSource
	if a.cfg.Dynamic.Directory != "" {
		dir, err := dynamic.LoadDirectory(a.cfg.Dynamic.Directory)
		if err != nil {
			return err
		}
		sources = append(sources, dir)
	}
	sources = append(sources, opts.Sources...)

	pluginLog := a.logger.Named("plugin")
	a.plugins = plugin.NewHost(a.cfg.Dynamic.PluginDir, pluginLog.Info)
	if !opts.SkipPlugins {
		if err := a.plugins.LoadAll(ctx); err != nil {
			return fmt.Errorf("failed to load plugins: %w", err)
		}
	}
	for i, r := range opts.Plugins {
		if _, err := a.plugins.Attach(ctx, fmt.Sprintf("in-process-%d", i), r); err != nil {
			return err
		}
	}
	for _, lp := range a.plugins.List() {
		src := dynamic.FromPlugin(lp.Roster)
		sources = append(sources, src)
		// the first plugin keeps dynamic item data unless redis does
		if extras == nil {
			extras = src
			logger.Info("dynamic item data kept by plugin %s", lp.Metadata.Name)
		}
		a.disco.Register("plugin:"+lp.Metadata.Name, disco.Info{
			Identities: []disco.Identity{{Category: "component", Type: "roster", Name: lp.Metadata.Name}},
		})
	}

	if extras == nil {
		if a.db != nil {
			extras = dynamic.IgnoreSettings(a.db)
		} else {
			extras = dynamic.IgnoreSettings(dynamic.NewMemoryExtraStore())
		}
	}

	a.provider = dynamic.NewComposite(extras, logger, sources...)
	return nil
}

// Login authenticates a new session with SASL PLAIN and registers it
func (a *App) Login(connID, resource, user, password string) (*session.Session, error) {
	response, err := session.PlainResponse(user, password)
	if err != nil {
		return nil, err
	}

	s := a.sessions.NewSession(connID, resource)
	if err := a.auth.Authenticate(s, response); err != nil {
		return nil, err
	}
	if err := a.sessions.Register(s); err != nil {
		return nil, err
	}

	full, _ := s.JID()
	a.events.Publish(EventMsg{Type: EventSessionOpened, Data: SessionEvent{
		ConnectionID: s.ConnectionID(),
		JID:          full.String(),
	}})
	return s, nil
}

// Logout unregisters a session
func (a *App) Logout(s *session.Session) {
	full, _ := s.JID()
	a.sessions.Unregister(s)
	a.events.Publish(EventMsg{Type: EventSessionClosed, Data: SessionEvent{
		ConnectionID: s.ConnectionID(),
		JID:          full.String(),
	}})
}

// Handle processes one request of s and appends the outbound stanzas to
// results
func (a *App) Handle(ctx context.Context, s *session.Session, req *xmpp.Request, results *xmpp.Queue) processor.Outcome {
	before := results.Len()
	outcome := a.processor.Process(ctx, req, s, dynamic.Settings(a.cfg.Dynamic.Settings), results)
	a.events.Publish(EventMsg{Type: EventRequestProcessed, Data: RequestEvent{
		ConnectionID: s.ConnectionID(),
		Request:      req.String(),
		Outcome:      outcome.String(),
		Packets:      results.Len() - before,
	}})
	return outcome
}

// Config returns the configuration the app was built from
func (a *App) Config() *config.Config {
	return a.cfg
}

// Logger returns the application logger
func (a *App) Logger() *logging.Logger {
	return a.logger
}

// Store returns the roster store
func (a *App) Store() roster.Store {
	return a.store
}

// Sessions returns the session registry
func (a *App) Sessions() *session.Registry {
	return a.sessions
}

// Authenticator returns the account authenticator
func (a *App) Authenticator() *session.Authenticator {
	return a.auth
}

// Events returns the event bus
func (a *App) Events() *EventBus {
	return a.events
}

// Gatherer returns the metrics registry, nil if the caller supplied a
// registerer that cannot be gathered
func (a *App) Gatherer() prometheus.Gatherer {
	return a.gatherer
}

// Features returns the advertised service discovery information
func (a *App) Features() disco.Info {
	return a.disco.Info()
}

// Owners lists users with a persisted roster. Only the sqlite backend
// supports it.
func (a *App) Owners(ctx context.Context) ([]string, error) {
	if a.db == nil {
		return nil, errors.New("listing owners requires the sqlite backend")
	}
	owners, err := a.db.Owners(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(owners))
	for i, o := range owners {
		out[i] = o.String()
	}
	return out, nil
}

// Close releases every resource held by the app
func (a *App) Close() error {
	var errs []error
	if a.plugins != nil {
		a.plugins.UnloadAll()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.events.Clear()
	if a.ownsLogger {
		if err := a.logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
