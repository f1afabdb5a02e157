// Package session owns the process registry and every component that shares
// it for the life of one procview run.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zjrosen/procview/internal/config"
	"github.com/zjrosen/procview/internal/controller"
	"github.com/zjrosen/procview/internal/document"
	"github.com/zjrosen/procview/internal/log"
	"github.com/zjrosen/procview/internal/provider"
	"github.com/zjrosen/procview/internal/pubsub"
	"github.com/zjrosen/procview/internal/registry"
	"github.com/zjrosen/procview/internal/retention"
	"github.com/zjrosen/procview/internal/runner"
	"github.com/zjrosen/procview/internal/tracing"
)

// Option configures a Session.
type Option func(*options)

type options struct {
	runner runner.Runner
	host   controller.Host
}

// WithRunner replaces the shell runner built from config.
func WithRunner(r runner.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithHost sets the document host.
func WithHost(h controller.Host) Option {
	return func(o *options) { o.host = h }
}

// Session wires registry, output bus, provider, controller and retention together.
type Session struct {
	id string

	registry   *registry.Registry
	bus        *pubsub.Bus[registry.OutputEvent]
	provider   *provider.Provider
	controller *controller.Controller
	retention  *retention.Policy
	tracing    *tracing.Provider
}

// New builds a session from cfg.
func New(cfg config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{id: uuid.NewString()}

	tp, err := tracing.NewProvider(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		Exporter:     cfg.Tracing.Exporter,
		FilePath:     cfg.Tracing.FilePath,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
		SessionID:    s.id,
	})
	if err != nil {
		return nil, fmt.Errorf("creating tracing provider: %w", err)
	}
	s.tracing = tp

	if o.runner == nil {
		o.runner = runner.NewShellRunner(
			runner.WithShell(cfg.Shell),
			runner.WithWorkDir(cfg.WorkDir),
			runner.WithEnv(cfg.Env),
			runner.WithStderrCapture(cfg.CaptureStderr),
		)
	}

	s.registry = registry.New()
	s.bus = pubsub.NewBus[registry.OutputEvent]("output")
	s.provider = provider.New(s.registry, s.bus)
	s.retention = retention.New(s.registry, cfg.Retention.DetachedTTL, cfg.Retention.CleanupInterval)
	s.controller = controller.New(s.registry, s.bus, o.runner,
		controller.WithHost(o.host),
		controller.WithNotifier(s.provider),
		controller.WithTracer(tp.Tracer()),
		controller.WithDetachHook(s.retention.Schedule),
	)
	s.retention.SetEvictHook(s.controller.Forget)

	log.Info(log.CatController, "session started", "session", s.id, "retention", cfg.Retention.DetachedTTL)
	return s, nil
}

// ID returns the session's unique ID.
func (s *Session) ID() string { return s.id }

// Registry returns the process registry.
func (s *Session) Registry() *registry.Registry { return s.registry }

// Provider returns the document content provider.
func (s *Session) Provider() *provider.Provider { return s.provider }

// Controller returns the lifecycle controller.
func (s *Session) Controller() *controller.Controller { return s.controller }

// Retention returns the eviction policy.
func (s *Session) Retention() *retention.Policy { return s.retention }

// SetHost sets the document host once it exists.
func (s *Session) SetHost(h controller.Host) { s.controller.SetHost(h) }

// Run spawns command and opens its document.
func (s *Session) Run(ctx context.Context, command string) (*controller.Invocation, error) {
	return s.controller.Run(ctx, command)
}

// ContentOf returns the current content of doc.
func (s *Session) ContentOf(doc document.Identity) string {
	return s.provider.ProvideContent(doc)
}

// DocumentClosed tells the session the host closed doc.
func (s *Session) DocumentClosed(doc document.Identity) {
	s.controller.HandleDocumentClosed(doc)
}

// Apply takes the parts of cfg that can change while running.
// Runner settings only apply to new sessions.
func (s *Session) Apply(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.retention.SetTTL(cfg.Retention.DetachedTTL)
	if lvl, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetMinLevel(lvl)
	}
	return nil
}

// Close detaches every process and releases session resources. Processes
// keep running.
func (s *Session) Close(ctx context.Context) error {
	s.controller.Close()
	s.retention.Close()
	s.provider.Close()

	var errs []error
	if err := s.tracing.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down tracing: %w", err))
	}
	log.Info(log.CatController, "session closed", "session", s.id)
	return errors.Join(errs...)
}
