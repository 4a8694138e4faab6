// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package manager runs protocol sessions: it owns the session registry,
// reacts to protocol events and turns commands into protocol actions.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/wabridge/internal/cache"
	"github.com/ManuGH/wabridge/internal/clock"
	"github.com/ManuGH/wabridge/internal/domain/session/command"
	"github.com/ManuGH/wabridge/internal/domain/session/event"
	"github.com/ManuGH/wabridge/internal/domain/session/lifecycle"
	"github.com/ManuGH/wabridge/internal/domain/session/model"
	"github.com/ManuGH/wabridge/internal/domain/session/ports"
	xlog "github.com/ManuGH/wabridge/internal/log"
	"github.com/ManuGH/wabridge/internal/ratelimit"
	"github.com/ManuGH/wabridge/internal/resilience"
)

// Config tunes reconnect, pairing and enrichment behaviour.
type Config struct {
	ReconnectBase          time.Duration
	ReconnectMax           time.Duration
	MaxRetries             int
	PairingMaxRetries      int
	PairingFallback        time.Duration
	PairingRequestAttempts int
	// PairingRetryStep is multiplied by the attempt number after a
	// not-connected pairing failure.
	PairingRetryStep  time.Duration
	DedupTTL          time.Duration
	ForceRestartDelay time.Duration
	// PairingClientName is the display name shown on the phone for
	// pairing-code logins.
	PairingClientName string
	ProfileCacheTTL   time.Duration
	EnrichmentTimeout time.Duration
}

// DefaultConfig mirrors the daemon defaults.
func DefaultConfig() Config {
	return Config{
		ReconnectBase:          5 * time.Second,
		ReconnectMax:           lifecycle.DefaultMaxDelay,
		MaxRetries:             5,
		PairingMaxRetries:      10,
		PairingFallback:        10 * time.Second,
		PairingRequestAttempts: 3,
		PairingRetryStep:       2 * time.Second,
		DedupTTL:               DefaultDedupTTL,
		ForceRestartDelay:      time.Second,
		PairingClientName:      "Chrome (Linux)",
		ProfileCacheTTL:        time.Hour,
		EnrichmentTimeout:      5 * time.Second,
	}
}

func (c Config) validate() error {
	if c.ReconnectBase <= 0 {
		return fmt.Errorf("ReconnectBase must be > 0, got %v", c.ReconnectBase)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("MaxRetries must be > 0, got %d", c.MaxRetries)
	}
	if c.PairingMaxRetries <= 0 {
		return fmt.Errorf("PairingMaxRetries must be > 0, got %d", c.PairingMaxRetries)
	}
	if c.PairingRequestAttempts <= 0 {
		return fmt.Errorf("PairingRequestAttempts must be > 0, got %d", c.PairingRequestAttempts)
	}
	if c.PairingFallback <= 0 {
		return fmt.Errorf("PairingFallback must be > 0, got %v", c.PairingFallback)
	}
	if c.ForceRestartDelay < 0 {
		return fmt.Errorf("ForceRestartDelay must be >= 0, got %v", c.ForceRestartDelay)
	}
	if c.PairingClientName == "" {
		return errors.New("PairingClientName must be set")
	}
	return nil
}

// Deps are the collaborators the orchestrator drives. Connector, Credentials
// and Events are required.
type Deps struct {
	Connector   ports.Connector
	Credentials ports.CredentialStore
	Events      *event.Publisher
	Clock       clock.Clock
	// Profiles caches profile picture URLs by JID.
	Profiles cache.Cache
	// Breakers guards profile lookups per session.
	Breakers *resilience.Group
	// PairingLimiter throttles pairing code requests per session.
	PairingLimiter *ratelimit.Limiter
}

// Orchestrator owns every live session of the process.
type Orchestrator struct {
	cfg       Config
	connector ports.Connector
	creds     ports.CredentialStore
	events    *event.Publisher
	clock     clock.Clock
	profiles  cache.Cache
	breakers  *resilience.Group
	pairing   *ratelimit.Limiter
	logger    zerolog.Logger

	registry *registry
	dedup    *dedupSet
	workers  workerGroup
	gen      atomic.Uint64

	// ctx scopes work started by protocol events and timers; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

var _ command.Handler = (*Orchestrator)(nil)

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if deps.Connector == nil {
		return nil, errors.New("connector must be set")
	}
	if deps.Credentials == nil {
		return nil, errors.New("credential store must be set")
	}
	if deps.Events == nil {
		return nil, errors.New("event publisher must be set")
	}
	if cfg.PairingRetryStep <= 0 {
		cfg.PairingRetryStep = 2 * time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = lifecycle.DefaultMaxDelay
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Profiles == nil {
		deps.Profiles = cache.NewNoOpCache()
	}
	if deps.Breakers == nil {
		deps.Breakers = resilience.NewGroup("profile_lookup", 5, 30*time.Second, resilience.WithClock(deps.Clock))
	}
	if deps.PairingLimiter == nil {
		deps.PairingLimiter = ratelimit.New(ratelimit.PairingConfig())
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:       cfg,
		connector: deps.Connector,
		creds:     deps.Credentials,
		events:    deps.Events,
		clock:     deps.Clock,
		profiles:  deps.Profiles,
		breakers:  deps.Breakers,
		pairing:   deps.PairingLimiter,
		logger:    xlog.WithComponent("orchestrator"),
		registry:  newRegistry(),
		dedup:     newDedupSet(deps.Clock, cfg.DedupTTL),
		ctx:       ctx,
		cancel:    cancel,
	}
	recordSessionGauge(o.registry.countByStatus())
	return o, nil
}

func (o *Orchestrator) log(ctx context.Context, e *sessionEntry) zerolog.Logger {
	l := xlog.WithContext(ctx, o.logger)
	if e == nil {
		return l
	}
	return l.With().Str(xlog.FieldSessionID, e.id).Str(xlog.FieldTenantID, e.tenantID).Logger()
}

func (o *Orchestrator) refreshGauge() {
	recordSessionGauge(o.registry.countByStatus())
}

func (o *Orchestrator) emitStatus(ctx context.Context, tenantID, sessionID string, status model.Status) {
	_ = o.events.Status(ctx, tenantID, event.StatusPayload{SessionID: sessionID, Status: status})
}

// Start brings a session online. An existing session is left alone (its
// status is re-emitted) unless c.Force is set.
func (o *Orchestrator) Start(ctx context.Context, tenantID string, c command.StartSession) error {
	opts := model.StartOptions{
		Force:          c.Force,
		ClearAuth:      c.ClearAuth,
		UsePairingCode: c.UsePairingCode,
		PhoneNumber:    digitsOnly(c.PhoneNumber.String()),
		KeepAlive:      c.KeepAlive,
		SyncHistory:    c.SyncHistory,
		SyncPeriodDays: c.SyncPeriod,
	}
	if o.workers.Closing() {
		return errors.New("orchestrator is shutting down")
	}

	e := newEntry(c.SessionID, tenantID, o.gen.Add(1), opts)
	cur, reserved := o.registry.reserve(e)
	if !reserved && opts.Force {
		l := o.log(ctx, cur)
		l.Info().Str(xlog.FieldEvent, "session.force_restart").Bool("clear_auth", opts.ClearAuth).Msg("forced restart of live session")
		o.teardown(cur, opts.ClearAuth)
		if err := o.clock.Sleep(ctx, o.cfg.ForceRestartDelay); err != nil {
			return err
		}
		cur, reserved = o.registry.reserve(e)
	}
	if !reserved {
		status := cur.Status()
		if status != model.StatusConnected {
			status = model.StatusOpening
		}
		l := o.log(ctx, cur)
		l.Debug().Str("status", string(status)).Msg("start ignored: session already registered")
		sessionStartsTotal.WithLabelValues("already_running").Inc()
		o.emitStatus(ctx, cur.tenantID, cur.id, status)
		return nil
	}

	o.refreshGauge()
	o.emitStatus(ctx, tenantID, e.id, model.StatusOpening)

	if err := o.bootstrap(ctx, e); err != nil {
		o.failBootstrap(ctx, e, err)
		return nil
	}
	sessionStartsTotal.WithLabelValues("started").Inc()
	return nil
}

// bootstrap wipes (pairing mode), loads credentials, opens the client and
// connects it. The registry entry already exists.
func (o *Orchestrator) bootstrap(ctx context.Context, e *sessionEntry) error {
	l := o.log(ctx, e)
	if e.opts.UsePairingCode {
		if err := o.creds.Wipe(e.id); err != nil {
			return fmt.Errorf("wipe credentials for pairing: %w", err)
		}
	}
	if version, err := o.connector.Version(ctx); err != nil {
		l.Warn().Err(err).Msg("protocol version lookup failed, using adapter default")
	} else {
		l.Info().Str("protocol_version", version).Bool("pairing", e.opts.UsePairingCode).Msg("opening protocol connection")
	}
	return o.connect(ctx, e)
}

// connect opens and connects a fresh client for e and starts its event loop.
func (o *Orchestrator) connect(ctx context.Context, e *sessionEntry) error {
	dir, err := o.creds.Dir(e.id)
	if err != nil {
		return fmt.Errorf("credential dir: %w", err)
	}
	auth, err := o.creds.Load(e.id)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	sessionID := e.id
	client, err := o.connector.Open(ctx, ports.ConnectConfig{
		SessionID: sessionID,
		Dir:       dir,
		Auth:      auth,
		SaveCredentials: func(st ports.AuthState) error {
			return o.creds.Save(sessionID, st)
		},
		PairingCode: e.opts.UsePairingCode,
		PhoneNumber: e.opts.PhoneNumber,
		SyncHistory: e.opts.SyncHistory,
	})
	if err != nil {
		return fmt.Errorf("open protocol client: %w", err)
	}

	if !o.registry.current(e) || e.isManual() {
		_ = client.Close()
		return errors.New("session removed while opening")
	}
	e.attach(client)
	if !o.workers.Go(func() { o.runLoop(e, client) }) {
		_ = client.Close()
		return errors.New("orchestrator is shutting down")
	}

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if e.opts.UsePairingCode && !auth.Registered {
		o.armPairingFallback(e, client)
	}
	return nil
}

func (o *Orchestrator) failBootstrap(ctx context.Context, e *sessionEntry, err error) {
	l := o.log(ctx, e)
	l.Error().Err(err).Str(xlog.FieldEvent, "session.bootstrap_failed").Msg("session bootstrap failed")
	sessionStartsTotal.WithLabelValues("failed").Inc()
	o.terminate(ctx, e, "bootstrap_failed")
}

// teardown closes a live session without emitting anything. Credentials are
// wiped only when wipe is set.
func (o *Orchestrator) teardown(e *sessionEntry, wipe bool) {
	if c := e.markManual(); c != nil {
		_ = c.Close()
	}
	o.registry.remove(e)
	o.refreshGauge()
	o.pairing.Forget(e.id)
	if wipe {
		if err := o.creds.Wipe(e.id); err != nil {
			l := o.log(o.ctx, e)
			l.Error().Err(err).Msg("credential wipe failed")
		}
	}
}

// Stop closes the session, forgets it and wipes its credentials. The
// manual marker is set before the handle is closed so a racing close event
// never reconnects.
func (o *Orchestrator) Stop(ctx context.Context, tenantID string, c command.StopSession) error {
	if e, ok := o.registry.get(c.SessionID); ok {
		tenantID = e.tenantID
		o.teardown(e, false)
	}
	if err := o.creds.Wipe(c.SessionID); err != nil {
		l := xlog.WithContext(ctx, o.logger)
		l.Error().Err(err).Str(xlog.FieldSessionID, c.SessionID).Msg("credential wipe on stop failed")
	}
	l := xlog.WithContext(ctx, o.logger)
	l.Info().Str(xlog.FieldSessionID, c.SessionID).Str(xlog.FieldEvent, "session.stopped").Msg("session stopped")
	o.emitStatus(ctx, tenantID, c.SessionID, model.StatusDisconnected)
	return nil
}

// terminate forgets e and emits a terminal DISCONNECTED.
func (o *Orchestrator) terminate(ctx context.Context, e *sessionEntry, reason string) {
	if c := e.markManual(); c != nil {
		_ = c.Close()
	}
	e.setStatus(model.StatusDisconnected)
	removed := o.registry.remove(e)
	o.refreshGauge()
	o.pairing.Forget(e.id)
	if !removed {
		return
	}
	l := o.log(ctx, e)
	l.Warn().Str(xlog.FieldReason, reason).Str(xlog.FieldEvent, "session.terminated").Msg("session terminated")
	o.emitStatus(ctx, e.tenantID, e.id, model.StatusDisconnected)
}

// backoffFor picks the retry budget for a session's start options.
func (o *Orchestrator) backoffFor(opts model.StartOptions) lifecycle.Backoff {
	b := lifecycle.Backoff{Base: o.cfg.ReconnectBase, Max: o.cfg.ReconnectMax, MaxAttempts: o.cfg.MaxRetries}
	if opts.UsePairingCode {
		b = b.WithCeiling(o.cfg.PairingMaxRetries)
	}
	if opts.KeepAlive {
		b = b.Unbounded()
	}
	return b
}

// scheduleReconnect arms the backoff timer or gives up once the budget is spent.
func (o *Orchestrator) scheduleReconnect(e *sessionEntry) {
	policy := o.backoffFor(e.opts)

	e.mu.Lock()
	if e.manual {
		e.mu.Unlock()
		return
	}
	attempt := e.retries
	if !policy.Allow(attempt) {
		e.mu.Unlock()
		reconnectAttemptsTotal.WithLabelValues("exhausted").Inc()
		o.terminate(o.ctx, e, "retries_exhausted")
		return
	}
	e.retries++
	e.status = model.StatusDisconnected
	delay := policy.Delay(attempt)
	e.mu.Unlock()

	reconnectAttemptsTotal.WithLabelValues("scheduled").Inc()
	reconnectDelay.Observe(delay.Seconds())
	l := o.log(o.ctx, e)
	l.Info().Int(xlog.FieldAttempt, attempt+1).Dur(xlog.FieldDelay, delay).Msg("reconnect scheduled")
	o.refreshGauge()

	t := o.clock.AfterFunc(delay, func() {
		o.workers.Run(func() { o.reconnect(e) })
	})
	e.mu.Lock()
	if e.manual {
		t.Stop()
	} else {
		e.reconnect = t
	}
	e.mu.Unlock()
}

func (o *Orchestrator) reconnect(e *sessionEntry) {
	if !o.registry.current(e) || e.isManual() {
		return
	}
	e.mu.Lock()
	e.reconnect = nil
	e.mu.Unlock()

	prev := e.Client()
	if err := o.connect(o.ctx, e); err != nil {
		l := o.log(o.ctx, e)
		l.Warn().Err(err).Msg("reconnect attempt failed")
		// a client attached by this attempt owns its close; the previous
		// one was already claimed by handleClose
		if c := e.Client(); c != nil && c != prev {
			_ = c.Close()
			if !e.claimClose(c) {
				return
			}
		}
		o.scheduleReconnect(e)
	}
}

// Shutdown closes every live session without wiping credentials, so a
// process restart followed by session.start resumes them.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	entries := o.registry.drain()
	for _, e := range entries {
		if c := e.markManual(); c != nil {
			_ = c.Close()
		}
		e.setStatus(model.StatusDisconnected)
		o.emitStatus(ctx, e.tenantID, e.id, model.StatusDisconnected)
	}
	o.refreshGauge()
	o.logger.Info().Int("sessions", len(entries)).Str(xlog.FieldEvent, "orchestrator.shutdown").Msg("sessions closed")

	o.cancel()
	o.dedup.Close()
	return o.workers.CloseAndWait(ctx)
}

// Sessions returns the registered sessions ordered by id.
func (o *Orchestrator) Sessions() []SessionInfo {
	return o.registry.snapshot()
}

// SessionCount returns how many sessions are registered.
func (o *Orchestrator) SessionCount() int {
	return o.registry.len()
}

// liveClient returns the registered entry and client for id, if any.
func (o *Orchestrator) liveClient(id string) (*sessionEntry, ports.Client) {
	e, ok := o.registry.get(id)
	if !ok {
		return nil, nil
	}
	c := e.Client()
	if c == nil {
		return e, nil
	}
	return e, c
}
