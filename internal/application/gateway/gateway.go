// Package gateway is the only write path for services and incidents. Every
// mutation is committed to the record store first; the resulting event is
// published to the hub only after the commit succeeded, carrying the
// document the store returned.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-status-hub/internal/domain"
	"go-status-hub/internal/infrastructure/hub"
	"go-status-hub/internal/infrastructure/logger"
	"go-status-hub/internal/infrastructure/notify"
	"go-status-hub/internal/infrastructure/store"
)

var (
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid request")
	// ErrUnauthorized is returned when no acting user is known.
	ErrUnauthorized = errors.New("unauthorized")
)

// Publisher fans an event out to the members of a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message *hub.Message) hub.PublishReport
}

type Config struct {
	// CommitTimeout bounds every store call.
	CommitTimeout time.Duration
	// NotifyTimeout bounds one status-change notification.
	NotifyTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{CommitTimeout: 5 * time.Second, NotifyTimeout: 10 * time.Second}
}

type Option func(*Gateway)

// WithNow replaces the wall clock the gateway stamps updatedAt from.
func WithNow(now func() time.Time) Option {
	return func(g *Gateway) { g.clock = newClock(now) }
}

type Gateway struct {
	store     store.Store
	publisher Publisher
	notifier  notify.Sender
	logger    logger.Logger
	cfg       Config
	clock     *clock

	// entities orders stamp and commit of one entity
	entities *keyedMutex

	notifications sync.WaitGroup
}

// New builds a Gateway. A nil notifier disables status-change alerts.
func New(st store.Store, pub Publisher, notifier notify.Sender, log logger.Logger, cfg Config, opts ...Option) *Gateway {
	def := DefaultConfig()
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = def.CommitTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = def.NotifyTimeout
	}
	g := &Gateway{
		store:     st,
		publisher: pub,
		notifier:  notifier,
		logger:    log.WithField("component", "gateway"),
		cfg:       cfg,
		clock:     newClock(nil),
		entities:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) commitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.cfg.CommitTimeout)
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}

func (g *Gateway) publish(ctx context.Context, ev domain.StatusEvent) {
	channel := domain.ChannelFor(ev.Kind)
	// delivered even if the request is cancelled after the commit
	report := g.publisher.Publish(context.WithoutCancel(ctx), channel, hub.EventMessage(ev))

	entry := g.logger.WithContext(ctx).WithFields(logger.Fields{
		"event":     ev.Kind,
		"entity_id": ev.EntityID,
		"channel":   channel,
		"delivered": report.Delivered,
	})
	if len(report.Failed) > 0 {
		entry.WithField("failed", report.Failed).Warn("Event not delivered to every member")
		return
	}
	entry.Debug("Event published")
}

// CreateService commits a new service and announces serviceCreated. An
// empty status defaults to operational.
func (g *Gateway) CreateService(ctx context.Context, actor string, svc domain.Service) (domain.Service, error) {
	if actor == "" {
		return domain.Service{}, ErrUnauthorized
	}
	if svc.Status == "" {
		svc.Status = domain.StatusOperational
	}
	if err := domain.ValidateNewService(svc); err != nil {
		return domain.Service{}, invalid(err)
	}
	now := g.clock.Now()
	svc.CreatedBy = actor
	svc.CreatedAt = now
	svc.UpdatedAt = now

	cctx, cancel := g.commitContext(ctx)
	defer cancel()
	created, err := g.store.CreateService(cctx, svc)
	if err != nil {
		return domain.Service{}, fmt.Errorf("create service: %w", err)
	}

	g.publish(ctx, domain.StatusEvent{
		Kind:      domain.ServiceCreated,
		EntityID:  created.ID,
		Payload:   created,
		Timestamp: created.UpdatedAt,
	})
	g.recordUptime(ctx, created)
	return created, nil
}

// ApplyServiceChange commits patch to service id and announces
// serviceUpdated with the persisted document. A status transition also
// records an uptime point and sends a notification.
func (g *Gateway) ApplyServiceChange(ctx context.Context, actor, id string, patch domain.ServicePatch) (domain.Service, error) {
	if actor == "" {
		return domain.Service{}, ErrUnauthorized
	}
	if patch.Empty() {
		return domain.Service{}, invalid(errors.New("no fields to update"))
	}
	if err := patch.Validate(); err != nil {
		return domain.Service{}, invalid(err)
	}
	unlock := g.entities.Lock("service/" + id)
	defer unlock()
	patch.UpdatedAt = g.clock.Now()

	cctx, cancel := g.commitContext(ctx)
	defer cancel()
	change, err := g.store.UpdateService(cctx, id, patch)
	if err != nil {
		return domain.Service{}, fmt.Errorf("update service %s: %w", id, err)
	}
	svc := change.After

	g.publish(ctx, domain.StatusEvent{
		Kind:      domain.ServiceUpdated,
		EntityID:  svc.ID,
		Payload:   svc,
		Timestamp: svc.UpdatedAt,
	})

	if change.Before.Status != svc.Status {
		g.logger.WithContext(ctx).WithFields(logger.Fields{
			"service_id": svc.ID,
			"old_status": change.Before.Status,
			"new_status": svc.Status,
		}).Info("Service status changed")
		g.recordUptime(ctx, svc)
		g.notifyStatusChange(ctx, svc, change.Before.Status, svc.Status)
	}
	return svc, nil
}

// DeleteService removes service id and announces serviceDeleted with a
// tombstone dated at the deletion.
func (g *Gateway) DeleteService(ctx context.Context, actor, id string) (domain.Service, error) {
	if actor == "" {
		return domain.Service{}, ErrUnauthorized
	}

	unlock := g.entities.Lock("service/" + id)
	defer unlock()

	cctx, cancel := g.commitContext(ctx)
	defer cancel()
	deleted, err := g.store.DeleteService(cctx, id)
	if err != nil {
		return domain.Service{}, fmt.Errorf("delete service %s: %w", id, err)
	}

	at := g.clock.Now()
	g.publish(ctx, domain.StatusEvent{
		Kind:      domain.ServiceDeleted,
		EntityID:  deleted.ID,
		Payload:   domain.Tombstone{ID: deleted.ID, UpdatedAt: at},
		Timestamp: at,
	})
	return deleted, nil
}

// CreateIncident commits a new incident and announces incidentCreated with
// the incident view. Missing status and impact default to investigating and
// none.
func (g *Gateway) CreateIncident(ctx context.Context, actor string, inc domain.Incident) (domain.IncidentView, error) {
	if actor == "" {
		return domain.IncidentView{}, ErrUnauthorized
	}
	if inc.Status == "" {
		inc.Status = domain.IncidentInvestigating
	}
	if inc.Impact == "" {
		inc.Impact = domain.ImpactNone
	}
	if err := domain.ValidateNewIncident(inc); err != nil {
		return domain.IncidentView{}, invalid(err)
	}
	now := g.clock.Now()
	inc.CreatedBy = actor
	inc.CreatedAt = now
	inc.UpdatedAt = now
	for i := range inc.Updates {
		if inc.Updates[i].Message == "" {
			return domain.IncidentView{}, invalid(errors.New("update message cannot be empty"))
		}
		if inc.Updates[i].Status == "" {
			inc.Updates[i].Status = inc.Status
		}
		inc.Updates[i].CreatedAt = now
	}

	cctx, cancel := g.commitContext(ctx)
	defer cancel()
	created, err := g.store.CreateIncident(cctx, inc)
	if err != nil {
		return domain.IncidentView{}, fmt.Errorf("create incident: %w", err)
	}

	view := g.incidentView(ctx, created)
	g.publish(ctx, domain.StatusEvent{
		Kind:      domain.IncidentCreated,
		EntityID:  created.ID,
		Payload:   view,
		Timestamp: created.UpdatedAt,
	})
	return view, nil
}

// ApplyIncidentChange commits patch to incident id and announces
// incidentUpdated. A patch update message is appended to the timeline in the
// same commit.
func (g *Gateway) ApplyIncidentChange(ctx context.Context, actor, id string, patch domain.IncidentPatch) (domain.IncidentView, error) {
	if actor == "" {
		return domain.IncidentView{}, ErrUnauthorized
	}
	if patch.Empty() {
		return domain.IncidentView{}, invalid(errors.New("no fields to update"))
	}
	if err := patch.Validate(); err != nil {
		return domain.IncidentView{}, invalid(err)
	}
	unlock := g.entities.Lock("incident/" + id)
	defer unlock()
	patch.Stamp(g.clock.Now())

	cctx, cancel := g.commitContext(ctx)
	defer cancel()
	change, err := g.store.UpdateIncident(cctx, id, patch)
	if err != nil {
		return domain.IncidentView{}, fmt.Errorf("update incident %s: %w", id, err)
	}

	view := g.incidentView(ctx, change.After)
	g.publish(ctx, domain.StatusEvent{
		Kind:      domain.IncidentUpdated,
		EntityID:  change.After.ID,
		Payload:   view,
		Timestamp: change.After.UpdatedAt,
	})
	return view, nil
}

// DeleteIncident removes incident id and announces incidentDeleted.
func (g *Gateway) DeleteIncident(ctx context.Context, actor, id string) (domain.Incident, error) {
	if actor == "" {
		return domain.Incident{}, ErrUnauthorized
	}

	unlock := g.entities.Lock("incident/" + id)
	defer unlock()

	cctx, cancel := g.commitContext(ctx)
	defer cancel()
	deleted, err := g.store.DeleteIncident(cctx, id)
	if err != nil {
		return domain.Incident{}, fmt.Errorf("delete incident %s: %w", id, err)
	}

	at := g.clock.Now()
	g.publish(ctx, domain.StatusEvent{
		Kind:      domain.IncidentDeleted,
		EntityID:  deleted.ID,
		Payload:   domain.Tombstone{ID: deleted.ID, UpdatedAt: at},
		Timestamp: at,
	})
	return deleted, nil
}

// recordUptime appends the service's current status to its timeline. The
// mutation is already committed, so a failure is logged only.
func (g *Gateway) recordUptime(ctx context.Context, svc domain.Service) {
	cctx, cancel := g.commitContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := g.store.AppendUptime(cctx, domain.NewUptimePoint(svc.ID, svc.Status, svc.UpdatedAt)); err != nil {
		g.logger.WithContext(ctx).WithField("service_id", svc.ID).Errorf("Failed to record uptime: %v", err)
	}
}

func (g *Gateway) notifyStatusChange(ctx context.Context, svc domain.Service, old, new domain.ServiceStatus) {
	if g.notifier == nil {
		return
	}
	log := g.logger.WithContext(context.WithoutCancel(ctx)).WithField("service_id", svc.ID)
	g.notifications.Add(1)
	go func() {
		defer g.notifications.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.NotifyTimeout)
		defer cancel()
		if err := g.notifier.NotifyStatusChange(ctx, svc, old, new); err != nil {
			log.Warnf("Status change notification failed: %v", err)
		}
	}()
}

// Drain waits for in-flight notifications or until ctx ends.
func (g *Gateway) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.notifications.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
