package gateway

import (
	"context"
	"fmt"

	"go-status-hub/internal/domain"
)

// Read path. These calls never publish.

func (g *Gateway) ListServices(ctx context.Context) ([]domain.Service, error) {
	cctx, cancel := g.commitContext(ctx)
	defer cancel()
	return g.store.ListServices(cctx)
}

func (g *Gateway) GetService(ctx context.Context, id string) (domain.Service, error) {
	cctx, cancel := g.commitContext(ctx)
	defer cancel()
	return g.store.GetService(cctx, id)
}

// ServiceUptime returns the daily uptime of a service over the last days
// days, including today.
func (g *Gateway) ServiceUptime(ctx context.Context, id string, days int) ([]domain.DailyUptime, error) {
	if days <= 0 {
		return nil, invalid(fmt.Errorf("days must be positive, got %d", days))
	}
	cctx, cancel := g.commitContext(ctx)
	defer cancel()
	if _, err := g.store.GetService(cctx, id); err != nil {
		return nil, err
	}
	points, err := g.store.ListUptime(cctx, id, domain.UptimeWindowStart(g.clock.now(), days))
	if err != nil {
		return nil, err
	}
	return domain.AggregateDailyUptime(points), nil
}

func (g *Gateway) ListIncidents(ctx context.Context) ([]domain.IncidentView, error) {
	cctx, cancel := g.commitContext(ctx)
	defer cancel()
	incidents, err := g.store.ListIncidents(cctx)
	if err != nil {
		return nil, err
	}

	// resolve every referenced service with one lookup
	seen := map[string]struct{}{}
	var ids []string
	for _, inc := range incidents {
		for _, id := range inc.Services {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	services, err := g.store.GetServices(cctx, ids)
	if err != nil {
		return nil, err
	}
	byID := indexServices(services)

	views := make([]domain.IncidentView, 0, len(incidents))
	for _, inc := range incidents {
		views = append(views, buildView(inc, byID))
	}
	return views, nil
}

func (g *Gateway) GetIncident(ctx context.Context, id string) (domain.IncidentView, error) {
	cctx, cancel := g.commitContext(ctx)
	defer cancel()
	inc, err := g.store.GetIncident(cctx, id)
	if err != nil {
		return domain.IncidentView{}, err
	}
	services, err := g.store.GetServices(cctx, inc.Services)
	if err != nil {
		return domain.IncidentView{}, err
	}
	return buildView(inc, indexServices(services)), nil
}

// incidentView resolves the services of a committed incident. When the
// lookup fails the refs carry ids only.
func (g *Gateway) incidentView(ctx context.Context, inc domain.Incident) domain.IncidentView {
	cctx, cancel := g.commitContext(context.WithoutCancel(ctx))
	defer cancel()
	services, err := g.store.GetServices(cctx, inc.Services)
	if err != nil {
		g.logger.WithField("incident_id", inc.ID).Warnf("Failed to resolve incident services: %v", err)
		view := domain.IncidentView{Incident: inc, Services: make([]domain.ServiceRef, 0, len(inc.Services))}
		for _, id := range inc.Services {
			view.Services = append(view.Services, domain.ServiceRef{ID: id})
		}
		return view
	}
	return buildView(inc, indexServices(services))
}

func indexServices(services []domain.Service) map[string]domain.Service {
	byID := make(map[string]domain.Service, len(services))
	for _, s := range services {
		byID[s.ID] = s
	}
	return byID
}

// buildView keeps the incident's service order and drops services that no
// longer exist.
func buildView(inc domain.Incident, byID map[string]domain.Service) domain.IncidentView {
	refs := make([]domain.ServiceRef, 0, len(inc.Services))
	for _, id := range inc.Services {
		if s, ok := byID[id]; ok {
			refs = append(refs, s.Ref())
		}
	}
	return domain.IncidentView{Incident: inc, Services: refs}
}
