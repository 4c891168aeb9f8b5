// Package store is the record store of services, incidents and the uptime
// timeline. Implementations serialize concurrent updates of one document and
// report the document as it was before and after the update.
package store

import (
	"context"
	"errors"
	"time"

	"go-status-hub/internal/domain"
)

// ErrNotFound is returned when the addressed document does not exist.
var ErrNotFound = errors.New("not found")

// ServiceChange is the outcome of an atomic service update.
type ServiceChange struct {
	Before domain.Service
	After  domain.Service
}

// IncidentChange is the outcome of an atomic incident update.
type IncidentChange struct {
	Before domain.Incident
	After  domain.Incident
}

type Store interface {
	ListServices(ctx context.Context) ([]domain.Service, error)
	GetService(ctx context.Context, id string) (domain.Service, error)
	// GetServices returns the services among ids that exist, in no
	// particular order.
	GetServices(ctx context.Context, ids []string) ([]domain.Service, error)
	CreateService(ctx context.Context, s domain.Service) (domain.Service, error)
	UpdateService(ctx context.Context, id string, patch domain.ServicePatch) (ServiceChange, error)
	DeleteService(ctx context.Context, id string) (domain.Service, error)

	// ListIncidents returns incidents, most recent first.
	ListIncidents(ctx context.Context) ([]domain.Incident, error)
	GetIncident(ctx context.Context, id string) (domain.Incident, error)
	CreateIncident(ctx context.Context, inc domain.Incident) (domain.Incident, error)
	UpdateIncident(ctx context.Context, id string, patch domain.IncidentPatch) (IncidentChange, error)
	DeleteIncident(ctx context.Context, id string) (domain.Incident, error)

	AppendUptime(ctx context.Context, p domain.UptimePoint) error
	// ListUptime returns the points of a service recorded at or after since,
	// oldest first.
	ListUptime(ctx context.Context, serviceID string, since time.Time) ([]domain.UptimePoint, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

func normalizeIncident(inc domain.Incident) domain.Incident {
	if inc.Services == nil {
		inc.Services = []string{}
	}
	if inc.Updates == nil {
		inc.Updates = []domain.IncidentUpdate{}
	}
	return inc
}
