package domain

import (
	"fmt"
	"strings"
	"time"
)

// ServiceStatus is the operational status reported for a service.
type ServiceStatus string

const (
	StatusOperational         ServiceStatus = "operational"
	StatusDegradedPerformance ServiceStatus = "degraded_performance"
	StatusPartialOutage       ServiceStatus = "partial_outage"
	StatusMajorOutage         ServiceStatus = "major_outage"
)

// Valid reports whether s is one of the known service statuses
func (s ServiceStatus) Valid() bool {
	switch s {
	case StatusOperational, StatusDegradedPerformance, StatusPartialOutage, StatusMajorOutage:
		return true
	}
	return false
}

// Service is a registered service and its current status.
type Service struct {
	ID             string        `json:"id"                       bson:"_id"`
	Name           string        `json:"name"                     bson:"name"`
	Description    string        `json:"description"              bson:"description"`
	Status         ServiceStatus `json:"status"                   bson:"status"`
	OrganizationID string        `json:"organizationId,omitempty" bson:"organizationId,omitempty"`
	CreatedBy      string        `json:"createdBy"                bson:"createdBy"`
	CreatedAt      time.Time     `json:"createdAt"                bson:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"                bson:"updatedAt"`
}

// ServicePatch is a partial update. Nil fields are left untouched.
type ServicePatch struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Status      *ServiceStatus `json:"status,omitempty"`

	// UpdatedAt is stamped by the gateway, never by callers.
	UpdatedAt time.Time `json:"-"`
}

// Empty reports whether the patch changes no user-visible field.
func (p ServicePatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Status == nil
}

// Validate checks the fields present in the patch.
func (p ServicePatch) Validate() error {
	if p.Name != nil {
		if *p.Name == "" {
			return fmt.Errorf("name cannot be empty")
		}
		if err := validName(*p.Name); err != nil {
			return err
		}
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("unknown service status %q", *p.Status)
	}
	return nil
}

// Apply returns a copy of s with the patch applied.
func (p ServicePatch) Apply(s Service) Service {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if !p.UpdatedAt.IsZero() {
		s.UpdatedAt = p.UpdatedAt
	}
	return s
}

// ValidateNewService checks a service about to be created.
func ValidateNewService(s Service) error {
	if s.Name == "" || s.Description == "" {
		return fmt.Errorf("name and description are required")
	}
	if err := validName(s.Name); err != nil {
		return err
	}
	if !s.Status.Valid() {
		return fmt.Errorf("unknown service status %q", s.Status)
	}
	return nil
}

// validName rejects names that cannot be used in a mail header.
func validName(name string) error {
	if strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("name cannot contain line breaks")
	}
	return nil
}

// ServiceRef is the projection of a service embedded in incident views.
type ServiceRef struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Status ServiceStatus `json:"status"`
}

// Ref projects s to a ServiceRef.
func (s Service) Ref() ServiceRef {
	return ServiceRef{ID: s.ID, Name: s.Name, Status: s.Status}
}
