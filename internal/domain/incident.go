package domain

import (
	"fmt"
	"time"
)

type IncidentStatus string

const (
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentIdentified    IncidentStatus = "identified"
	IncidentMonitoring    IncidentStatus = "monitoring"
	IncidentResolved      IncidentStatus = "resolved"
)

func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentInvestigating, IncidentIdentified, IncidentMonitoring, IncidentResolved:
		return true
	}
	return false
}

type Impact string

const (
	ImpactNone     Impact = "none"
	ImpactMinor    Impact = "minor"
	ImpactMajor    Impact = "major"
	ImpactCritical Impact = "critical"
)

func (i Impact) Valid() bool {
	switch i {
	case ImpactNone, ImpactMinor, ImpactMajor, ImpactCritical:
		return true
	}
	return false
}

// IncidentUpdate is one entry of an incident's public timeline.
type IncidentUpdate struct {
	Message   string         `json:"message"          bson:"message"`
	Status    IncidentStatus `json:"status,omitempty" bson:"status,omitempty"`
	CreatedAt time.Time      `json:"createdAt"        bson:"createdAt"`
}

// Incident is an open or resolved incident affecting zero or more services.
type Incident struct {
	ID             string           `json:"id"                       bson:"_id"`
	Title          string           `json:"title"                    bson:"title"`
	Description    string           `json:"description"              bson:"description"`
	Status         IncidentStatus   `json:"status"                   bson:"status"`
	Impact         Impact           `json:"impact"                   bson:"impact"`
	OrganizationID string           `json:"organizationId,omitempty" bson:"organizationId,omitempty"`
	Services       []string         `json:"services"                 bson:"services"`
	CreatedBy      string           `json:"createdBy"                bson:"createdBy"`
	Updates        []IncidentUpdate `json:"updates"                  bson:"updates"`
	CreatedAt      time.Time        `json:"createdAt"                bson:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"                bson:"updatedAt"`
}

// IncidentPatch is a partial update of an incident. A non-nil Update is
// appended to the timeline in the same commit. An update with no status
// leaves the timeline entry unlabelled.
type IncidentPatch struct {
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	Status      *IncidentStatus `json:"status,omitempty"`
	Impact      *Impact         `json:"impact,omitempty"`
	Services    *[]string       `json:"services,omitempty"`
	Update      *IncidentUpdate `json:"update,omitempty"`

	UpdatedAt time.Time `json:"-"`
}

func (p IncidentPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Impact == nil && p.Services == nil && p.Update == nil
}

func (p IncidentPatch) Validate() error {
	if p.Title != nil && *p.Title == "" {
		return fmt.Errorf("title cannot be empty")
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("unknown incident status %q", *p.Status)
	}
	if p.Impact != nil && !p.Impact.Valid() {
		return fmt.Errorf("unknown impact %q", *p.Impact)
	}
	if p.Update != nil {
		if p.Update.Message == "" {
			return fmt.Errorf("update message cannot be empty")
		}
		if p.Update.Status != "" && !p.Update.Status.Valid() {
			return fmt.Errorf("unknown update status %q", p.Update.Status)
		}
	}
	return nil
}

// Apply returns a copy of inc with the patch applied. The updates slice is
// copied, never shared with the input.
func (p IncidentPatch) Apply(inc Incident) Incident {
	if p.Title != nil {
		inc.Title = *p.Title
	}
	if p.Description != nil {
		inc.Description = *p.Description
	}
	if p.Status != nil {
		inc.Status = *p.Status
	}
	if p.Impact != nil {
		inc.Impact = *p.Impact
	}
	if p.Services != nil {
		inc.Services = append([]string(nil), (*p.Services)...)
	}
	updates := make([]IncidentUpdate, 0, len(inc.Updates)+1)
	updates = append(updates, inc.Updates...)
	if p.Update != nil {
		updates = append(updates, *p.Update)
	}
	inc.Updates = updates
	if !p.UpdatedAt.IsZero() {
		inc.UpdatedAt = p.UpdatedAt
	}
	return inc
}

// Stamp completes the timeline entry of the patch: it inherits the patched
// status when it names none, and is dated at the patch time.
func (p *IncidentPatch) Stamp(at time.Time) {
	p.UpdatedAt = at
	if p.Update == nil {
		return
	}
	u := *p.Update
	if u.Status == "" && p.Status != nil {
		u.Status = *p.Status
	}
	u.CreatedAt = at
	p.Update = &u
}

func ValidateNewIncident(inc Incident) error {
	if inc.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !inc.Status.Valid() {
		return fmt.Errorf("unknown incident status %q", inc.Status)
	}
	if !inc.Impact.Valid() {
		return fmt.Errorf("unknown impact %q", inc.Impact)
	}
	return nil
}

// IncidentView is an incident with its affected services resolved.
type IncidentView struct {
	Incident
	Services []ServiceRef `json:"services"`
}
