// Package events carries prescription status changes to whoever dispatches
// notifications. Delivery is best effort and happens after the database
// transaction has committed.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"medeasy/rx/domain"
)

// Type names a prescription event.
type Type string

const (
	PrescriptionDispensed Type = "prescription.dispensed"
	PrescriptionCompleted Type = "prescription.completed"
	PrescriptionCancelled Type = "prescription.cancelled"
	PrescriptionRefilled  Type = "prescription.refilled"
)

// Event is the message published for one committed transition.
type Event struct {
	ID             string        `json:"id"`
	Type           Type          `json:"type"`
	PharmacyID     int64         `json:"pharmacy_id"`
	PrescriptionID int64         `json:"prescription_id"`
	PatientID      int64         `json:"patient_id"`
	Status         domain.Status `json:"status"`
	ActorID        int64         `json:"actor_id"`
	RefillID       *int64        `json:"refill_id,omitempty"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// New stamps an event for p with a fresh id.
func New(t Type, p *domain.Prescription, actorID int64, at time.Time) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           t,
		PharmacyID:     p.PharmacyID,
		PrescriptionID: p.ID,
		PatientID:      p.PatientID,
		Status:         p.Status,
		ActorID:        actorID,
		OccurredAt:     at.UTC(),
	}
}

// Publisher sends events to the outside world.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
