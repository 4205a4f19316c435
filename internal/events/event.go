// Package events defines the domain events exchanged between modules.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event names for subscription.
const (
	EventVisaSold            = "visa.sold"
	EventVisaCancelled       = "visa.cancelled"
	EventVisaReplaced        = "visa.replaced"
	EventVisaArrivalVerified = "visa.arrival_verified"
	EventVisaDeadlineExpired = "visa.deadline_expired"
)

// VisaSold is published when a visa settles as Sold.
type VisaSold struct {
	BaseEvent
	VisaID         uuid.UUID
	AgentID        uuid.UUID
	SellingAgentID *uuid.UUID
	PriceFils      int64
	ProfitFils     int64
	EarningsFils   int64
	SoldAt         time.Time
}

// EventName returns the unique event identifier.
func (VisaSold) EventName() string { return EventVisaSold }

// VisaCancelled is published when a visa is cancelled, manually or by the
// deadline sweep.
type VisaCancelled struct {
	BaseEvent
	VisaID   uuid.UUID
	Reason   string
	BySystem bool
}

// EventName returns the unique event identifier.
func (VisaCancelled) EventName() string { return EventVisaCancelled }

// VisaReplaced is published when a visa is closed and a successor spawned.
type VisaReplaced struct {
	BaseEvent
	VisaID      uuid.UUID
	SuccessorID uuid.UUID
}

// EventName returns the unique event identifier.
func (VisaReplaced) EventName() string { return EventVisaReplaced }

// VisaArrivalVerified is published when beneficiary arrival is verified and
// the cancellation countdown begins.
type VisaArrivalVerified struct {
	BaseEvent
	VisaID     uuid.UUID
	VerifiedBy uuid.UUID
	DeadlineAt time.Time
}

// EventName returns the unique event identifier.
func (VisaArrivalVerified) EventName() string { return EventVisaArrivalVerified }

// VisaDeadlineExpired is published when the sweep cancels a visa whose
// cancellation deadline passed without a sale.
type VisaDeadlineExpired struct {
	BaseEvent
	VisaID     uuid.UUID
	DeadlineAt time.Time
}

// EventName returns the unique event identifier.
func (VisaDeadlineExpired) EventName() string { return EventVisaDeadlineExpired }
