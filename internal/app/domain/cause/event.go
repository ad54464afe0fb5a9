package cause

import "time"

// EventKind names an entry of the registry event log.
type EventKind string

const (
	EventCauseAdded           EventKind = "CauseAdded"
	EventCauseUpdated         EventKind = "CauseUpdated"
	EventDonationReceived     EventKind = "DonationReceived"
	EventOwnershipTransferred EventKind = "OwnershipTransferred"
)

// Event is an append-only log entry written in the same transaction as the
// operation that produced it. Addresses are Neo N3 address strings.
type Event struct {
	Seq           uint64    `json:"seq"`
	Kind          EventKind `json:"kind"`
	CauseID       uint64    `json:"cause_id,omitempty"`
	Name          string    `json:"name,omitempty"`
	Donor         string    `json:"donor,omitempty"`
	Amount        uint64    `json:"amount,omitempty"`
	PreviousOwner string    `json:"previous_owner,omitempty"`
	NewOwner      string    `json:"new_owner,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
