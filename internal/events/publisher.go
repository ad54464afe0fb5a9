// Package events fans committed registry events out to subscribers.
package events

import (
	"context"
	"errors"

	"github.com/R3E-Network/cause_registry/internal/app/domain/cause"
	"github.com/R3E-Network/cause_registry/internal/logging"
)

// Publisher delivers a committed event to some subscriber.
type Publisher interface {
	Publish(ctx context.Context, ev cause.Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, cause.Event) error { return nil }

// Multi publishes to every publisher in order and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev cause.Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes each event to the structured log.
type LogPublisher struct {
	log *logging.Logger
}

func NewLogPublisher(log *logging.Logger) *LogPublisher {
	if log == nil {
		log = logging.New("events", "info", "json")
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, ev cause.Event) error {
	entry := p.log.WithContext(ctx).
		WithField("seq", ev.Seq).
		WithField("kind", ev.Kind)
	if ev.CauseID != 0 {
		entry = entry.WithField("cause_id", ev.CauseID)
	}
	switch ev.Kind {
	case cause.EventDonationReceived:
		entry = entry.WithField("donor", ev.Donor).WithField("amount", ev.Amount)
	case cause.EventOwnershipTransferred:
		entry = entry.WithField("previous_owner", ev.PreviousOwner).WithField("new_owner", ev.NewOwner)
	case cause.EventCauseAdded, cause.EventCauseUpdated:
		entry = entry.WithField("name", ev.Name)
	}
	entry.Info("registry event")
	return nil
}
