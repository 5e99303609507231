package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"solio-donations/internal/domain"
)

// DefaultEventsTopic is where credited donations are announced.
const DefaultEventsTopic = "donations.credited"

// EventPublisher announces state changes to other services.
type EventPublisher interface {
	PublishDonationCredited(ctx context.Context, d *domain.Donation, p *domain.Project, reached []domain.Milestone) error
}

// DonationCreditedEvent is the payload of a donations.credited message.
type DonationCreditedEvent struct {
	DonationID    string    `json:"donation_id"`
	ProjectID     int64     `json:"project_id"`
	DonorWallet   string    `json:"donor_wallet"`
	AmountSOL     string    `json:"amount_sol"`
	PlatformFee   string    `json:"platform_fee"`
	TxSignature   string    `json:"tx_signature"`
	RaisedSOL     string    `json:"raised_sol"`
	DonationCount int64     `json:"donation_count"`
	CreditedAt    time.Time `json:"credited_at"`

	MilestonesReached []MilestoneReached `json:"milestones_reached,omitempty"`
}

// MilestoneReached is a milestone the credited donation pushed the
// project past.
type MilestoneReached struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	AmountSOL string    `json:"amount_sol"`
	ReachedAt time.Time `json:"reached_at"`
}

// WatermillPublisher implements EventPublisher on a watermill publisher.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a publisher writing to topic.
func NewWatermillPublisher(publisher message.Publisher, topic string) *WatermillPublisher {
	if topic == "" {
		topic = DefaultEventsTopic
	}
	return &WatermillPublisher{publisher: publisher, topic: topic}
}

// PublishDonationCredited publishes one event per credited donation,
// carrying the milestones it reached. The message UUID is the donation ID
// so consumers can deduplicate.
func (p *WatermillPublisher) PublishDonationCredited(ctx context.Context, d *domain.Donation, proj *domain.Project, reached []domain.Milestone) error {
	event := DonationCreditedEvent{
		DonationID:    d.ID,
		ProjectID:     d.ProjectID,
		DonorWallet:   d.DonorWallet,
		AmountSOL:     d.AmountSOL.String(),
		PlatformFee:   d.PlatformFee.String(),
		TxSignature:   d.TxSignature,
		RaisedSOL:     proj.RaisedSOL.String(),
		DonationCount: proj.DonationCount,
		CreditedAt:    d.CreatedAt,
	}
	for _, m := range reached {
		event.MilestonesReached = append(event.MilestonesReached, MilestoneReached{
			ID:        m.ID,
			Title:     m.Title,
			AmountSOL: m.AmountSOL.String(),
			ReachedAt: m.ReachedAt,
		})
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(d.ID, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

type nopPublisher struct{}

func (nopPublisher) PublishDonationCredited(context.Context, *domain.Donation, *domain.Project, []domain.Milestone) error {
	return nil
}
