// Package events announces issued certificates to downstream consumers.
package events

import (
	"context"
	"time"

	"certstamp/internal/model"
)

// TypeCertificateIssued is the event type of IssuedEvent.
const TypeCertificateIssued = "certificate.issued"

// IssuedEvent is published once per successfully logged certificate.
type IssuedEvent struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Digest    string    `json:"digest"`
	QRCode    string    `json:"qr_code"`
	IssuedAt  time.Time `json:"issued_at"`
	VerifyURL string    `json:"verify_url,omitempty"`
}

// NewIssuedEvent builds the event for a stored record.
func NewIssuedEvent(c *model.Certificate, verifyURL string) IssuedEvent {
	return IssuedEvent{
		Type:      TypeCertificateIssued,
		ID:        c.ID,
		Name:      c.Name,
		Digest:    c.Digest,
		QRCode:    c.QRCode,
		IssuedAt:  c.CreatedAt,
		VerifyURL: verifyURL,
	}
}

// Publisher delivers issue events.
type Publisher interface {
	PublishIssued(ctx context.Context, ev IssuedEvent) error
	Close() error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) PublishIssued(context.Context, IssuedEvent) error { return nil }
func (Noop) Close() error                                     { return nil }

var _ Publisher = Noop{}
