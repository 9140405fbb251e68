package model

import "time"

// AuthDecision is the verdict of the authorization orchestrator.
type AuthDecision string

const (
	AuthApprove AuthDecision = "APPROVE"
	AuthDecline AuthDecision = "DECLINE"
)

// Reason codes for authorization verdicts, in precedence order.
const (
	ReasonLocationBlock = "location_block"
	ReasonLocationWarn  = "location_warn"
	ReasonOverride      = "override"
	ReasonRisky         = "risky"
	ReasonSafe          = "safe"
)

// AuthorizeRequest is a charge submitted for authorization.
type AuthorizeRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Merchant    string `json:"merchant" validate:"required"`
	Category    string `json:"category,omitempty"`
}

// Verdict is the outcome of authorizing a charge.
type Verdict struct {
	Decision AuthDecision `json:"decision"`
	Reason   string       `json:"reason"`
	Message  string       `json:"message,omitempty"`
	Fence    string       `json:"fence,omitempty"`
}

// OverrideRequest explicitly pre-approves one charge.
type OverrideRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Merchant    string `json:"merchant" validate:"required"`
}

// OverrideToken is a one-time pre-authorized exception.
type OverrideToken struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Merchant    string    `json:"merchant"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Live reports whether the token is still redeemable at now.
func (t OverrideToken) Live(now time.Time) bool {
	return t.ExpiresAt.After(now)
}

// AuditEventType classifies journal entries.
type AuditEventType string

const (
	AuditAuthorize AuditEventType = "authorize"
	AuditDecline   AuditEventType = "decline"
	AuditOverride  AuditEventType = "override"
)

// AuditEvent is one journal entry for an authorization-side action.
type AuditEvent struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	EventType   AuditEventType `json:"event_type"`
	Decision    AuthDecision   `json:"decision,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	AmountCents int64          `json:"amount_cents"`
	Merchant    string         `json:"merchant"`
	Category    string         `json:"category,omitempty"`
	Timestamp   time.Time      `json:"ts"`
}
