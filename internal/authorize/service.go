// Package authorize decides whether a card charge is approved. Checks run in
// a fixed order and the first one that applies decides:
//
//  1. a geofence containing the user's last ping (block declines, warn approves)
//  2. a matching override token (approves and consumes the token)
//  3. the half-limit budget rule (declines and issues a retry token)
//  4. otherwise approve
package authorize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/guardian-card/guardian-core/internal/audit"
	"github.com/guardian-card/guardian-core/internal/budget"
	"github.com/guardian-card/guardian-core/internal/geofence"
	"github.com/guardian-card/guardian-core/internal/metrics"
	"github.com/guardian-card/guardian-core/internal/model"
	"github.com/guardian-card/guardian-core/internal/override"
)

const messageRisky = "This looks risky based on your rule."

// FenceChecker finds the geofence governing a charge.
type FenceChecker interface {
	Evaluate(ctx context.Context, userID, cat string) (*geofence.Match, error)
}

// RuleStore persists budget rules.
type RuleStore interface {
	PutRule(ctx context.Context, r model.BudgetRule) error
}

// Service is the authorization orchestrator.
type Service struct {
	fences  FenceChecker
	ledger  *override.Ledger
	tracker *budget.Tracker
	journal *audit.Journal
	rules   RuleStore
	ttl     time.Duration
}

// NewService creates a Service. A non-positive ttl uses the ledger default.
func NewService(fences FenceChecker, ledger *override.Ledger, tracker *budget.Tracker, journal *audit.Journal, rules RuleStore, ttl time.Duration) *Service {
	return &Service{
		fences:  fences,
		ledger:  ledger,
		tracker: tracker,
		journal: journal,
		rules:   rules,
		ttl:     ttl,
	}
}

// Authorize returns the verdict for req and journals it.
func (s *Service) Authorize(ctx context.Context, req model.AuthorizeRequest) (model.Verdict, error) {
	if err := model.Validate(req); err != nil {
		return model.Verdict{}, err
	}

	v, err := s.decide(ctx, req)
	if err != nil {
		return model.Verdict{}, err
	}

	evType := model.AuditAuthorize
	if v.Decision == model.AuthDecline {
		evType = model.AuditDecline
	}
	s.journalEvent(ctx, model.AuditEvent{
		UserID:      req.UserID,
		EventType:   evType,
		Decision:    v.Decision,
		Reason:      v.Reason,
		AmountCents: req.AmountCents,
		Merchant:    req.Merchant,
		Category:    req.Category,
	})

	metrics.AuthorizeVerdicts.WithLabelValues(string(v.Decision), v.Reason).Inc()
	zap.L().Debug("authorize verdict",
		zap.String("user_id", req.UserID),
		zap.String("decision", string(v.Decision)),
		zap.String("reason", v.Reason),
	)
	return v, nil
}

func (s *Service) decide(ctx context.Context, req model.AuthorizeRequest) (model.Verdict, error) {
	m, err := s.fences.Evaluate(ctx, req.UserID, req.Category)
	if err != nil {
		return model.Verdict{}, eris.Wrap(err, "authorize: geofence")
	}
	if m != nil {
		switch m.Fence.Policy {
		case model.PolicyBlock:
			if err := s.issue(ctx, req); err != nil {
				return model.Verdict{}, err
			}
			return model.Verdict{
				Decision: model.AuthDecline,
				Reason:   model.ReasonLocationBlock,
				Message:  fmt.Sprintf("You are inside %s, where this kind of spending is blocked.", m.Fence.Name),
				Fence:    m.Fence.Name,
			}, nil
		case model.PolicyWarn:
			return model.Verdict{
				Decision: model.AuthApprove,
				Reason:   model.ReasonLocationWarn,
				Message:  fmt.Sprintf("Heads up: you are inside %s.", m.Fence.Name),
				Fence:    m.Fence.Name,
			}, nil
		}
	}

	redeemed, err := s.ledger.Redeem(ctx, req.UserID, req.Merchant, req.AmountCents)
	if err != nil {
		return model.Verdict{}, eris.Wrap(err, "authorize: redeem")
	}
	if redeemed {
		return model.Verdict{Decision: model.AuthApprove, Reason: model.ReasonOverride}, nil
	}

	risky, err := s.tracker.IsRisky(ctx, req.UserID, req.AmountCents, req.Category)
	if err != nil {
		return model.Verdict{}, eris.Wrap(err, "authorize: budget rule")
	}
	if risky {
		if err := s.issue(ctx, req); err != nil {
			return model.Verdict{}, err
		}
		return model.Verdict{Decision: model.AuthDecline, Reason: model.ReasonRisky, Message: messageRisky}, nil
	}
	return model.Verdict{Decision: model.AuthApprove, Reason: model.ReasonSafe}, nil
}

// issue creates the token that lets an identical retry through.
func (s *Service) issue(ctx context.Context, req model.AuthorizeRequest) error {
	if _, err := s.ledger.Create(ctx, req.UserID, req.Merchant, req.AmountCents, s.ttl); err != nil {
		return eris.Wrap(err, "authorize: issue override")
	}
	return nil
}

// RequestOverride pre-approves exactly one charge of amount at merchant.
func (s *Service) RequestOverride(ctx context.Context, req model.OverrideRequest) (model.OverrideToken, error) {
	req.Merchant = strings.TrimSpace(req.Merchant)
	if err := model.Validate(req); err != nil {
		return model.OverrideToken{}, err
	}
	tok, err := s.ledger.Create(ctx, req.UserID, req.Merchant, req.AmountCents, s.ttl)
	if err != nil {
		return model.OverrideToken{}, eris.Wrap(err, "authorize: request override")
	}
	s.journalEvent(ctx, model.AuditEvent{
		UserID:      req.UserID,
		EventType:   model.AuditOverride,
		AmountCents: req.AmountCents,
		Merchant:    req.Merchant,
	})
	return tok, nil
}

// PutRule sets a monthly limit. Category labels are stored lowercased.
func (s *Service) PutRule(ctx context.Context, r model.BudgetRule) (model.BudgetRule, error) {
	r.Category = strings.ToLower(strings.TrimSpace(r.Category))
	if err := model.Validate(r); err != nil {
		return model.BudgetRule{}, err
	}
	if err := s.rules.PutRule(ctx, r); err != nil {
		return model.BudgetRule{}, eris.Wrap(err, "authorize: put rule")
	}
	return r, nil
}

// journalEvent records ev. Failures are logged, not returned.
func (s *Service) journalEvent(ctx context.Context, ev model.AuditEvent) {
	if s.journal == nil {
		return
	}
	if _, err := s.journal.Record(ctx, ev); err != nil {
		zap.L().Error("authorize: journal event",
			zap.String("user_id", ev.UserID),
			zap.String("event_type", string(ev.EventType)),
			zap.Error(err),
		)
	}
}
