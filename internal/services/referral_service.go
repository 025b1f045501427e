// Package services – ReferralService
//
// ReferralService applies a referral code to a newly created account at most
// once. The referrer is credited through the single balance write path, its
// referral counter is bumped and a ledger entry is appended, all in one
// transaction. Code to owner lookups are cached in an LRU; codes never change
// once assigned, so entries only go stale on an administrative reset.

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/rewards-backend/internal/domain"
	"github.com/tbourn/rewards-backend/internal/repo"
)

// ReferralOutcome is reported to the client after account creation.
type ReferralOutcome struct {
	Applied    bool   `json:"applied"`
	Reason     string `json:"reason,omitempty"`
	ReferrerID int64  `json:"referrer_id,omitempty"`
}

// ReferralService resolves referral codes.
type ReferralService struct {
	DB    *gorm.DB
	Bonus int64

	codes *lru.Cache
}

// NewReferralService builds a ReferralService with an LRU of cacheSize code
// lookups.
func NewReferralService(db *gorm.DB, bonus int64, cacheSize int) (*ReferralService, error) {
	c, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &ReferralService{DB: db, Bonus: bonus, codes: c}, nil
}

// Resolve credits the owner of code for referring newID. Rejections return
// ErrReferralCodeNotFound, ErrSelfReferral, ErrAlreadyReferred or
// ErrAccountNotFound and leave the store untouched.
func (s *ReferralService) Resolve(ctx context.Context, newID int64, code string) (int64, error) {
	ctx, span := otel.Tracer("services/ReferralService").Start(ctx, "Resolve",
		trace.WithAttributes(attribute.Int64("account.id", newID)),
	)
	defer span.End()

	referrerID, err := s.resolve(ctx, newID, strings.TrimSpace(code))
	referralsTotal.WithLabelValues(referralOutcomeLabel(err)).Inc()
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("referrer.id", referrerID))
	paidTotal.WithLabelValues(domain.LedgerKindReferral).Add(float64(s.Bonus))
	return referrerID, nil
}

func (s *ReferralService) resolve(ctx context.Context, newID int64, code string) (int64, error) {
	if newID <= 0 {
		return 0, ErrInvalidAccountID
	}
	referrerID, err := s.lookup(ctx, code)
	if err != nil {
		return 0, err
	}
	if referrerID == newID {
		return 0, ErrSelfReferral
	}
	if _, err := repo.GetAccount(ctx, s.DB, newID); err != nil {
		return 0, mapAccountErr(err)
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := repo.ReferralExists(ctx, tx, newID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyReferred
		}
		if _, err := repo.CreateReferral(ctx, tx, referrerID, newID); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrAlreadyReferred
			}
			return err
		}
		ok, err := repo.SetReferredBy(ctx, tx, newID, referrerID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyReferred
		}
		if _, err := repo.AddBalance(ctx, tx, referrerID, s.Bonus); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrReferralCodeNotFound
			}
			return err
		}
		if err := repo.IncrementReferralCount(ctx, tx, referrerID); err != nil {
			return err
		}
		if s.Bonus != 0 {
			desc := fmt.Sprintf("referral of %d", newID)
			if _, err := repo.AppendLedger(ctx, tx, referrerID, s.Bonus, domain.LedgerKindReferral, desc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return referrerID, nil
}

// lookup resolves a code to its owner, consulting the LRU first.
func (s *ReferralService) lookup(ctx context.Context, code string) (int64, error) {
	if !validReferralCode(code) {
		return 0, ErrReferralCodeNotFound
	}
	if s.codes != nil {
		if v, ok := s.codes.Get(code); ok {
			return v.(int64), nil
		}
	}
	id, err := repo.FindAccountIDByReferralCode(ctx, s.DB, code)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, ErrReferralCodeNotFound
	}
	if err != nil {
		return 0, err
	}
	if s.codes != nil {
		s.codes.Add(code, id)
	}
	return id, nil
}

// PurgeCache drops all cached code lookups.
func (s *ReferralService) PurgeCache() {
	if s.codes != nil {
		s.codes.Purge()
	}
}

// Outcome converts a Resolve result into the client-facing outcome. Storage
// failures are reported generically.
func (s *ReferralService) Outcome(referrerID int64, err error) ReferralOutcome {
	switch {
	case err == nil:
		return ReferralOutcome{Applied: true, ReferrerID: referrerID}
	case errors.Is(err, ErrReferralCodeNotFound),
		errors.Is(err, ErrSelfReferral),
		errors.Is(err, ErrAlreadyReferred),
		errors.Is(err, ErrAccountNotFound):
		return ReferralOutcome{Reason: err.Error()}
	default:
		return ReferralOutcome{Reason: "referral failed"}
	}
}

func referralOutcomeLabel(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, ErrReferralCodeNotFound):
		return "code_not_found"
	case errors.Is(err, ErrSelfReferral):
		return "self"
	case errors.Is(err, ErrAlreadyReferred):
		return "already_referred"
	default:
		return outcomeError
	}
}
