// Package services defines the business logic for accounts, referrals, quest
// claims, notifications and maintenance. This file centralizes service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/rewards-backend/internal/domain"
)

// Not found.
var (
	// ErrAccountNotFound indicates that no account exists for the given id.
	ErrAccountNotFound = errors.New("User not found")

	// ErrQuestStateNotFound indicates that the account has no quest state row.
	ErrQuestStateNotFound = errors.New("user data not found")

	// ErrReferralCodeNotFound indicates that no account owns the referral code.
	ErrReferralCodeNotFound = errors.New("code not found")
)

// Invalid input.
var (
	ErrInvalidAccountID = errors.New("user_id must be a positive integer")
	ErrInvalidQuestKind = errors.New("unknown quest kind")
	ErrInvalidReward    = errors.New("current_reward must be a non-negative integer")
	ErrInvalidBalance   = errors.New("balance must be a non-negative integer")
	ErrEmptyMessage     = errors.New("message text is empty")
	ErrMissingItemName  = errors.New("item_name is required")
	ErrInvalidProgress  = errors.New("quest progress values must be non-negative and level at least 1")
)

// Conflicts.
var (
	// ErrCooldown is matched by every *CooldownError.
	ErrCooldown = errors.New("Cooldown")

	// ErrPreconditionNotMet is matched by every *PreconditionError.
	ErrPreconditionNotMet = errors.New("precondition not met")

	// ErrSelfReferral is returned when an account tries to use its own code.
	ErrSelfReferral = errors.New("self referral")

	// ErrAlreadyReferred is returned when the account already has a referrer.
	ErrAlreadyReferred = errors.New("already referred")
)

var (
	// ErrReferralCodeExhausted is returned when no unique referral code could
	// be allocated after repeated attempts.
	ErrReferralCodeExhausted = errors.New("could not allocate a unique referral code")

	// ErrTelegramUnavailable wraps failures of the Telegram Bot API, including
	// a disabled client.
	ErrTelegramUnavailable = errors.New("telegram unavailable")
)

// CooldownError reports a claim attempted before the cooldown elapsed.
type CooldownError struct {
	Kind      domain.QuestKind
	Remaining int64 // whole seconds, rounded up
}

func (e *CooldownError) Error() string { return ErrCooldown.Error() }

// Is makes errors.Is(err, ErrCooldown) true.
func (e *CooldownError) Is(target error) bool { return target == ErrCooldown }

// newCooldownError builds a CooldownError for the time left, rounded up to
// whole seconds and never below one.
func newCooldownError(kind domain.QuestKind, left time.Duration) *CooldownError {
	secs := int64((left + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return &CooldownError{Kind: kind, Remaining: secs}
}

// PreconditionError reports a quest whose eligibility predicate did not hold.
type PreconditionError struct {
	Kind      domain.QuestKind
	Condition string
}

func (e *PreconditionError) Error() string { return fmt.Sprintf("%s not met", e.Condition) }

// Is makes errors.Is(err, ErrPreconditionNotMet) true.
func (e *PreconditionError) Is(target error) bool { return target == ErrPreconditionNotMet }
