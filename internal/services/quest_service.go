// Package services – QuestService
//
// QuestService grants quest rewards at most once per cooldown window per
// (account, quest kind). The stored last-claim timestamp is authoritative:
// the final write is a conditional update that only succeeds when the
// previous claim is old enough, so concurrent claims produce one winner.
// An optional cooldown hint cache lets repeated attempts fail fast without
// touching the database.

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/rewards-backend/internal/domain"
	"github.com/tbourn/rewards-backend/internal/repo"
)

// MembershipChecker answers Telegram-backed eligibility questions.
type MembershipChecker interface {
	// IsSubscribed reports whether userID is a member of the quest channel.
	IsSubscribed(ctx context.Context, userID int64) (bool, error)
	// Bio returns the public bio of userID.
	Bio(ctx context.Context, userID int64) (string, error)
}

// CooldownHints is a best-effort cache of active cooldowns.
type CooldownHints interface {
	// Remaining returns the time left on an active marker, if any.
	Remaining(ctx context.Context, accountID int64, kind domain.QuestKind) (time.Duration, bool, error)
	// Mark records a claim for ttl.
	Mark(ctx context.Context, accountID int64, kind domain.QuestKind, ttl time.Duration) error
	// Purge drops every marker.
	Purge(ctx context.Context) error
}

// QuestRewards holds the fixed reward per quest kind. The daily bonus is
// supplied by the caller and the referral milestone pays nothing.
type QuestRewards struct {
	Subscribe int64
	BotName   int64
	RefLink   int64
}

// ClaimResult describes a successful claim.
type ClaimResult struct {
	Kind       domain.QuestKind `json:"kind"`
	Reward     int64            `json:"reward"`
	NewBalance int64            `json:"new_balance"`
	Count      int              `json:"count"`
}

// QuestProgress carries the caller-owned quest state fields.
type QuestProgress struct {
	CasesOpened      *int
	Level            *int
	DailyBonusReward *int64
}

// QuestService validates and records quest claims.
type QuestService struct {
	DB          *gorm.DB
	Checker     MembershipChecker // nil disables subscribe/bot_name/ref_link
	Hints       CooldownHints     // optional
	Cooldown    time.Duration
	Rewards     QuestRewards
	BotUsername string

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

func (s *QuestService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// errLostRace aborts the claim transaction when the conditional update
// matched no row.
var errLostRace = errors.New("claim lost race")

// Claim grants the reward of kind to accountID if its cooldown elapsed and
// its eligibility predicate holds. currentReward is required for the daily
// bonus and ignored otherwise.
func (s *QuestService) Claim(ctx context.Context, accountID int64, kind domain.QuestKind, currentReward *int64) (*ClaimResult, error) {
	ctx, span := otel.Tracer("services/QuestService").Start(ctx, "Claim",
		trace.WithAttributes(
			attribute.Int64("account.id", accountID),
			attribute.String("quest.kind", string(kind)),
		),
	)
	defer span.End()

	res, err := s.claim(ctx, accountID, kind, currentReward)

	label := string(kind)
	if !kind.Valid() {
		label = "unknown"
	}
	claimsTotal.WithLabelValues(label, claimOutcomeLabel(err)).Inc()
	if err != nil {
		if claimOutcomeLabel(err) == outcomeError {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	paidTotal.WithLabelValues(label).Add(float64(res.Reward))
	span.SetAttributes(attribute.Int64("quest.reward", res.Reward))
	return res, nil
}

func (s *QuestService) claim(ctx context.Context, accountID int64, kind domain.QuestKind, currentReward *int64) (*ClaimResult, error) {
	if accountID <= 0 {
		return nil, ErrInvalidAccountID
	}
	if !kind.Valid() {
		return nil, ErrInvalidQuestKind
	}
	if kind == domain.QuestDailyBonus && (currentReward == nil || *currentReward < 0) {
		return nil, ErrInvalidReward
	}

	now := s.now()
	cd := s.Cooldown

	qs, err := repo.GetQuestState(ctx, s.DB, accountID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrQuestStateNotFound
	}
	if err != nil {
		return nil, err
	}

	if s.Hints != nil {
		left, ok, herr := s.Hints.Remaining(ctx, accountID, kind)
		switch {
		case herr != nil:
			zerolog.Ctx(ctx).Warn().Err(herr).Int64("account_id", accountID).Msg("cooldown hint lookup failed")
		case ok && left > 0:
			return nil, newCooldownError(kind, min(left, cd))
		}
	}

	if err := cooldownLeft(kind, qs.LastClaim(kind), now, cd); err != nil {
		return nil, err
	}

	reward, extra, err := s.eligibility(ctx, accountID, kind, qs, currentReward)
	if err != nil {
		return nil, err
	}

	res := &ClaimResult{Kind: kind, Reward: reward}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.ClaimQuest(ctx, tx, accountID, kind, now, cd, extra)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		bal, err := repo.AddBalance(ctx, tx, accountID, reward)
		if err != nil {
			return err
		}
		res.NewBalance = bal
		if reward != 0 {
			if _, err := repo.AppendLedger(ctx, tx, accountID, reward, string(kind), "quest reward"); err != nil {
				return err
			}
		}
		after, err := repo.GetQuestState(ctx, tx, accountID)
		if err != nil {
			return err
		}
		res.Count = after.Count(kind)
		return nil
	})
	if errors.Is(err, errLostRace) {
		// Another claim won between the check and the update.
		cur, rerr := repo.GetQuestState(ctx, s.DB, accountID)
		if rerr != nil {
			return nil, rerr
		}
		if cerr := cooldownLeft(kind, cur.LastClaim(kind), now, cd); cerr != nil {
			return nil, cerr
		}
		return nil, newCooldownError(kind, cd)
	}
	if err != nil {
		return nil, err
	}

	if s.Hints != nil {
		if herr := s.Hints.Mark(ctx, accountID, kind, cd); herr != nil {
			zerolog.Ctx(ctx).Warn().Err(herr).Int64("account_id", accountID).Msg("cooldown hint write failed")
		}
	}
	return res, nil
}

// cooldownLeft returns a *CooldownError when last is less than cd ago.
func cooldownLeft(kind domain.QuestKind, last *time.Time, now time.Time, cd time.Duration) error {
	if last == nil {
		return nil
	}
	elapsed := now.Sub(*last)
	if elapsed >= cd {
		return nil
	}
	return newCooldownError(kind, min(cd-elapsed, cd))
}

// eligibility evaluates the predicate of kind and returns the reward plus any
// extra quest_states columns to write with the claim.
func (s *QuestService) eligibility(ctx context.Context, accountID int64, kind domain.QuestKind, qs *domain.QuestState, currentReward *int64) (int64, map[string]any, error) {
	switch kind {
	case domain.QuestSubscribe:
		if s.Checker == nil {
			return 0, nil, ErrTelegramUnavailable
		}
		ok, err := s.Checker.IsSubscribed(ctx, accountID)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrTelegramUnavailable, err)
		}
		if !ok {
			return 0, nil, &PreconditionError{Kind: kind, Condition: "Subscription"}
		}
		return s.Rewards.Subscribe, nil, nil

	case domain.QuestBotName:
		bio, err := s.bio(ctx, accountID)
		if err != nil {
			return 0, nil, err
		}
		needle := strings.ToLower(strings.TrimPrefix(s.BotUsername, "@"))
		if needle == "" || !strings.Contains(strings.ToLower(bio), needle) {
			return 0, nil, &PreconditionError{Kind: kind, Condition: "Bot name"}
		}
		return s.Rewards.BotName, nil, nil

	case domain.QuestRefLink:
		acc, err := repo.GetAccount(ctx, s.DB, accountID)
		if err != nil {
			return 0, nil, mapAccountErr(err)
		}
		bio, err := s.bio(ctx, accountID)
		if err != nil {
			return 0, nil, err
		}
		if !strings.Contains(bio, acc.ReferralCode) {
			return 0, nil, &PreconditionError{Kind: kind, Condition: "Referral link"}
		}
		return s.Rewards.RefLink, nil, nil

	case domain.QuestDailyBonus:
		return *currentReward, map[string]any{"daily_bonus_reward": *currentReward}, nil

	case domain.QuestReferralMilestone:
		if qs.ReferralCount <= qs.ReferralMilestoneCount {
			return 0, nil, &PreconditionError{Kind: kind, Condition: "Referral milestone"}
		}
		return 0, nil, nil
	}
	return 0, nil, ErrInvalidQuestKind
}

func (s *QuestService) bio(ctx context.Context, accountID int64) (string, error) {
	if s.Checker == nil {
		return "", ErrTelegramUnavailable
	}
	bio, err := s.Checker.Bio(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTelegramUnavailable, err)
	}
	return bio, nil
}

// SaveProgress persists the caller-owned quest fields and returns the
// updated quest state.
func (s *QuestService) SaveProgress(ctx context.Context, accountID int64, p QuestProgress) (*domain.QuestState, error) {
	ctx, span := otel.Tracer("services/QuestService").Start(ctx, "SaveProgress",
		trace.WithAttributes(attribute.Int64("account.id", accountID)),
	)
	defer span.End()

	if accountID <= 0 {
		return nil, ErrInvalidAccountID
	}
	if (p.CasesOpened != nil && *p.CasesOpened < 0) ||
		(p.Level != nil && *p.Level < 1) ||
		(p.DailyBonusReward != nil && *p.DailyBonusReward < 0) {
		return nil, ErrInvalidProgress
	}

	var out *domain.QuestState
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := repo.SaveQuestProgress(ctx, tx, accountID, repo.QuestProgress{
			CasesOpened:      p.CasesOpened,
			Level:            p.Level,
			DailyBonusReward: p.DailyBonusReward,
		})
		if err != nil {
			return err
		}
		out, err = repo.GetQuestState(ctx, tx, accountID)
		return err
	})
	if err != nil {
		return nil, mapAccountErr(err)
	}
	return out, nil
}

func claimOutcomeLabel(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, ErrCooldown):
		return outcomeCooldown
	case errors.Is(err, ErrPreconditionNotMet):
		return outcomePrecondition
	default:
		return outcomeError
	}
}
