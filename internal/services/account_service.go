// Package services – AccountService
//
// This file implements AccountService, which owns account identity, profile
// data, the canonical balance, inventory and the read-only ledger view.
// Account creation allocates a unique referral code and an empty quest state
// in the same transaction.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// carry the account id.

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/rewards-backend/internal/domain"
	"github.com/tbourn/rewards-backend/internal/repo"
)

// ProfileUpdate carries optional profile fields. Nil fields keep their
// stored value.
type ProfileUpdate struct {
	Username  *string
	FirstName *string
	LastName  *string
	PhotoURL  *string
}

// NewItem describes an inventory item to add.
type NewItem struct {
	Name  string
	Price string
	Image string
}

// AccountService coordinates account persistence.
type AccountService struct {
	DB *gorm.DB

	// NewCode generates referral codes; defaults to GenerateReferralCode.
	NewCode func() (string, error)
}

func (s *AccountService) tracer() trace.Tracer { return otel.Tracer("services/AccountService") }

// Ensure returns the account with the given id, creating it with a fresh
// referral code, zero balance and an empty quest state when absent. Provided
// profile fields are applied on both paths. The boolean reports whether this
// call created the account.
func (s *AccountService) Ensure(ctx context.Context, id int64, p ProfileUpdate) (*domain.Account, bool, error) {
	ctx, span := s.tracer().Start(ctx, "Ensure",
		trace.WithAttributes(attribute.Int64("account.id", id)),
	)
	defer span.End()

	if id <= 0 {
		return nil, false, ErrInvalidAccountID
	}
	fields := normalizeProfile(p)
	newCode := s.NewCode
	if newCode == nil {
		newCode = GenerateReferralCode
	}

	var (
		out     *domain.Account
		created bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := repo.GetAccount(ctx, tx, id)
		if err == nil {
			out, err = s.syncExisting(ctx, tx, existing, fields)
			return err
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		for attempt := 0; attempt < maxCodeAttempts; attempt++ {
			code, err := newCode()
			if err != nil {
				return fmt.Errorf("generate referral code: %w", err)
			}
			a := &domain.Account{
				ID:           id,
				Username:     fields.Username,
				FirstName:    fields.FirstName,
				LastName:     fields.LastName,
				PhotoURL:     fields.PhotoURL,
				ReferralCode: code,
			}
			ok, err := repo.InsertAccount(ctx, tx, a)
			if err != nil {
				return err
			}
			if ok {
				if err := repo.EnsureQuestState(ctx, tx, id, 0); err != nil {
					return err
				}
				out, created = a, true
				return nil
			}

			// Nothing inserted: a concurrent creator won, or the code collided.
			winner, err := repo.GetAccount(ctx, tx, id)
			if err == nil {
				out, err = s.syncExisting(ctx, tx, winner, fields)
				return err
			}
			if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
		}
		return ErrReferralCodeExhausted
	})
	if err != nil {
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("account.created", created))
	return out, created, nil
}

// syncExisting applies profile fields to an existing account and makes sure
// its quest state exists.
func (s *AccountService) syncExisting(ctx context.Context, tx *gorm.DB, a *domain.Account, fields repo.ProfileFields) (*domain.Account, error) {
	if err := repo.EnsureQuestState(ctx, tx, a.ID, a.Balance); err != nil {
		return nil, err
	}
	if fields.Empty() {
		return a, nil
	}
	if err := repo.UpdateProfile(ctx, tx, a.ID, fields); err != nil {
		return nil, err
	}
	return repo.GetAccount(ctx, tx, a.ID)
}

// UpdateProfile applies a partial profile update.
func (s *AccountService) UpdateProfile(ctx context.Context, id int64, p ProfileUpdate) (*domain.Account, error) {
	ctx, span := s.tracer().Start(ctx, "UpdateProfile",
		trace.WithAttributes(attribute.Int64("account.id", id)),
	)
	defer span.End()

	if id <= 0 {
		return nil, ErrInvalidAccountID
	}
	if err := repo.UpdateProfile(ctx, s.DB, id, normalizeProfile(p)); err != nil {
		return nil, mapAccountErr(err)
	}
	a, err := repo.GetAccount(ctx, s.DB, id)
	return a, mapAccountErr(err)
}

// SetBalance overwrites the balance and records the signed delta in the
// ledger under kind (default "game").
func (s *AccountService) SetBalance(ctx context.Context, id, balance int64, kind string) (*domain.Account, error) {
	ctx, span := s.tracer().Start(ctx, "SetBalance",
		trace.WithAttributes(
			attribute.Int64("account.id", id),
			attribute.Int64("balance", balance),
		),
	)
	defer span.End()

	if id <= 0 {
		return nil, ErrInvalidAccountID
	}
	if balance < 0 {
		return nil, ErrInvalidBalance
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = domain.LedgerKindGame
	}

	var out *domain.Account
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := repo.SetBalance(ctx, tx, id, balance)
		if err != nil {
			return err
		}
		if delta := balance - prev; delta != 0 {
			if _, err := repo.AppendLedger(ctx, tx, id, delta, kind, "balance set"); err != nil {
				return err
			}
		}
		out, err = repo.GetAccount(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, mapAccountErr(err)
	}
	return out, nil
}

// Get returns the account without the referral count.
func (s *AccountService) Get(ctx context.Context, id int64) (*domain.Account, error) {
	ctx, span := s.tracer().Start(ctx, "Get",
		trace.WithAttributes(attribute.Int64("account.id", id)),
	)
	defer span.End()

	if id <= 0 {
		return nil, ErrInvalidAccountID
	}
	a, err := repo.GetAccount(ctx, s.DB, id)
	return a, mapAccountErr(err)
}

// GetWithReferralCount returns the account joined with the number of
// accounts it referred.
func (s *AccountService) GetWithReferralCount(ctx context.Context, id int64) (*domain.AccountWithReferrals, error) {
	ctx, span := s.tracer().Start(ctx, "GetWithReferralCount",
		trace.WithAttributes(attribute.Int64("account.id", id)),
	)
	defer span.End()

	if id <= 0 {
		return nil, ErrInvalidAccountID
	}
	a, err := repo.GetAccountWithReferralCount(ctx, s.DB, id)
	return a, mapAccountErr(err)
}

// Profile returns the account, its quest state and its inventory. The three
// reads run concurrently.
func (s *AccountService) Profile(ctx context.Context, id int64) (*domain.Profile, error) {
	ctx, span := s.tracer().Start(ctx, "Profile",
		trace.WithAttributes(attribute.Int64("account.id", id)),
	)
	defer span.End()

	if id <= 0 {
		return nil, ErrInvalidAccountID
	}

	var (
		acc   *domain.AccountWithReferrals
		qs    *domain.QuestState
		items []domain.InventoryItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		acc, err = repo.GetAccountWithReferralCount(gctx, s.DB, id)
		return mapAccountErr(err)
	})
	g.Go(func() error {
		var err error
		qs, err = repo.GetQuestState(gctx, s.DB, id)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrQuestStateNotFound
		}
		return err
	})
	g.Go(func() error {
		var err error
		items, err = repo.ListInventory(gctx, s.DB, id)
		return err
	})
	if err := g.Wait(); err != nil {
		// A missing account wins over a missing quest state.
		if errors.Is(err, ErrQuestStateNotFound) {
			if _, aerr := repo.GetAccount(ctx, s.DB, id); errors.Is(aerr, repo.ErrNotFound) {
				return nil, ErrAccountNotFound
			}
		}
		return nil, err
	}
	return &domain.Profile{User: *acc, QuestState: *qs, Inventory: items}, nil
}

// AddItem appends an inventory item to the account.
func (s *AccountService) AddItem(ctx context.Context, id int64, in NewItem) (*domain.InventoryItem, error) {
	ctx, span := s.tracer().Start(ctx, "AddItem",
		trace.WithAttributes(attribute.Int64("account.id", id)),
	)
	defer span.End()

	if id <= 0 {
		return nil, ErrInvalidAccountID
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrMissingItemName
	}
	if _, err := repo.GetAccount(ctx, s.DB, id); err != nil {
		return nil, mapAccountErr(err)
	}
	item := &domain.InventoryItem{
		AccountID: id,
		ItemName:  name,
		ItemPrice: strings.TrimSpace(in.Price),
		ItemImage: strings.TrimSpace(in.Image),
	}
	if err := repo.AddInventoryItem(ctx, s.DB, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Ledger returns a page of the account's ledger, newest first, and the total
// number of entries.
func (s *AccountService) Ledger(ctx context.Context, id int64, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	ctx, span := s.tracer().Start(ctx, "Ledger",
		trace.WithAttributes(
			attribute.Int64("account.id", id),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if id <= 0 {
		return nil, 0, ErrInvalidAccountID
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if _, err := repo.GetAccount(ctx, s.DB, id); err != nil {
		return nil, 0, mapAccountErr(err)
	}

	total, err := repo.CountLedger(ctx, s.DB, id)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.LedgerEntry{}, 0, nil
	}
	items, err := repo.ListLedgerPage(ctx, s.DB, id, (page-1)*pageSize, pageSize)
	return items, total, err
}

func mapAccountErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrAccountNotFound
	}
	return err
}

// normalizeProfile trims names and applies Unicode NFC so that visually
// identical names compare equal. Photo URLs are only trimmed.
func normalizeProfile(p ProfileUpdate) repo.ProfileFields {
	return repo.ProfileFields{
		Username:  normalizeName(p.Username),
		FirstName: normalizeName(p.FirstName),
		LastName:  normalizeName(p.LastName),
		PhotoURL:  trimPtr(p.PhotoURL),
	}
}

func normalizeName(s *string) *string {
	if s == nil {
		return nil
	}
	v := norm.NFC.String(strings.TrimSpace(*s))
	return &v
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
