// Package handlers exposes the REST endpoints of the rewards API.
//
// Handlers are transport-thin: they parse path and body input, call the
// application services through the interfaces below, and translate results
// and service errors into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rewards-backend/internal/catalog"
	"github.com/tbourn/rewards-backend/internal/domain"
	"github.com/tbourn/rewards-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// AccountService manages accounts, balances, inventory and the ledger view.
type AccountService interface {
	Ensure(ctx context.Context, id int64, p services.ProfileUpdate) (*domain.Account, bool, error)
	UpdateProfile(ctx context.Context, id int64, p services.ProfileUpdate) (*domain.Account, error)
	SetBalance(ctx context.Context, id, balance int64, kind string) (*domain.Account, error)
	Get(ctx context.Context, id int64) (*domain.Account, error)
	GetWithReferralCount(ctx context.Context, id int64) (*domain.AccountWithReferrals, error)
	Profile(ctx context.Context, id int64) (*domain.Profile, error)
	AddItem(ctx context.Context, id int64, in services.NewItem) (*domain.InventoryItem, error)
	Ledger(ctx context.Context, id int64, page, pageSize int) ([]domain.LedgerEntry, int64, error)
}

// ReferralService applies referral codes to new accounts.
type ReferralService interface {
	Resolve(ctx context.Context, newID int64, code string) (int64, error)
	Outcome(referrerID int64, err error) services.ReferralOutcome
}

// QuestService grants quest rewards and stores quest progress.
type QuestService interface {
	Claim(ctx context.Context, accountID int64, kind domain.QuestKind, currentReward *int64) (*services.ClaimResult, error)
	SaveProgress(ctx context.Context, accountID int64, p services.QuestProgress) (*domain.QuestState, error)
}

// NotificationService sends Telegram messages to accounts.
type NotificationService interface {
	Notify(ctx context.Context, accountID int64, text string) error
}

// AdminService performs administrative maintenance.
type AdminService interface {
	Reset(ctx context.Context) error
}

//
// Handler wiring
//

// Deps bundles the services consumed by Handlers. Notifier, Admin and
// Catalog may be nil; the corresponding endpoints then report 503 or serve an
// empty catalog.
type Deps struct {
	Accounts  AccountService
	Referrals ReferralService
	Quests    QuestService
	Notifier  NotificationService
	Admin     AdminService
	Catalog   *catalog.Catalog

	// AdminToken guards the admin endpoints. Empty disables them.
	AdminToken string
}

// Handlers groups the HTTP endpoints of the API.
type Handlers struct {
	accounts   AccountService
	referrals  ReferralService
	quests     QuestService
	notifier   NotificationService
	admin      AdminService
	catalog    *catalog.Catalog
	adminToken string
}

// New constructs Handlers bound to the given services.
func New(d Deps) *Handlers {
	cat := d.Catalog
	if cat == nil {
		cat = &catalog.Catalog{Cases: []catalog.Case{}, Raffles: []catalog.Raffle{}}
	}
	return &Handlers{
		accounts:   d.Accounts,
		referrals:  d.Referrals,
		quests:     d.Quests,
		notifier:   d.Notifier,
		admin:      d.Admin,
		catalog:    cat,
		adminToken: d.AdminToken,
	}
}

//
// Helpers
//

// pathUserID parses the :userId path parameter. On failure it writes a 400
// and returns false.
func pathUserID(c *gin.Context) (int64, bool) {
	raw := strings.TrimSpace(c.Param("userId"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeInvalidAccountID, services.ErrInvalidAccountID.Error())
		return 0, false
	}
	return id, true
}

// fromServiceError maps a service error to an HTTP response.
func fromServiceError(c *gin.Context, err error) {
	var (
		cd *services.CooldownError
		pe *services.PreconditionError
	)
	switch {
	case errors.Is(err, services.ErrAccountNotFound),
		errors.Is(err, services.ErrQuestStateNotFound),
		errors.Is(err, services.ErrReferralCodeNotFound),
		errors.Is(err, catalog.ErrCaseNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())

	case errors.Is(err, services.ErrInvalidAccountID):
		fail(c, http.StatusBadRequest, ErrCodeInvalidAccountID, err.Error())
	case errors.Is(err, services.ErrInvalidQuestKind):
		fail(c, http.StatusBadRequest, ErrCodeInvalidQuestKind, err.Error())
	case errors.Is(err, services.ErrInvalidReward),
		errors.Is(err, services.ErrInvalidBalance),
		errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrMissingItemName),
		errors.Is(err, services.ErrInvalidProgress):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())

	case errors.As(err, &cd):
		fail(c, http.StatusConflict, ErrCodeCooldown, cd.Error())
	case errors.As(err, &pe):
		fail(c, http.StatusConflict, ErrCodePrecondition, pe.Error())
	case errors.Is(err, services.ErrSelfReferral),
		errors.Is(err, services.ErrAlreadyReferred):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())

	case errors.Is(err, services.ErrTelegramUnavailable):
		_ = c.Error(err)
		fail(c, http.StatusServiceUnavailable, ErrCodeTelegram, services.ErrTelegramUnavailable.Error())

	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "Server error")
	}
}
