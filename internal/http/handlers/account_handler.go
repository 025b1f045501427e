// Account HTTP handlers.
//
//   - POST   /user                       (create or update)
//   - GET    /user/{userId}              (account, optionally with referral count)
//   - PATCH  /user/{userId}              (partial profile update)
//   - GET    /user/{userId}/profile      (account + quest state + inventory)
//   - PUT    /user/{userId}/balance      (overwrite balance)
//   - POST   /user/{userId}/inventory    (add item)
//   - GET    /user/{userId}/ledger       (paginated ledger)
//   - POST   /user/{userId}/notify       (Telegram message)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rewards-backend/internal/domain"
	"github.com/tbourn/rewards-backend/internal/http/middleware"
	"github.com/tbourn/rewards-backend/internal/services"
	"github.com/tbourn/rewards-backend/internal/utils"
)

//
// DTOs
//

// ProfileFields are the optional Telegram profile fields of an account.
type ProfileFields struct {
	Username  *string `json:"username"   example:"alice"`
	FirstName *string `json:"first_name" example:"Alice"`
	LastName  *string `json:"last_name"  example:"Smith"`
	PhotoURL  *string `json:"photo_url"  example:"https://t.me/i/userpic/320/alice.jpg"`
}

func (p ProfileFields) update() services.ProfileUpdate {
	return services.ProfileUpdate{
		Username:  p.Username,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		PhotoURL:  p.PhotoURL,
	}
}

// CreateUserRequest is the JSON payload of POST /user.
type CreateUserRequest struct {
	UserID int64 `json:"user_id" example:"1001"`
	ProfileFields
	// ReferralCode optionally credits the owner of the code.
	ReferralCode string `json:"referral_code" example:"aB3dE5fG"`
}

// CreateUserResponse is returned by POST /user.
type CreateUserResponse struct {
	User     *domain.Account           `json:"user"`
	Created  bool                      `json:"created"`
	Referral *services.ReferralOutcome `json:"referral,omitempty"`
}

// SetBalanceRequest is the JSON payload of PUT /user/{userId}/balance.
type SetBalanceRequest struct {
	Balance *int64 `json:"balance" example:"150"`
	// Kind labels the ledger entry; defaults to "game".
	Kind string `json:"kind" example:"game"`
}

// AddItemRequest is the JSON payload of POST /user/{userId}/inventory.
type AddItemRequest struct {
	ItemName  string `json:"item_name"  example:"Knife | Fade"`
	ItemPrice string `json:"item_price" example:"900"`
	ItemImage string `json:"item_image" example:"/static/items/knife-fade.png"`
}

// NotifyRequest is the JSON payload of POST /user/{userId}/notify.
type NotifyRequest struct {
	Text string `json:"text" example:"Your daily bonus is ready"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// LedgerResponse wraps a page of ledger entries.
type LedgerResponse struct {
	Entries    []domain.LedgerEntry `json:"entries"`
	Pagination Pagination           `json:"pagination"`
}

// ledgerPages bounds the ledger listing.
var ledgerPages = utils.PageParams{DefaultSize: 20, MaxSize: 100}

//
// Handlers
//

// CreateUser godoc
// @ID          createUser
// @Summary     Create or update an account
// @Description Creates the account when absent (201) or applies the profile fields to the existing one (200). An optional referral code credits its owner; the outcome is reported and never fails the request.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false  "Replay protection key"
// @Param       body  body  handlers.CreateUserRequest  true  "Account payload"
// @Success     201  {object}  handlers.CreateUserResponse
// @Success     200  {object}  handlers.CreateUserResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /user [post]
func (h *Handlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.UserID <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeInvalidAccountID, services.ErrInvalidAccountID.Error())
		return
	}

	ctx := c.Request.Context()
	acc, created, err := h.accounts.Ensure(ctx, req.UserID, req.ProfileFields.update())
	if err != nil {
		fromServiceError(c, err)
		return
	}

	resp := CreateUserResponse{User: acc, Created: created}
	if code := strings.TrimSpace(req.ReferralCode); code != "" && h.referrals != nil {
		referrerID, rerr := h.referrals.Resolve(ctx, acc.ID, code)
		out := h.referrals.Outcome(referrerID, rerr)
		if rerr != nil && out.Reason == "referral failed" {
			middleware.LoggerFrom(c).Warn().Err(rerr).Int64("user_id", acc.ID).Msg("referral failed")
		}
		if out.Applied {
			// The referral wrote referred_by; return the fresh row.
			if fresh, gerr := h.accounts.Get(ctx, acc.ID); gerr == nil {
				resp.User = fresh
			}
		}
		resp.Referral = &out
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, resp)
}

// GetUser godoc
// @ID          getUser
// @Summary     Get an account
// @Description Returns the account with the number of accounts it referred. Pass referrals=false to skip the count.
// @Tags        Users
// @Produce     json
// @Param       userId     path   int   true   "Telegram user id"
// @Param       referrals  query  bool  false  "Include referral count"  default(true)
// @Success     200  {object}  domain.AccountWithReferrals
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /user/{userId} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	id, valid := pathUserID(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()

	if strings.EqualFold(c.Query("referrals"), "false") {
		acc, err := h.accounts.Get(ctx, id)
		if err != nil {
			fromServiceError(c, err)
			return
		}
		ok(c, http.StatusOK, acc)
		return
	}

	acc, err := h.accounts.GetWithReferralCount(ctx, id)
	if err != nil {
		fromServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, acc)
}

// UpdateUser godoc
// @ID          updateUser
// @Summary     Update profile fields
// @Description Applies a partial profile update; absent fields keep their stored values.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       userId  path  int                       true  "Telegram user id"
// @Param       body    body  handlers.ProfileFields    true  "Fields to change"
// @Success     200  {object}  domain.Account
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /user/{userId} [patch]
func (h *Handlers) UpdateUser(c *gin.Context) {
	id, valid := pathUserID(c)
	if !valid {
		return
	}
	var req ProfileFields
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	acc, err := h.accounts.UpdateProfile(c.Request.Context(), id, req.update())
	if err != nil {
		fromServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, acc)
}

// GetProfile godoc
// @ID          getProfile
// @Summary     Get the full profile
// @Description Returns the account with its referral count, quest state and inventory.
// @Tags        Users
// @Produce     json
// @Param       userId  path  int  true  "Telegram user id"
// @Success     200  {object}  domain.Profile
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /user/{userId}/profile [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	id, valid := pathUserID(c)
	if !valid {
		return
	}
	p, err := h.accounts.Profile(c.Request.Context(), id)
	if err != nil {
		fromServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// SetBalance godoc
// @ID          setBalance
// @Summary     Overwrite the balance
// @Description Sets the balance and records the signed delta in the ledger.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       userId  path  int                          true  "Telegram user id"
// @Param       body    body  handlers.SetBalanceRequest   true  "New balance"
// @Success     200  {object}  domain.Account
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /user/{userId}/balance [put]
func (h *Handlers) SetBalance(c *gin.Context) {
	id, valid := pathUserID(c)
	if !valid {
		return
	}
	var req SetBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Balance == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "balance is required")
		return
	}
	acc, err := h.accounts.SetBalance(c.Request.Context(), id, *req.Balance, req.Kind)
	if err != nil {
		fromServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, acc)
}

// AddItem godoc
// @ID          addItem
// @Summary     Add an inventory item
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       userId  path  int                       true  "Telegram user id"
// @Param       body    body  handlers.AddItemRequest   true  "Item"
// @Success     201  {object}  domain.InventoryItem
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /user/{userId}/inventory [post]
func (h *Handlers) AddItem(c *gin.Context) {
	id, valid := pathUserID(c)
	if !valid {
		return
	}
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	item, err := h.accounts.AddItem(c.Request.Context(), id, services.NewItem{
		Name:  req.ItemName,
		Price: req.ItemPrice,
		Image: req.ItemImage,
	})
	if err != nil {
		fromServiceError(c, err)
		return
	}
	ok(c, http.StatusCreated, item)
}

// ListLedger godoc
// @ID          listLedger
// @Summary     List ledger entries (paginated)
// @Description Returns the balance-affecting events of the account, newest first.
// @Tags        Users
// @Produce     json
// @Param       userId     path   int  true   "Telegram user id"
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.LedgerResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /user/{userId}/ledger [get]
func (h *Handlers) ListLedger(c *gin.Context) {
	id, valid := pathUserID(c)
	if !valid {
		return
	}
	page, pageSize := ledgerPages.ParsePage(c.Query("page"), c.Query("page_size"))

	items, total, err := h.accounts.Ledger(c.Request.Context(), id, page, pageSize)
	if err != nil {
		fromServiceError(c, err)
		return
	}
	if items == nil {
		items = []domain.LedgerEntry{}
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, LedgerResponse{
		Entries: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// Notify godoc
// @ID          notifyUser
// @Summary     Send a Telegram message
// @Description Sends a text message to the account's private chat with the bot.
// @Tags        Users
// @Accept      json
// @Param       userId  path  int                      true  "Telegram user id"
// @Param       body    body  handlers.NotifyRequest   true  "Message"
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Telegram unavailable"
// @Router      /user/{userId}/notify [post]
func (h *Handlers) Notify(c *gin.Context) {
	id, valid := pathUserID(c)
	if !valid {
		return
	}
	var req NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if h.notifier == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeTelegram, services.ErrTelegramUnavailable.Error())
		return
	}
	if err := h.notifier.Notify(c.Request.Context(), id, req.Text); err != nil {
		fromServiceError(c, err)
		return
	}
	noContent(c)
}
