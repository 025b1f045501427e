// Quest HTTP handlers.
//
//   - PUT    /user/{userId}/quests               (persist quest progress)
//   - POST   /user/{userId}/quests/{kind}/claim  (claim a quest reward)
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rewards-backend/internal/domain"
	"github.com/tbourn/rewards-backend/internal/http/middleware"
	"github.com/tbourn/rewards-backend/internal/services"
)

// SaveQuestsRequest carries the caller-owned quest fields. Counters,
// timestamps and the balance mirror are not accepted.
type SaveQuestsRequest struct {
	CasesOpened      *int   `json:"cases_opened"       example:"3"`
	Level            *int   `json:"level"              example:"2"`
	DailyBonusReward *int64 `json:"daily_bonus_reward" example:"25"`
}

// ClaimRequest is the optional JSON payload of a claim. CurrentReward is
// required for daily_bonus.
type ClaimRequest struct {
	CurrentReward *int64 `json:"current_reward" example:"25"`
}

// ClaimResponse reports the outcome of a claim. Failed claims also carry the
// standard error fields.
type ClaimResponse struct {
	RequestID  string `json:"request_id,omitempty"`
	Success    bool   `json:"success"`
	Kind       string `json:"kind,omitempty"        example:"daily_bonus"`
	Reward     int64  `json:"reward,omitempty"      example:"25"`
	NewBalance *int64 `json:"new_balance,omitempty" example:"125"`
	Count      int    `json:"count,omitempty"       example:"1"`
	Code       string `json:"code,omitempty"        example:"cooldown"`
	Error      string `json:"error,omitempty"       example:"Cooldown"`
	// Remaining is the cooldown left in whole seconds.
	Remaining int64 `json:"remaining,omitempty" example:"42"`
}

// SaveQuests godoc
// @ID          saveQuests
// @Summary     Persist quest progress
// @Description Stores cases_opened, level and daily_bonus_reward. Claim counters and timestamps are owned by the claim endpoint.
// @Tags        Quests
// @Accept      json
// @Produce     json
// @Param       userId  path  int                          true  "Telegram user id"
// @Param       body    body  handlers.SaveQuestsRequest   true  "Quest progress"
// @Success     200  {object}  domain.QuestState
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /user/{userId}/quests [put]
func (h *Handlers) SaveQuests(c *gin.Context) {
	id, valid := pathUserID(c)
	if !valid {
		return
	}
	var req SaveQuestsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	qs, err := h.quests.SaveProgress(c.Request.Context(), id, services.QuestProgress{
		CasesOpened:      req.CasesOpened,
		Level:            req.Level,
		DailyBonusReward: req.DailyBonusReward,
	})
	if err != nil {
		fromServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, qs)
}

// ClaimQuest godoc
// @ID          claimQuest
// @Summary     Claim a quest reward
// @Description Grants the reward of a quest when its cooldown elapsed and its condition holds. Cooldown failures report the seconds remaining.
// @Tags        Quests
// @Accept      json
// @Produce     json
// @Param       userId  path  int     true   "Telegram user id"
// @Param       kind    path  string  true   "Quest kind"  Enums(subscribe, bot_name, ref_link, daily_bonus, referral_milestone)
// @Param       body    body  handlers.ClaimRequest  false  "Daily bonus reward"
// @Success     200  {object}  handlers.ClaimResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "User data not found"
// @Failure     409  {object}  handlers.ClaimResponse  "Cooldown or condition not met"
// @Failure     503  {object}  handlers.ErrorResponse  "Telegram unavailable"
// @Router      /user/{userId}/quests/{kind}/claim [post]
func (h *Handlers) ClaimQuest(c *gin.Context) {
	id, valid := pathUserID(c)
	if !valid {
		return
	}
	kind := domain.QuestKind(strings.ToLower(strings.TrimSpace(c.Param("kind"))))
	if !kind.Valid() {
		fail(c, http.StatusBadRequest, ErrCodeInvalidQuestKind, services.ErrInvalidQuestKind.Error())
		return
	}

	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.quests.Claim(c.Request.Context(), id, kind, req.CurrentReward)
	if err != nil {
		h.claimFailed(c, err)
		return
	}
	bal := res.NewBalance
	ok(c, http.StatusOK, ClaimResponse{
		Success:    true,
		Kind:       string(res.Kind),
		Reward:     res.Reward,
		NewBalance: &bal,
		Count:      res.Count,
	})
}

// claimFailed writes conflict outcomes in the claim envelope and defers to
// fromServiceError for everything else.
func (h *Handlers) claimFailed(c *gin.Context, err error) {
	var (
		cd *services.CooldownError
		pe *services.PreconditionError
	)
	resp := ClaimResponse{RequestID: middleware.RequestIDFrom(c)}
	switch {
	case errors.As(err, &cd):
		resp.Code, resp.Error, resp.Remaining = ErrCodeCooldown, cd.Error(), cd.Remaining
	case errors.As(err, &pe):
		resp.Code, resp.Error = ErrCodePrecondition, pe.Error()
	default:
		fromServiceError(c, err)
		return
	}
	c.AbortWithStatusJSON(http.StatusConflict, resp)
}
