// Catalog HTTP handlers.
//
//   - GET /cases          (case catalog)
//   - GET /cases/{id}     (single case)
//   - GET /raffles        (raffle catalog)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListCases godoc
// @ID          listCases
// @Summary     List cases
// @Tags        Catalog
// @Produce     json
// @Success     200  {array}  catalog.Case
// @Router      /cases [get]
func (h *Handlers) ListCases(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=300")
	ok(c, http.StatusOK, h.catalog.Cases)
}

// GetCase godoc
// @ID          getCase
// @Summary     Get a case
// @Tags        Catalog
// @Produce     json
// @Param       id  path  string  true  "Case id"  example(starter)
// @Success     200  {object}  catalog.Case
// @Failure     404  {object}  handlers.ErrorResponse  "Case not found"
// @Router      /cases/{id} [get]
func (h *Handlers) GetCase(c *gin.Context) {
	cs, err := h.catalog.Case(c.Param("id"))
	if err != nil {
		fromServiceError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	ok(c, http.StatusOK, cs)
}

// ListRaffles godoc
// @ID          listRaffles
// @Summary     List raffles
// @Tags        Catalog
// @Produce     json
// @Success     200  {array}  catalog.Raffle
// @Router      /raffles [get]
func (h *Handlers) ListRaffles(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=300")
	ok(c, http.StatusOK, h.catalog.Raffles)
}
