// Superstar directory HTTP handlers.
//
// This file exposes the read-only superstar directory used by clients to pick
// a counterpart before starting a conversation:
//   - GET /superstars  (list, paginated, ordered by handle)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fanwire/go-fanwire-backend/internal/domain"
)

// ListSuperstarsResponse wraps a page of superstar summaries and pagination
// information.
type ListSuperstarsResponse struct {
	Superstars []domain.SuperstarSummary `json:"superstars"`
	Pagination Pagination                `json:"pagination"`
}

// ListSuperstars godoc
// @ID          listSuperstars
// @Summary     List superstars (paginated)
// @Description Returns a page of superstar profile summaries ordered by handle.
// @Tags        Superstars
// @Produce     json
//
// @Param       page      query  int  false "Page number"     minimum(1) default(1)
// @Param       per_page  query  int  false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListSuperstarsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /superstars [get]
func (h *Handlers) ListSuperstars(c *gin.Context) {
	if _, okID := requireCaller(c); !okID {
		return
	}
	page, perPage := clampPagination(c)

	items, total, err := h.starSvc.ListPage(c.Request.Context(), page, perPage)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListSuperstarsResponse{
		Superstars: items,
		Pagination: newPagination(page, perPage, len(items), total),
	})
}
