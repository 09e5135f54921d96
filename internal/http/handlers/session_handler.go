// Session HTTP handlers.
//
//   - GET    /sessions  (history, oldest first; optional paging; ETag support)
//   - DELETE /sessions  (remove every message, its audio rows and files)
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-voice-assistant/internal/domain"
	"github.com/tbourn/go-voice-assistant/internal/utils"
)

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// SessionResponse is the stored conversation. Pagination is present only
// when page or page_size was requested.
type SessionResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination *Pagination      `json:"pagination,omitempty"`
}

// ClearResponse reports a session reset.
type ClearResponse struct {
	Status       string `json:"status" example:"success"`
	FilesRemoved int    `json:"files_removed" example:"12"`
}

// clampPagination parses and bounds page and page_size.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(c.Query("page"), c.Query("page_size"))
}

// ListSession godoc
// @ID          listSession
// @Summary     Get the conversation history
// @Description Returns every message oldest first with its segments and merged audio.
// @Description Supports conditional requests via ETag / If-None-Match.
// @Tags        Sessions
// @Produce     json
//
// @Param       page       query  int  false "Page number"     minimum(1)
// @Param       page_size  query  int  false "Items per page"  minimum(1) maximum(100)
//
// @Success     200  {object}  handlers.SessionResponse
// @Success     304  "Not modified"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /sessions [get]
func (h *Handlers) ListSession(c *gin.Context) {
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if count, maxTS, err := h.sessions.Stats(ctx); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixMilli()
		}
		etag := fmt.Sprintf(`W/"session:%d:%d"`, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	_, paged := c.GetQuery("page")
	if _, sized := c.GetQuery("page_size"); sized {
		paged = true
	}
	if !paged {
		items, err := h.sessions.List(ctx)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
			return
		}
		if items == nil {
			items = []domain.Message{}
		}
		ok(c, http.StatusOK, SessionResponse{Messages: items})
		return
	}

	page, pageSize := clampPagination(c)
	items, total, err := h.sessions.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.Message{}
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, SessionResponse{
		Messages: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// ClearSession godoc
// @ID          clearSession
// @Summary     Clear the conversation
// @Description Deletes every message with its audio rows and files and resets the model history.
// @Tags        Sessions
// @Produce     json
//
// @Success     200  {object}  handlers.ClearResponse
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /sessions [delete]
func (h *Handlers) ClearSession(c *gin.Context) {
	res, err := h.sessions.Clear(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeClearFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ClearResponse{Status: "success", FilesRemoved: res.FilesRemoved})
}
