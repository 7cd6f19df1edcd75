package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/review-orchestrator/internal/domain"
	"github.com/tbourn/review-orchestrator/internal/services"
	"github.com/tbourn/review-orchestrator/internal/utils"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// ListHistory godoc
// @ID          listHistory
// @Summary     List history entries
// @Description Returns persisted outcomes for a repository, most recent first.
// @Tags        History
// @Produce     json
// @Param       repo    query  string  true   "Repository full name"  example(acme/api)
// @Param       entity  query  int     false  "Restrict to one issue or PR number"
// @Param       kind    query  string  false  "Restrict to one entity kind"  Enums(issue, pr)
// @Param       limit   query  int     false  "Max entries"  minimum(1) maximum(500) default(50)
// @Success     200  {object}  handlers.HistoryListResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /history [get]
func (h *Handlers) ListHistory(c *gin.Context) {
	repo := domain.NormalizeRepository(c.Query("repo"))
	if repo == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "repo is required")
		return
	}
	opts := services.ListOptions{
		Limit:  utils.ClampInt(utils.AtoiDefault(c.Query("limit"), defaultHistoryLimit), 1, maxHistoryLimit),
		Number: utils.AtoiDefault(c.Query("entity"), 0),
	}
	if opts.Number < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "entity must be positive")
		return
	}
	if s := strings.TrimSpace(c.Query("kind")); s != "" {
		k, err := domain.ParseEntityKind(s)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		opts.Kind = k
	}

	entries, err := h.orch.HistoryList(c.Request.Context(), repo, opts)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, HistoryListResponse{Entries: entries})
}

// GetHistory godoc
// @ID          getHistory
// @Summary     Get one history entry
// @Tags        History
// @Produce     json
// @Param       id  path  string  true  "Entry ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.HistoryEntry
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /history/{id} [get]
func (h *Handlers) GetHistory(c *gin.Context) {
	id, good := historyID(c)
	if !good {
		return
	}
	e, err := h.orch.HistoryGet(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, e)
}

// DeleteHistory godoc
// @ID          deleteHistory
// @Summary     Delete a history entry
// @Description Deleting an unknown id reports false. Chains that linked through the entry end there.
// @Tags        History
// @Produce     json
// @Param       id  path  string  true  "Entry ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.DeleteResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     429  {object}  middleware.ThrottleResponse  "Throttled"
// @Router      /history/{id} [delete]
func (h *Handlers) DeleteHistory(c *gin.Context) {
	id, good := historyID(c)
	if !good {
		return
	}
	deleted, err := h.orch.HistoryDelete(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, DeleteResponse{Deleted: deleted})
}

// GetChain godoc
// @ID          getChain
// @Summary     Re-review chain for an entity
// @Description Walks back from the most recent entry for the entity and returns the chain oldest first.
// @Tags        History
// @Produce     json
// @Param       repo    query  string  true   "Repository full name"  example(acme/api)
// @Param       entity  query  int     true   "Issue or PR number"  minimum(1)
// @Param       kind    query  string  false  "Entity kind"  Enums(issue, pr) default(pr)
// @Success     200  {object}  handlers.ChainResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /history/chain [get]
func (h *Handlers) GetChain(c *gin.Context) {
	kind := c.Query("kind")
	if strings.TrimSpace(kind) == "" {
		kind = string(domain.EntityPR)
	}
	key, err := entityKey(c, kind, c.Query("entity"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	entries, err := h.orch.Chain(c.Request.Context(), key)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, ChainResponse{Entries: entries})
}

// GetStale godoc
// @ID          getStale
// @Summary     Staleness check
// @Description Reports whether the entity was updated after the entry was persisted.
// @Tags        History
// @Produce     json
// @Param       id          path   string  true  "Entry ID (UUID)"  format(uuid)
// @Param       updated_at  query  string  true  "Entity update time, RFC 3339 or unix seconds"  example(2024-03-01T12:00:00Z)
// @Success     200  {object}  handlers.StaleResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /history/{id}/stale [get]
func (h *Handlers) GetStale(c *gin.Context) {
	id, good := historyID(c)
	if !good {
		return
	}
	t, err := utils.ParseTimeParam(c.Query("updated_at"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "updated_at: "+err.Error())
		return
	}
	stale, err := h.orch.IsStale(c.Request.Context(), id, t)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, StaleResponse{ID: id, Stale: stale})
}

// historyID validates the :id path parameter, writing a 400 when it is not a UUID.
func historyID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "history id must be a UUID")
		return "", false
	}
	return id, true
}
