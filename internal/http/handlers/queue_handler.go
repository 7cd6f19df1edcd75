package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetQueue godoc
// @ID          getQueue
// @Summary     Live job queue
// @Description Returns the current snapshot of queued and running jobs. The version increases with every change.
// @Tags        Jobs
// @Produce     json
// @Success     200  {object}  domain.QueueSnapshot
// @Failure     429  {object}  middleware.ThrottleResponse  "Throttled"
// @Router      /queue [get]
func (h *Handlers) GetQueue(c *gin.Context) {
	ok(c, h.orch.Queue())
}

// GetJob godoc
// @ID          getJob
// @Summary     One live job
// @Tags        Jobs
// @Produce     json
// @Param       kind    path   string  true  "Entity kind"  Enums(issue, pr)
// @Param       number  path   int     true  "Issue or PR number"  minimum(1)
// @Param       repo    query  string  true  "Repository full name"  example(acme/api)
// @Success     200  {object}  domain.JobSummary
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "No live job"
// @Router      /jobs/{kind}/{number} [get]
func (h *Handlers) GetJob(c *gin.Context) {
	key, err := entityKey(c, c.Param("kind"), c.Param("number"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	job, found := h.orch.Job(key)
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no live job for "+key.String())
		return
	}
	ok(c, job)
}

// CancelJob godoc
// @ID          cancelJob
// @Summary     Cancel a live job
// @Description Requests cancellation. Cancelling an idle entity is a no-op that reports false.
// @Tags        Jobs
// @Produce     json
// @Param       kind    path   string  true  "Entity kind"  Enums(issue, pr)
// @Param       number  path   int     true  "Issue or PR number"  minimum(1)
// @Param       repo    query  string  true  "Repository full name"  example(acme/api)
// @Success     200  {object}  handlers.CancelResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     429  {object}  middleware.ThrottleResponse  "Throttled"
// @Router      /jobs/{kind}/{number} [delete]
func (h *Handlers) CancelJob(c *gin.Context) {
	key, err := entityKey(c, c.Param("kind"), c.Param("number"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	ok(c, CancelResponse{Cancelled: h.orch.Cancel(key)})
}
