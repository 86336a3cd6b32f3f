package syncer

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	httperr "github.com/tagpulse-lab/tagpulse/internal/core/errors"
)

// RegisterRoutes registers the on-demand sync route on the given router.
func (c *Coordinator) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/hashtags/sync", c.HandleTriggerSync)
}

// HandleTriggerSync handles POST /v1/hashtags/sync?minutes=
// minutes bounds the initial lookback when no cursor exists yet; once the
// engine has a cursor, sync always resumes from it.
func (c *Coordinator) HandleTriggerSync(ctx *gin.Context) {
	var query struct {
		Minutes int `form:"minutes,default=60" binding:"omitempty,min=1,max=1440"`
	}
	if err := ctx.ShouldBindQuery(&query); err != nil {
		ctx.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidRequestError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	result, err := c.Sync(ctx.Request.Context(), c.opts.NowFn(), time.Duration(query.Minutes)*time.Minute)
	if err != nil {
		// Recoverable: the cursor is unchanged and cached data keeps serving.
		ctx.JSON(http.StatusServiceUnavailable, httperr.ErrorResponse{
			ErrorType: httperr.HttpSyncFailedError,
			Message:   "Sync failed; trending data may be stale",
			Details:   err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, result)
}
