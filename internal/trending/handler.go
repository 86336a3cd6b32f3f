package trending

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	httperr "github.com/tagpulse-lab/tagpulse/internal/core/errors"
)

// RegisterRoutes registers the trending API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/hashtags/trending", s.HandleTrending)
	r.GET("/v1/hashtags/status", s.HandleStatus)
}

// HandleTrending handles GET /v1/hashtags/trending?window=&k=
// window is in minutes (default 60), k is the result size (default 10).
func (s *Service) HandleTrending(c *gin.Context) {
	var query struct {
		Window int `form:"window,default=60" binding:"omitempty,min=1,max=1440"`
		K      int `form:"k,default=10" binding:"omitempty,min=1,max=100"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidRequestError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	counts, stale, err := s.TopK(c.Request.Context(), time.Duration(query.Window)*time.Minute, query.K)
	if err != nil {
		switch {
		case errors.Is(err, ErrWindowExceedsHistory):
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpWindowExceedsHistory,
				Message:   "Requested window exceeds available history",
				Details:   err.Error(),
			})
		case errors.Is(err, ErrInvalidQuery):
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidRequestError,
				Message:   "Invalid trending query",
				Details:   err.Error(),
			})
		case errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusGatewayTimeout, httperr.ErrorResponse{
				ErrorType: httperr.HttpQueryTimeoutError,
				Message:   "Trending query exceeded its timeout budget",
				Details:   err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
				ErrorType: httperr.HttpInternalError,
				Message:   "Failed to retrieve trending hashtags",
				Details:   err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, TrendingResponse{
		Hashtags:      counts,
		WindowMinutes: query.Window,
		TotalCount:    len(counts),
		Stale:         stale,
	})
}

// HandleStatus handles GET /v1/hashtags/status.
func (s *Service) HandleStatus(c *gin.Context) {
	resp, err := s.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to retrieve engine status",
			Details:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}
