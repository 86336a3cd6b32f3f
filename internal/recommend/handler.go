package recommend

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	httperr "github.com/tagpulse-lab/tagpulse/internal/core/errors"
	core "github.com/tagpulse-lab/tagpulse/internal/core/trending"
)

// RegisterRoutes registers the recommendation route on the given router.
func (e *Engine) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/hashtags/recommend/:hashtag", e.HandleRecommend)
}

// RecommendResponse is the payload for GET /v1/hashtags/recommend/:hashtag.
type RecommendResponse struct {
	Hashtag         string                `json:"hashtag"`
	Recommendations []core.Recommendation `json:"recommendations"`
	TotalCount      int                   `json:"total_count"`
}

// HandleRecommend handles GET /v1/hashtags/recommend/:hashtag?min_rate=&max=
func (e *Engine) HandleRecommend(c *gin.Context) {
	// MinRate is a pointer so an explicit 0 (no threshold) stays
	// distinguishable from an absent parameter (configured default).
	var query struct {
		MinRate *float64 `form:"min_rate" binding:"omitempty,gte=0,max=1"`
		Max     int      `form:"max,default=3" binding:"omitempty,min=1,max=10"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidRequestError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	minRate := -1.0
	if query.MinRate != nil {
		minRate = *query.MinRate
	}

	target := c.Param("hashtag")
	recs, err := e.Recommend(c.Request.Context(), target, minRate, query.Max)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidQuery):
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidRequestError,
				Message:   "Invalid recommendation query",
				Details:   err.Error(),
			})
		case errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusGatewayTimeout, httperr.ErrorResponse{
				ErrorType: httperr.HttpQueryTimeoutError,
				Message:   "Recommendation query exceeded its timeout budget",
				Details:   err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
				ErrorType: httperr.HttpInternalError,
				Message:   "Failed to compute recommendations",
				Details:   err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, RecommendResponse{
		Hashtag:         target,
		Recommendations: recs,
		TotalCount:      len(recs),
	})
}
