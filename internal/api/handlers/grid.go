package handlers

import (
	"net/http"

	"gridsweep/internal/api/models"
	"gridsweep/internal/grid"

	"github.com/gin-gonic/gin"
)

// GridHandler answers questions about a parameter grid without running it.
type GridHandler struct{}

func NewGridHandler() *GridHandler { return &GridHandler{} }

// Preview handles POST /api/v1/grid/preview: the total point count and the
// first Limit points in enumeration order.
func (h *GridHandler) Preview(c *gin.Context) {
	var req models.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	dims := make([]grid.Dimension, len(req.Dimensions))
	for i, d := range req.Dimensions {
		dims[i] = grid.Dimension{Name: d.Name, Start: d.Start, End: d.End, Steps: d.Steps}
	}
	space, err := grid.NewSpace(dims)
	if err != nil {
		badRequest(c, "INVALID_DIMENSIONS", err.Error())
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	if int64(limit) > space.Count() {
		limit = int(space.Count())
	}

	out := models.PreviewResponse{
		Count:  space.Count(),
		Points: make([]models.PreviewPoint, 0, limit),
	}
	for i := int64(0); i < int64(limit); i++ {
		p, err := space.PointAt(i)
		if err != nil {
			badRequest(c, "INVALID_DIMENSIONS", err.Error())
			return
		}
		out.Points = append(out.Points, models.PreviewPoint{Index: i, Values: p.Values()})
	}
	c.JSON(http.StatusOK, out)
}
