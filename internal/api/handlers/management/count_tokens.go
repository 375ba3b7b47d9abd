package management

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llmbridge/vendorcore/internal/translator/usage"
)

// CountTokensRequest is the body of POST /v0/management/count-tokens: a
// host calls this pre-flight, over the same fragments it would otherwise
// send as message content, to get a best-effort token estimate without
// spending a real request against either vendor (spec.md §4.5.3/A5).
type CountTokensRequest struct {
	Fragments []string `json:"fragments" binding:"required"`
}

// CountTokensResponse reports the summed estimate across all fragments.
type CountTokensResponse struct {
	Tokens int `json:"tokens"`
}

// CountTokens implements the host's CountTokens operation (spec.md §A5)
// using the cl100k_base estimator; it never calls out to a vendor.
func (h *Handler) CountTokens(c *gin.Context) {
	var req CountTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, CountTokensResponse{Tokens: usage.EstimateAll(req.Fragments)})
}
