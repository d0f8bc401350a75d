package handlers

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stampdesk/stampdesk/internal/ratelimit"
)

// getCustomerID extracts the customer ID from gin context.
func getCustomerID(c *gin.Context) uint64 {
	val, exists := c.Get("customerID")
	if !exists {
		return 0
	}
	switch v := val.(type) {
	case uint64:
		return v
	case int64:
		return uint64(v)
	case uint:
		return uint64(v)
	case int:
		return uint64(v)
	default:
		return 0
	}
}

// actorKey builds the limiter key for an authenticated customer.
func actorKey(customerID uint64) string {
	return fmt.Sprintf("customer:%d", customerID)
}

// writeRateLimited writes the 429 response for a denied admission, with a
// Retry-After header rounded up to whole seconds.
func writeRateLimited(c *gin.Context, decision ratelimit.Decision) {
	retryAfter := int64(math.Ceil(decision.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))

	body := gin.H{
		"error":               "rate limited",
		"outcome":             decision.Outcome,
		"retry_after_seconds": retryAfter,
	}
	if decision.Outcome == ratelimit.OutcomeDailyCap && !decision.ResetAt.IsZero() {
		body["reset_at"] = decision.ResetAt.UTC()
	}
	c.JSON(http.StatusTooManyRequests, body)
}
