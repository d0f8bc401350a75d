package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/stampdesk/stampdesk/internal/cards"
	"github.com/stampdesk/stampdesk/internal/ledger"
	"github.com/stampdesk/stampdesk/internal/models"
	"github.com/stampdesk/stampdesk/internal/notify"
	"github.com/stampdesk/stampdesk/internal/ratelimit"
	"github.com/stampdesk/stampdesk/internal/resilience"
)

// AwardHandler handles the point-crediting endpoint. It chains admission,
// card resolution, the idempotent credit, and event publication; each stage
// maps its failures to a distinct status code so clients can tell a retry
// from a dead end.
type AwardHandler struct {
	db       *gorm.DB
	limiter  *ratelimit.Limiter
	resolver *cards.Resolver
	ledger   *ledger.Ledger
	fanout   *notify.Fanout
}

// NewAwardHandler constructs an AwardHandler.
func NewAwardHandler(db *gorm.DB, limiter *ratelimit.Limiter, resolver *cards.Resolver, ldg *ledger.Ledger, fanout *notify.Fanout) *AwardHandler {
	return &AwardHandler{db: db, limiter: limiter, resolver: resolver, ledger: ldg, fanout: fanout}
}

// awardRequest defines the request body for awarding points.
type awardRequest struct {
	ProgramID      uint64 `json:"program_id"`
	Points         int64  `json:"points"`
	Source         string `json:"source"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Award credits points to the customer's card in the given program,
// creating the card on first award. Retries with the same idempotency key
// return the committed balance without double-crediting.
func (h *AwardHandler) Award(c *gin.Context) {
	customerID := getCustomerID(c)
	if customerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if h.limiter != nil {
		decision := h.limiter.Admit(actorKey(customerID), ratelimit.OpCredit)
		if !decision.Allowed() {
			writeRateLimited(c, decision)
			return
		}
	}

	var body awardRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.ProgramID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing program_id"})
		return
	}
	if body.Points <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "points must be positive"})
		return
	}
	if strings.TrimSpace(body.IdempotencyKey) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing idempotency_key"})
		return
	}
	source := strings.TrimSpace(body.Source)
	if source == "" {
		source = models.LedgerSourceScan
	}

	var program models.Program
	if errFind := h.db.WithContext(c.Request.Context()).First(&program, body.ProgramID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "program not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query program failed"})
		return
	}
	if !program.IsActive {
		c.JSON(http.StatusConflict, gin.H{"error": "program inactive"})
		return
	}

	identity, errResolve := h.resolver.Resolve(c.Request.Context(), customerID, program.BusinessID, program.ID)
	if errResolve != nil {
		h.writeResolutionError(c, errResolve)
		return
	}

	newBalance, errCredit := h.ledger.Credit(c.Request.Context(), identity, body.Points, source, strings.TrimSpace(body.Description), body.IdempotencyKey)
	if errCredit != nil {
		h.writeCreditError(c, errCredit)
		return
	}

	if h.fanout != nil {
		h.fanout.Publish(c.Request.Context(), notify.Event{
			EventID:      strings.TrimSpace(body.IdempotencyKey),
			CardID:       identity.ID,
			CardUID:      identity.CardUID,
			CustomerID:   identity.CustomerID,
			ProgramID:    identity.ProgramID,
			NewBalance:   newBalance,
			DeltaApplied: body.Points,
			EmittedAt:    time.Now().UTC(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"card_uid": identity.CardUID,
		"balance":  newBalance,
	})
}

// writeResolutionError maps card resolution failures to responses.
func (h *AwardHandler) writeResolutionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cards.ErrNotEnrolled):
		c.JSON(http.StatusForbidden, gin.H{"error": "not enrolled in program"})
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrRetriesExhausted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable, retry later"})
	case errors.Is(err, cards.ErrCardCreationFailed):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "card creation failed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve card failed"})
	}
}

// writeCreditError maps credit failures to responses.
func (h *AwardHandler) writeCreditError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrCardInactive):
		c.JSON(http.StatusConflict, gin.H{"error": "card inactive"})
	case errors.Is(err, ledger.ErrCardNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
	case errors.Is(err, ledger.ErrInvalidDelta), errors.Is(err, ledger.ErrMissingIdempotencyKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrRetriesExhausted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable, retry later"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "credit failed"})
	}
}
