package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/stampdesk/stampdesk/internal/cards"
	"github.com/stampdesk/stampdesk/internal/ledger"
	"github.com/stampdesk/stampdesk/internal/models"
	"github.com/stampdesk/stampdesk/internal/notify"
)

// CardHandler handles card read endpoints.
type CardHandler struct {
	db     *gorm.DB
	ledger *ledger.Ledger
	fanout *notify.Fanout
}

// NewCardHandler constructs a CardHandler.
func NewCardHandler(db *gorm.DB, ldg *ledger.Ledger, fanout *notify.Fanout) *CardHandler {
	return &CardHandler{db: db, ledger: ldg, fanout: fanout}
}

// cardDTO shapes a card response payload.
func cardDTO(card models.RewardCard) gin.H {
	return gin.H{
		"card_uid":         card.CardUID,
		"program_id":       card.ProgramID,
		"business_id":      card.BusinessID,
		"balance":          card.Balance,
		"status":           card.Status,
		"last_credited_at": card.LastCreditedAt,
		"created_at":       card.CreatedAt,
	}
}

// loadOwnedCard fetches a card by public identifier and verifies ownership.
// It writes the error response itself and reports success via ok.
func (h *CardHandler) loadOwnedCard(c *gin.Context) (models.RewardCard, bool) {
	customerID := getCustomerID(c)
	if customerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return models.RewardCard{}, false
	}

	cardUID := strings.TrimSpace(c.Param("uid"))
	if cardUID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing card uid"})
		return models.RewardCard{}, false
	}

	var card models.RewardCard
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("card_uid = ?", cardUID).
		First(&card).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
			return models.RewardCard{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query card failed"})
		return models.RewardCard{}, false
	}
	if card.CustomerID != customerID {
		// Do not reveal that the card exists.
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
		return models.RewardCard{}, false
	}
	return card, true
}

// List returns all of the customer's cards, newest first.
func (h *CardHandler) List(c *gin.Context) {
	customerID := getCustomerID(c)
	if customerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var rows []models.RewardCard
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("customer_id = ?", customerID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query cards failed"})
		return
	}

	resp := make([]gin.H, 0, len(rows))
	for _, card := range rows {
		resp = append(resp, cardDTO(card))
	}
	c.JSON(http.StatusOK, gin.H{"cards": resp})
}

// Balance returns the authoritative balance for one card.
func (h *CardHandler) Balance(c *gin.Context) {
	card, ok := h.loadOwnedCard(c)
	if !ok {
		return
	}

	balance, errBalance := h.ledger.Balance(c.Request.Context(), cards.Identity{
		ID:         card.ID,
		CardUID:    card.CardUID,
		CustomerID: card.CustomerID,
		BusinessID: card.BusinessID,
		ProgramID:  card.ProgramID,
	})
	if errBalance != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read balance failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"card_uid": card.CardUID,
		"balance":  balance,
		"status":   card.Status,
	})
}

// Ledger returns the card's credit history, newest first.
func (h *CardHandler) Ledger(c *gin.Context) {
	card, ok := h.loadOwnedCard(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	var total int64
	if errCount := h.db.WithContext(c.Request.Context()).
		Model(&models.LedgerEntry{}).
		Where("card_id = ?", card.ID).
		Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count entries failed"})
		return
	}

	var entries []models.LedgerEntry
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("card_id = ?", card.ID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query entries failed"})
		return
	}

	resp := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, gin.H{
			"entry_uid":   entry.EntryUID,
			"delta":       entry.Delta,
			"source":      entry.Source,
			"description": entry.Description,
			"created_at":  entry.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"card_uid": card.CardUID,
		"total":    total,
		"entries":  resp,
	})
}

// LastEvent returns the most recent balance event recorded for the card.
func (h *CardHandler) LastEvent(c *gin.Context) {
	card, ok := h.loadOwnedCard(c)
	if !ok {
		return
	}

	if h.fanout == nil {
		c.JSON(http.StatusOK, gin.H{"event": nil})
		return
	}
	event, found, errLast := h.fanout.LastEvent(c.Request.Context(), card.ID)
	if errLast != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query event failed"})
		return
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"event": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": event})
}
