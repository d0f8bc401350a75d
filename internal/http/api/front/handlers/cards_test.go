package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/stampdesk/stampdesk/internal/ledger"
	"github.com/stampdesk/stampdesk/internal/models"
	"github.com/stampdesk/stampdesk/internal/notify"
)

// performCardGet invokes a card handler with a uid param.
func performCardGet(t *testing.T, handler gin.HandlerFunc, customerID uint64, cardUID, target string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("customerID", customerID)
	if cardUID != "" {
		c.Params = gin.Params{{Key: "uid", Value: cardUID}}
	}
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	handler(c)
	return w
}

func newTestCardHandler(t *testing.T, conn *gorm.DB) *CardHandler {
	t.Helper()
	return NewCardHandler(conn, ledger.New(conn, newTestExecutor(t)), notify.NewFanout(conn, nil, ""))
}

// awardOnce runs one award and returns the created card.
func awardOnce(t *testing.T, conn *gorm.DB, customerID, programID uint64, points int64, key string) models.RewardCard {
	t.Helper()
	h := newTestAwardHandler(t, conn)
	w := performAward(t, h, customerID, awardRequest{ProgramID: programID, Points: points, IdempotencyKey: key})
	if w.Code != http.StatusOK {
		t.Fatalf("award: expected status 200, got %d body=%s", w.Code, w.Body.String())
	}
	var card models.RewardCard
	if errFind := conn.Where("customer_id = ? AND program_id = ?", customerID, programID).
		First(&card).Error; errFind != nil {
		t.Fatalf("find card: %v", errFind)
	}
	return card
}

func TestCardBalance(t *testing.T) {
	conn := openHandlerTestDB(t)
	program := seedProgram(t, conn)
	customer := seedCustomer(t, conn, "card-balance")
	seedEnrollment(t, conn, customer.ID, program.ID, models.EnrollmentStatusActive)
	card := awardOnce(t, conn, customer.ID, program.ID, 12, "bal-scan")

	h := newTestCardHandler(t, conn)
	w := performCardGet(t, h.Balance, customer.ID, card.CardUID, "/v0/front/cards/"+card.CardUID+"/balance")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		CardUID string `json:"card_uid"`
		Balance int64  `json:"balance"`
		Status  string `json:"status"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp.Balance != 12 || resp.Status != models.CardStatusActive {
		t.Fatalf("unexpected response: balance=%d status=%s", resp.Balance, resp.Status)
	}
}

func TestCardBalanceOwnershipHidden(t *testing.T) {
	conn := openHandlerTestDB(t)
	program := seedProgram(t, conn)
	owner := seedCustomer(t, conn, "card-owner")
	other := seedCustomer(t, conn, "card-other")
	seedEnrollment(t, conn, owner.ID, program.ID, models.EnrollmentStatusActive)
	card := awardOnce(t, conn, owner.ID, program.ID, 3, "own-scan")

	h := newTestCardHandler(t, conn)
	w := performCardGet(t, h.Balance, other.ID, card.CardUID, "/v0/front/cards/"+card.CardUID+"/balance")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for foreign card, got %d", w.Code)
	}
}

func TestCardLedgerPagination(t *testing.T) {
	conn := openHandlerTestDB(t)
	program := seedProgram(t, conn)
	customer := seedCustomer(t, conn, "card-ledger")
	seedEnrollment(t, conn, customer.ID, program.ID, models.EnrollmentStatusActive)

	awardHandler := newTestAwardHandler(t, conn)
	for i := 0; i < 5; i++ {
		w := performAward(t, awardHandler, customer.ID, awardRequest{
			ProgramID:      program.ID,
			Points:         int64(i + 1),
			IdempotencyKey: fmt.Sprintf("page-scan-%d", i),
		})
		if w.Code != http.StatusOK {
			t.Fatalf("award %d: expected status 200, got %d", i, w.Code)
		}
	}
	var card models.RewardCard
	if errFind := conn.Where("customer_id = ?", customer.ID).First(&card).Error; errFind != nil {
		t.Fatalf("find card: %v", errFind)
	}

	h := newTestCardHandler(t, conn)
	w := performCardGet(t, h.Ledger, customer.ID, card.CardUID, "/v0/front/cards/"+card.CardUID+"/ledger?limit=2&offset=0")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Total   int64 `json:"total"`
		Entries []struct {
			Delta  int64  `json:"delta"`
			Source string `json:"source"`
		} `json:"entries"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp.Total != 5 {
		t.Fatalf("expected total 5, got %d", resp.Total)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp.Entries))
	}
	if resp.Entries[0].Source != models.LedgerSourceScan {
		t.Fatalf("expected SCAN source, got %s", resp.Entries[0].Source)
	}
}

func TestCardList(t *testing.T) {
	conn := openHandlerTestDB(t)
	program := seedProgram(t, conn)
	customer := seedCustomer(t, conn, "card-list")
	seedEnrollment(t, conn, customer.ID, program.ID, models.EnrollmentStatusActive)
	awardOnce(t, conn, customer.ID, program.ID, 1, "list-scan")

	h := newTestCardHandler(t, conn)
	w := performCardGet(t, h.List, customer.ID, "", "/v0/front/cards")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Cards []struct {
			CardUID string `json:"card_uid"`
		} `json:"cards"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if len(resp.Cards) != 1 || resp.Cards[0].CardUID == "" {
		t.Fatalf("expected 1 card with uid, got %+v", resp.Cards)
	}
}

func TestCardLastEventMissing(t *testing.T) {
	conn := openHandlerTestDB(t)
	program := seedProgram(t, conn)
	customer := seedCustomer(t, conn, "card-noevent")
	seedEnrollment(t, conn, customer.ID, program.ID, models.EnrollmentStatusActive)

	// Create a card without publishing an event.
	awardHandler := newTestAwardHandler(t, conn)
	awardHandler.fanout = nil
	w := performAward(t, awardHandler, customer.ID, awardRequest{ProgramID: program.ID, Points: 1, IdempotencyKey: "silent-scan"})
	if w.Code != http.StatusOK {
		t.Fatalf("award: expected status 200, got %d", w.Code)
	}
	var card models.RewardCard
	if errFind := conn.Where("customer_id = ?", customer.ID).First(&card).Error; errFind != nil {
		t.Fatalf("find card: %v", errFind)
	}

	h := newTestCardHandler(t, conn)
	resp := performCardGet(t, h.LastEvent, customer.ID, card.CardUID, "/v0/front/cards/"+card.CardUID+"/last-event")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", resp.Code, resp.Body.String())
	}
	var body struct {
		Event *json.RawMessage `json:"event"`
	}
	if errDecode := json.Unmarshal(resp.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if body.Event != nil && string(*body.Event) != "null" {
		t.Fatalf("expected null event, got %s", string(*body.Event))
	}
}
