package handlers

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/stampdesk/stampdesk/internal/models"
)

// performEnrollment invokes an enrollment handler with a program id param.
func performEnrollment(t *testing.T, handler gin.HandlerFunc, customerID, programID uint64) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("customerID", customerID)
	c.Params = gin.Params{{Key: "id", Value: strconv.FormatUint(programID, 10)}}
	c.Request = httptest.NewRequest(http.MethodPost, "/v0/front/programs/"+strconv.FormatUint(programID, 10)+"/enroll", nil)
	handler(c)
	return w
}

func TestEnrollCreatesEnrollment(t *testing.T) {
	conn := openHandlerTestDB(t)
	program := seedProgram(t, conn)
	customer := seedCustomer(t, conn, "enroll-basic")
	h := NewEnrollmentHandler(conn, nil)

	w := performEnrollment(t, h.Enroll, customer.ID, program.ID)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", w.Code, w.Body.String())
	}

	var enrollment models.ProgramEnrollment
	if errFind := conn.Where("customer_id = ? AND program_id = ?", customer.ID, program.ID).
		First(&enrollment).Error; errFind != nil {
		t.Fatalf("find enrollment: %v", errFind)
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		t.Fatalf("expected ACTIVE, got %s", enrollment.Status)
	}
}

func TestEnrollTwiceIsIdempotent(t *testing.T) {
	conn := openHandlerTestDB(t)
	program := seedProgram(t, conn)
	customer := seedCustomer(t, conn, "enroll-twice")
	h := NewEnrollmentHandler(conn, nil)

	if w := performEnrollment(t, h.Enroll, customer.ID, program.ID); w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", w.Code)
	}
	if w := performEnrollment(t, h.Enroll, customer.ID, program.ID); w.Code != http.StatusOK {
		t.Fatalf("expected status 200 on repeat, got %d", w.Code)
	}

	var count int64
	if errCount := conn.Model(&models.ProgramEnrollment{}).
		Where("customer_id = ?", customer.ID).
		Count(&count).Error; errCount != nil {
		t.Fatalf("count enrollments: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected 1 enrollment, got %d", count)
	}
}

func TestEnrollUnknownProgramReturns404(t *testing.T) {
	conn := openHandlerTestDB(t)
	customer := seedCustomer(t, conn, "enroll-noprog")
	h := NewEnrollmentHandler(conn, nil)

	if w := performEnrollment(t, h.Enroll, customer.ID, 12345); w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestEnrollInactiveProgramReturns409(t *testing.T) {
	conn := openHandlerTestDB(t)
	program := seedProgram(t, conn)
	if errUpdate := conn.Model(&models.Program{}).Where("id = ?", program.ID).
		Update("is_active", false).Error; errUpdate != nil {
		t.Fatalf("deactivate program: %v", errUpdate)
	}
	customer := seedCustomer(t, conn, "enroll-inactive")
	h := NewEnrollmentHandler(conn, nil)

	if w := performEnrollment(t, h.Enroll, customer.ID, program.ID); w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", w.Code)
	}
}

func TestCancelDeactivatesCard(t *testing.T) {
	conn := openHandlerTestDB(t)
	program := seedProgram(t, conn)
	customer := seedCustomer(t, conn, "cancel-card")
	seedEnrollment(t, conn, customer.ID, program.ID, models.EnrollmentStatusActive)

	awardHandler := newTestAwardHandler(t, conn)
	if w := performAward(t, awardHandler, customer.ID, awardRequest{
		ProgramID: program.ID, Points: 5, IdempotencyKey: "cancel-scan",
	}); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", w.Code, w.Body.String())
	}

	h := NewEnrollmentHandler(conn, nil)
	if w := performEnrollment(t, h.Cancel, customer.ID, program.ID); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var enrollment models.ProgramEnrollment
	if errFind := conn.Where("customer_id = ?", customer.ID).First(&enrollment).Error; errFind != nil {
		t.Fatalf("find enrollment: %v", errFind)
	}
	if enrollment.Status != models.EnrollmentStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", enrollment.Status)
	}

	var card models.RewardCard
	if errFind := conn.Where("customer_id = ?", customer.ID).First(&card).Error; errFind != nil {
		t.Fatalf("find card: %v", errFind)
	}
	if card.Status != models.CardStatusInactive {
		t.Fatalf("expected INACTIVE card, got %s", card.Status)
	}
	if card.Balance != 5 {
		t.Fatalf("expected balance preserved at 5, got %d", card.Balance)
	}
}

func TestReEnrollAfterCancelGetsFreshCard(t *testing.T) {
	conn := openHandlerTestDB(t)
	program := seedProgram(t, conn)
	customer := seedCustomer(t, conn, "reenroll")
	seedEnrollment(t, conn, customer.ID, program.ID, models.EnrollmentStatusActive)

	awardHandler := newTestAwardHandler(t, conn)
	if w := performAward(t, awardHandler, customer.ID, awardRequest{
		ProgramID: program.ID, Points: 9, IdempotencyKey: "re-scan-1",
	}); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", w.Code, w.Body.String())
	}

	h := NewEnrollmentHandler(conn, nil)
	if w := performEnrollment(t, h.Cancel, customer.ID, program.ID); w.Code != http.StatusOK {
		t.Fatalf("cancel: expected status 200, got %d", w.Code)
	}
	if w := performEnrollment(t, h.Enroll, customer.ID, program.ID); w.Code != http.StatusOK {
		t.Fatalf("re-enroll: expected status 200, got %d", w.Code)
	}

	if w := performAward(t, awardHandler, customer.ID, awardRequest{
		ProgramID: program.ID, Points: 2, IdempotencyKey: "re-scan-2",
	}); w.Code != http.StatusOK {
		t.Fatalf("award after re-enroll: expected status 200, got %d body=%s", w.Code, w.Body.String())
	}

	var cardCount int64
	if errCount := conn.Model(&models.RewardCard{}).
		Where("customer_id = ?", customer.ID).
		Count(&cardCount).Error; errCount != nil {
		t.Fatalf("count cards: %v", errCount)
	}
	if cardCount != 2 {
		t.Fatalf("expected 2 cards (old inactive, new active), got %d", cardCount)
	}

	var fresh models.RewardCard
	if errFind := conn.Where("customer_id = ? AND status = ?", customer.ID, models.CardStatusActive).
		First(&fresh).Error; errFind != nil {
		t.Fatalf("find active card: %v", errFind)
	}
	if fresh.Balance != 2 {
		t.Fatalf("expected fresh card balance 2, got %d", fresh.Balance)
	}
}
