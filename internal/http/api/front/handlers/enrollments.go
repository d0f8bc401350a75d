package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/stampdesk/stampdesk/internal/models"
	"github.com/stampdesk/stampdesk/internal/ratelimit"
)

// EnrollmentHandler handles program membership endpoints.
type EnrollmentHandler struct {
	db      *gorm.DB
	limiter *ratelimit.Limiter
}

// NewEnrollmentHandler constructs an EnrollmentHandler.
func NewEnrollmentHandler(db *gorm.DB, limiter *ratelimit.Limiter) *EnrollmentHandler {
	return &EnrollmentHandler{db: db, limiter: limiter}
}

// ListPrograms returns all active programs with the customer's enrollment
// status for each.
func (h *EnrollmentHandler) ListPrograms(c *gin.Context) {
	customerID := getCustomerID(c)
	if customerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var programs []models.Program
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&programs).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query programs failed"})
		return
	}

	var enrollments []models.ProgramEnrollment
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("customer_id = ?", customerID).
		Find(&enrollments).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query enrollments failed"})
		return
	}
	statusByProgram := make(map[uint64]string, len(enrollments))
	for _, enrollment := range enrollments {
		statusByProgram[enrollment.ProgramID] = enrollment.Status
	}

	resp := make([]gin.H, 0, len(programs))
	for _, program := range programs {
		item := gin.H{
			"id":          program.ID,
			"business_id": program.BusinessID,
			"name":        program.Name,
			"points_name": program.PointsName,
		}
		if status, ok := statusByProgram[program.ID]; ok {
			item["enrollment_status"] = status
		}
		resp = append(resp, item)
	}
	c.JSON(http.StatusOK, gin.H{"programs": resp})
}

// Enroll joins the customer to a program, reactivating a previously
// cancelled enrollment if one exists.
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	customerID := getCustomerID(c)
	if customerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	programID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || programID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid program id"})
		return
	}

	if h.limiter != nil {
		decision := h.limiter.Admit(actorKey(customerID), ratelimit.OpEnroll)
		if !decision.Allowed() {
			writeRateLimited(c, decision)
			return
		}
	}

	var program models.Program
	if errFind := h.db.WithContext(c.Request.Context()).First(&program, programID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "program not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query program failed"})
		return
	}
	if !program.IsActive {
		c.JSON(http.StatusConflict, gin.H{"error": "program not accepting enrollments"})
		return
	}

	var enrollment models.ProgramEnrollment
	errFind := h.db.WithContext(c.Request.Context()).
		Where("customer_id = ? AND program_id = ?", customerID, programID).
		First(&enrollment).Error
	switch {
	case errFind == nil:
		if enrollment.Status == models.EnrollmentStatusActive {
			c.JSON(http.StatusOK, gin.H{"enrollment": enrollmentDTO(enrollment)})
			return
		}
		if errUpdate := h.db.WithContext(c.Request.Context()).Model(&enrollment).Updates(map[string]any{
			"status":     models.EnrollmentStatusActive,
			"updated_at": time.Now().UTC(),
		}).Error; errUpdate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reactivate enrollment failed"})
			return
		}
		enrollment.Status = models.EnrollmentStatusActive
		c.JSON(http.StatusOK, gin.H{"enrollment": enrollmentDTO(enrollment)})
		return
	case errors.Is(errFind, gorm.ErrRecordNotFound):
		enrollment = models.ProgramEnrollment{
			CustomerID: customerID,
			ProgramID:  programID,
			Status:     models.EnrollmentStatusActive,
		}
		if errCreate := h.db.WithContext(c.Request.Context()).Create(&enrollment).Error; errCreate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create enrollment failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"enrollment": enrollmentDTO(enrollment)})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query enrollment failed"})
		return
	}
}

// Cancel ends the customer's membership in a program and deactivates the
// associated card. The card and its ledger survive for audit; a later
// re-enrollment gets a fresh card.
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	customerID := getCustomerID(c)
	if customerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	programID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || programID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid program id"})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var enrollment models.ProgramEnrollment
		if errFind := tx.Where("customer_id = ? AND program_id = ?", customerID, programID).
			First(&enrollment).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not enrolled"})
				return errFind
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query enrollment failed"})
			return errFind
		}
		if enrollment.Status == models.EnrollmentStatusCancelled {
			c.JSON(http.StatusOK, gin.H{"enrollment": enrollmentDTO(enrollment)})
			return nil
		}

		now := time.Now().UTC()
		if errUpdate := tx.Model(&enrollment).Updates(map[string]any{
			"status":     models.EnrollmentStatusCancelled,
			"updated_at": now,
		}).Error; errUpdate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cancel enrollment failed"})
			return errUpdate
		}
		if errDeactivate := tx.Model(&models.RewardCard{}).
			Where("customer_id = ? AND program_id = ? AND status = ?", customerID, programID, models.CardStatusActive).
			Updates(map[string]any{
				"status":     models.CardStatusInactive,
				"updated_at": now,
			}).Error; errDeactivate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "deactivate card failed"})
			return errDeactivate
		}

		enrollment.Status = models.EnrollmentStatusCancelled
		c.JSON(http.StatusOK, gin.H{"enrollment": enrollmentDTO(enrollment)})
		return nil
	})
	_ = errTx // response already written inside the transaction
}

// enrollmentDTO shapes an enrollment response payload.
func enrollmentDTO(enrollment models.ProgramEnrollment) gin.H {
	return gin.H{
		"id":               enrollment.ID,
		"program_id":       enrollment.ProgramID,
		"status":           enrollment.Status,
		"mirrored_balance": enrollment.MirroredBalance,
	}
}
