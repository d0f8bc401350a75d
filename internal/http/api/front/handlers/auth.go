package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/stampdesk/stampdesk/internal/config"
	"github.com/stampdesk/stampdesk/internal/models"
	"github.com/stampdesk/stampdesk/internal/ratelimit"
	"github.com/stampdesk/stampdesk/internal/security"
)

// AuthHandler handles customer authentication endpoints.
type AuthHandler struct {
	db      *gorm.DB
	jwtCfg  config.JWTConfig
	limiter *ratelimit.Limiter
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig, limiter *ratelimit.Limiter) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg, limiter: limiter}
}

// registerRequest defines the request body for customer registration.
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Register creates a new customer account.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}
	email := strings.TrimSpace(body.Email)
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing email"})
		return
	}
	password := strings.TrimSpace(body.Password)
	if password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing password"})
		return
	}

	var exists models.Customer
	if errCheck := h.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&exists).Error; errCheck == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
		return
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	now := time.Now().UTC()
	customer := models.Customer{
		Username:  username,
		Email:     email,
		Name:      strings.TrimSpace(body.Name),
		Password:  hash,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&customer).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create customer failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":       customer.ID,
		"username": customer.Username,
		"email":    customer.Email,
	})
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates a customer and issues a JWT. Attempts are admitted
// per client IP so a guessing loop locks itself out instead of the account.
func (h *AuthHandler) Login(c *gin.Context) {
	if h.limiter != nil {
		decision := h.limiter.Admit("ip:"+c.ClientIP(), ratelimit.OpLogin)
		if !decision.Allowed() {
			writeRateLimited(c, decision)
			return
		}
	}

	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	password := strings.TrimSpace(body.Password)
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username or password"})
		return
	}

	var customer models.Customer
	if errFind := h.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&customer).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	if !customer.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "customer disabled"})
		return
	}

	if !security.CheckPassword(customer.Password, password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, errToken := security.GenerateToken(h.jwtCfg.Secret, customer.ID, customer.Username, customer.Email, h.jwtCfg.Expiry())
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"customer": gin.H{
			"id":       customer.ID,
			"username": customer.Username,
			"email":    customer.Email,
			"name":     customer.Name,
		},
	})
}
