package front

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/stampdesk/stampdesk/internal/cards"
	"github.com/stampdesk/stampdesk/internal/config"
	"github.com/stampdesk/stampdesk/internal/http/api/front/handlers"
	"github.com/stampdesk/stampdesk/internal/ledger"
	"github.com/stampdesk/stampdesk/internal/models"
	"github.com/stampdesk/stampdesk/internal/notify"
	"github.com/stampdesk/stampdesk/internal/ratelimit"
	"github.com/stampdesk/stampdesk/internal/security"
)

// Deps bundles the services the front API routes depend on.
type Deps struct {
	DB       *gorm.DB
	JWT      config.JWTConfig
	Limiter  *ratelimit.Limiter
	Resolver *cards.Resolver
	Ledger   *ledger.Ledger
	Fanout   *notify.Fanout
}

// RegisterFrontRoutes registers public and authenticated customer routes.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	front := r.Group("/v0/front")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT, deps.Limiter)
	front.POST("/register", authHandler.Register)
	front.POST("/login", authHandler.Login)

	authed := front.Group("")
	authed.Use(customerAuthMiddleware(deps.DB, deps.JWT))

	enrollHandler := handlers.NewEnrollmentHandler(deps.DB, deps.Limiter)
	authed.GET("/programs", enrollHandler.ListPrograms)
	authed.POST("/programs/:id/enroll", enrollHandler.Enroll)
	authed.POST("/programs/:id/cancel", enrollHandler.Cancel)

	awardHandler := handlers.NewAwardHandler(deps.DB, deps.Limiter, deps.Resolver, deps.Ledger, deps.Fanout)
	authed.POST("/awards", awardHandler.Award)

	cardHandler := handlers.NewCardHandler(deps.DB, deps.Ledger, deps.Fanout)
	authed.GET("/cards", cardHandler.List)
	authed.GET("/cards/:uid/balance", cardHandler.Balance)
	authed.GET("/cards/:uid/ledger", cardHandler.Ledger)
	authed.GET("/cards/:uid/last-event", cardHandler.LastEvent)
}

// customerAuthMiddleware validates customer JWTs and loads the customer
// into context.
func customerAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var customer models.Customer
		if errFind := db.WithContext(c.Request.Context()).First(&customer, claims.CustomerID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "customer not found"})
			return
		}
		if !customer.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "customer disabled"})
			return
		}

		c.Set("customerID", customer.ID)
		c.Next()
	}
}
