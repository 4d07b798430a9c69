package httpserver

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Cart-Identifier"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.Health))

	h := &cartHandlers{deps: deps}

	router.POST("/guest-tokens", h.issueGuestToken)

	carts := router.Group("/carts/:instance", identityMiddleware(deps))
	{
		carts.GET("", h.viewCart)
		carts.DELETE("", h.clearCart)

		carts.POST("/items", h.addItem)
		carts.PATCH("/items/:id", h.updateItem)
		carts.DELETE("/items/:id", h.removeItem)

		carts.POST("/conditions", h.addCondition)
		carts.DELETE("/conditions/:name", h.removeCondition)
		carts.POST("/items/:id/conditions", h.addItemCondition)
		carts.DELETE("/items/:id/conditions/:name", h.removeItemCondition)

		carts.PUT("/metadata/:key", h.putMetadata)
		carts.DELETE("/metadata/:key", h.deleteMetadata)

		carts.POST("/vouchers", h.applyVoucher)
		carts.DELETE("/vouchers/:code", h.releaseVoucher)

		carts.POST("/merge", h.mergeCart)
	}

	return router
}

// identityMiddleware resolves the cart identifier: a guest bearer token or
// the X-Cart-Identifier header (trusted upstream auth).
func identityMiddleware(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token := strings.TrimPrefix(auth, "Bearer ")
			guestID, err := deps.Guests.LookupByToken(c.Request.Context(), token)
			if err == nil {
				c.Set(ctxIdentifier, guestID)
				c.Next()
				return
			}
		}
		if id := c.GetHeader("X-Cart-Identifier"); id != "" {
			c.Set(ctxIdentifier, id)
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing cart identity"})
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func readyHandler(health func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if err := health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
