package http

import (
	"context"
	"net/http"

	"github.com/dkeye/VoiceCall/internal/adapters/relay"
	"github.com/dkeye/VoiceCall/internal/config"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

type tokenRequest struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// SetupRouter serves the call relay. Token minting is only mounted with
// dev_tokens; production tokens come from the chat service sharing the secret.
func SetupRouter(ctx context.Context, cfg *config.Config, hub *relay.Hub, tokens *Tokens) http.Handler {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "calls": hub.ActiveCalls()})
	})

	api := r.Group("/api")

	if cfg.DevTokens {
		api.POST("/token", func(c *gin.Context) {
			var req tokenRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
				return
			}
			id, err := domain.NewIdentity(req.UserID, req.DisplayName, "")
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			token, err := tokens.Mint(domain.User{ID: id.UserID, DisplayName: id.DisplayName})
			if err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("mint token")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "mint failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})
	}

	api.GET("/ws/call", tokens.Require(), func(c *gin.Context) {
		user, ok := userFrom(c)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		log.Info().Str("module", "adapters.http").Str("user", string(user.ID)).Msg("ws call endpoint hit")
		hub.HandleWS(ctx, c, user)
	})

	log.Info().Str("module", "adapters.http").Bool("dev_tokens", cfg.DevTokens).Msg("router setup")

	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(r)
}
