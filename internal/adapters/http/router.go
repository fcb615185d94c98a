package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/mustafaciftc/sesli-sohbet/internal/adapters/signal"
	"github.com/mustafaciftc/sesli-sohbet/internal/app/orch"
	"github.com/mustafaciftc/sesli-sohbet/internal/auth"
	"github.com/mustafaciftc/sesli-sohbet/internal/config"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/rs/zerolog/log"
)

const sessionTokenKey = "token"

// tokenFrom looks at the query, the Authorization header and the session cookie, in that order.
func tokenFrom(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if t, ok := sessions.Default(c).Get(sessionTokenKey).(string); ok {
		return t
	}
	return ""
}

// AuthMiddleware rejects the request before any registry work when the token does not verify.
func AuthMiddleware(v auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := v.Verify(c.Request.Context(), tokenFrom(c))
		if err != nil {
			status := http.StatusUnauthorized
			if !errors.Is(err, domain.ErrNotAuthenticated) {
				status = http.StatusServiceUnavailable
				log.Error().Err(err).Str("module", "adapters.http").Msg("verify token")
			}
			c.AbortWithStatusJSON(status, gin.H{"error": domain.Code(err)})
			return
		}
		c.Set(signal.UserKey, user)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, verifier auth.Verifier) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("VoiceSessions", store))

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctrl := signal.NewSignalWSController(o, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})

	api := r.Group("/api")
	api.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.POST("/session", func(c *gin.Context) {
		var body struct {
			Token string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": domain.Code(domain.ErrMalformed)})
			return
		}
		user, err := verifier.Verify(c.Request.Context(), body.Token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": domain.Code(err)})
			return
		}
		sess := sessions.Default(c)
		sess.Set(sessionTokenKey, body.Token)
		if err := sess.Save(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
			return
		}
		c.JSON(http.StatusOK, user)
	})
	api.DELETE("/session", func(c *gin.Context) {
		sess := sessions.Default(c)
		sess.Clear()
		_ = sess.Save()
		c.Status(http.StatusNoContent)
	})

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Registry.Rooms())
	})
	api.GET("/rooms/:id/status", func(c *gin.Context) {
		room, err := domain.ParseRoomID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": domain.Code(err)})
			return
		}
		capacity, err := o.Admission.Capacity(c.Request.Context(), room)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, domain.ErrRoomNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": domain.Code(err)})
			return
		}
		st := o.Status(room)
		c.JSON(http.StatusOK, gin.H{
			"roomId":           st.RoomID,
			"participantCount": st.ParticipantCount,
			"maxParticipants":  capacity,
		})
	})

	api.GET("/rooms/:id/messages", func(c *gin.Context) {
		room, err := domain.ParseRoomID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": domain.Code(err)})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": domain.Code(domain.ErrMalformed)})
			return
		}
		msgs, err := o.History.Recent(c.Request.Context(), room, limit)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Str("room", string(room)).Msg("recent messages")
			c.JSON(http.StatusInternalServerError, gin.H{"error": domain.Code(err)})
			return
		}
		c.JSON(http.StatusOK, msgs)
	})

	api.GET("/ws/signal", AuthMiddleware(verifier), func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
