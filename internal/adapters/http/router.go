package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jamroom/jamroom/internal/adapters/signal"
	"github.com/jamroom/jamroom/internal/app/orch"
	"github.com/jamroom/jamroom/internal/config"
	"github.com/jamroom/jamroom/internal/core"
	"github.com/jamroom/jamroom/internal/domain"
	"github.com/jamroom/jamroom/internal/playback"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("JamroomSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctl := signal.NewSignalWSController(o, cfg.ReadLimit, cfg.PingPeriod)

	api := r.Group("/api")

	// Clients build their peer connections and sync tolerances from here, so
	// every participant of a room runs with the same thresholds.
	api.GET("/client-config", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"stun_servers": cfg.STUNServers,
			"sync": gin.H{
				"follower_drift_sec":    cfg.Sync.FollowerDriftSec,
				"write_suppression_sec": cfg.Sync.WriteSuppressionSec,
				"interval_ms":           cfg.Sync.Interval.Milliseconds(),
			},
		})
	})

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Rooms.List())
	})

	api.POST("/rooms", func(c *gin.Context) {
		var body struct {
			Name string `json:"name"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		if len(body.Name) > 36 {
			body.Name = body.Name[:36]
		}
		sid := core.SessionID(c.GetString("client_token"))
		user := o.Registry.GetOrCreateUser(sid)
		room := o.CreateRoom(ctx, domain.RoomName(body.Name), user.ID)
		c.JSON(http.StatusCreated, gin.H{
			"room":    room.Room(),
			"host_id": user.ID,
		})
	})

	api.GET("/rooms/:id", func(c *gin.Context) {
		room, ok := o.Rooms.Get(domain.RoomID(c.Param("id")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"room":    room.Room(),
			"members": room.MembersSnapshot(),
		})
	})

	api.GET("/rooms/:id/queue", func(c *gin.Context) {
		roomID := domain.RoomID(c.Param("id"))
		if _, ok := o.Rooms.Get(roomID); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		entries, err := o.State.List(c.Request.Context(), roomID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "queue unavailable"})
			return
		}
		c.JSON(http.StatusOK, entries)
	})

	api.GET("/rooms/:id/player", func(c *gin.Context) {
		roomID := domain.RoomID(c.Param("id"))
		if _, ok := o.Rooms.Get(roomID); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		rec, err := o.State.Fetch(c.Request.Context(), roomID)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, rec)
		case errors.Is(err, playback.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no playback record"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "player unavailable"})
		}
	})

	return r
}
