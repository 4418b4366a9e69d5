package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/wirelink/internal/auth"
	"github.com/danmuck/wirelink/internal/messages"
	"github.com/danmuck/wirelink/internal/transport/wsconn"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

type chatRequest struct {
	From string `json:"from"`
	Text string `json:"text" binding:"required"`
}

func (s *Server) registerRoutes(r *gin.Engine) {
	guard := auth.Require(s.adminValidator())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"uptime":     time.Since(s.started).String(),
			"sessions":   s.registry.Len(),
			"encryption": s.cfg.Session.Encryption,
			"version":    version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": s.registry.List()})
	})

	r.GET("/sessions/:id", func(c *gin.Context) {
		id, ok := sessionParam(c)
		if !ok {
			return
		}
		for _, info := range s.registry.List() {
			if info.ID == id {
				c.JSON(http.StatusOK, info)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	})

	r.DELETE("/sessions/:id", guard, func(c *gin.Context) {
		id, ok := sessionParam(c)
		if !ok {
			return
		}
		sess, found := s.registry.Get(id)
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		_ = sess.Close()
		c.JSON(http.StatusOK, gin.H{"status": "closed", "id": id})
	})

	r.POST("/broadcast/chat", guard, func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.From == "" {
			req.From = "admin"
		}
		msg := messages.Chat{From: req.From, Text: req.Text}
		sent := s.registry.Broadcast(msg.Opcode(), msg.Payload())
		c.JSON(http.StatusOK, gin.H{"status": "ok", "delivered": sent})
	})

	r.GET("/ws", func(c *gin.Context) {
		conn, err := wsconn.Upgrade(c.Writer, c.Request, &s.upgrader)
		if err != nil {
			log.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("websocket upgrade failed")
			return
		}
		_ = s.ServeConn(c.Request.Context(), conn, TransportWebsocket)
	})
}

func sessionParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return 0, false
	}
	return id, true
}
