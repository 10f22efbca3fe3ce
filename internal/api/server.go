// Package api serves the workbook content API over HTTP.
package api

import (
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/workbook/internal/store"
	intsync "github.com/matheus3301/workbook/internal/sync"
	"github.com/matheus3301/workbook/internal/wire"
	"go.uber.org/zap"
)

const userKey = "workbook.user"

// Options configures the API surface.
type Options struct {
	Checkpoints []int
	UploadDir   string
	// PublicURL prefixes image URLs handed to clients. Empty yields
	// host-relative URLs.
	PublicURL string
	// Relay, when set, is mounted at /relay.
	Relay http.Handler
}

// Server holds the handlers' dependencies.
type Server struct {
	db     *store.DB
	engine *intsync.Engine
	logger *zap.Logger
	opts   Options
}

// NewServer creates the API handlers.
func NewServer(db *store.DB, engine *intsync.Engine, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	return &Server{db: db, engine: engine, logger: logger, opts: opts}
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	r.MaxMultipartMemory = 16 << 20

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if s.opts.UploadDir != "" {
		r.Static("/uploads", filepath.Clean(s.opts.UploadDir))
	}
	if s.opts.Relay != nil {
		r.GET("/relay", gin.WrapH(s.opts.Relay))
	}

	authed := r.Group("/", s.requireAuth())
	authed.GET("/me", s.me)
	authed.GET("/progress-checkpoints/:id", s.getCheckpoint)
	authed.POST("/progress-checkpoints/:id/photo", s.uploadPhoto)
	authed.GET("/conversation", s.learnerConversation)
	authed.GET("/conversations", s.requireAdmin(), s.listConversations)
	authed.POST("/conversations/:id/read", s.requireAdmin(), s.markRead)
	authed.GET("/messages", s.listMessages)
	authed.POST("/messages", s.postMessage)

	return r
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		u, err := s.db.UserByToken(token)
		if err != nil {
			s.logger.Error("token lookup failed", zap.Error(err))
			abort(c, http.StatusInternalServerError, "token lookup failed")
			return
		}
		if u == nil {
			abort(c, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c).Role != store.RoleAdmin {
			abort(c, http.StatusForbidden, "admin only")
			return
		}
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()))
	}
}

func (s *Server) me(c *gin.Context) {
	u := currentUser(c)
	c.JSON(http.StatusOK, wire.Identity{ID: u.ID, Name: u.Name, Role: wire.Sender(u.Role)})
}

func (s *Server) isCheckpoint(page int) bool {
	return slices.Contains(s.opts.Checkpoints, page)
}

func currentUser(c *gin.Context) *store.User {
	return c.MustGet(userKey).(*store.User)
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, wire.ErrorBody{Error: msg})
}
