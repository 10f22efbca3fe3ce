package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/matheus3301/workbook/internal/store"
	"github.com/matheus3301/workbook/internal/wire"
	"go.uber.org/zap"
)

var photoExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".heic": true,
}

// getCheckpoint answers GET /progress-checkpoints/:id?owner=.
func (s *Server) getCheckpoint(c *gin.Context) {
	page, ok := s.checkpointParam(c)
	if !ok {
		return
	}
	owner, ok := s.resolveOwner(c)
	if !ok {
		return
	}

	up, err := s.db.GetUpload(owner, page)
	if err != nil {
		s.logger.Error("get upload failed", zap.Error(err), zap.Int("page", page))
		abort(c, http.StatusInternalServerError, "lookup failed")
		return
	}
	if up == nil {
		c.JSON(http.StatusOK, wire.CheckpointStatus{Uploaded: false})
		return
	}
	c.JSON(http.StatusOK, wire.CheckpointStatus{Uploaded: true, ImageURL: up.ImageURL})
}

// uploadPhoto answers POST /progress-checkpoints/:id/photo (multipart "photo").
func (s *Server) uploadPhoto(c *gin.Context) {
	page, ok := s.checkpointParam(c)
	if !ok {
		return
	}
	owner, ok := s.resolveOwner(c)
	if !ok {
		return
	}
	if s.opts.UploadDir == "" {
		abort(c, http.StatusServiceUnavailable, "uploads disabled")
		return
	}

	file, err := c.FormFile("photo")
	if err != nil {
		abort(c, http.StatusBadRequest, "missing photo")
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !photoExtensions[ext] {
		abort(c, http.StatusBadRequest, fmt.Sprintf("unsupported photo type %q", ext))
		return
	}

	dir := filepath.Join(s.opts.UploadDir, owner)
	if err := os.MkdirAll(dir, 0700); err != nil {
		s.logger.Error("create upload dir", zap.Error(err))
		abort(c, http.StatusInternalServerError, "storage unavailable")
		return
	}
	name := fmt.Sprintf("%d-%s%s", page, uuid.NewString(), ext)
	if err := c.SaveUploadedFile(file, filepath.Join(dir, name)); err != nil {
		s.logger.Error("save upload", zap.Error(err))
		abort(c, http.StatusInternalServerError, "storage unavailable")
		return
	}

	imageURL := s.opts.PublicURL + "/uploads/" + owner + "/" + name
	if err := s.engine.RecordUpload(owner, page, imageURL); err != nil {
		s.logger.Error("record upload", zap.Error(err))
		abort(c, http.StatusInternalServerError, "record failed")
		return
	}
	c.JSON(http.StatusCreated, wire.CheckpointStatus{Uploaded: true, ImageURL: imageURL})
}

func (s *Server) checkpointParam(c *gin.Context) (int, bool) {
	page, err := strconv.Atoi(c.Param("id"))
	if err != nil || !s.isCheckpoint(page) {
		abort(c, http.StatusNotFound, "unknown checkpoint")
		return 0, false
	}
	return page, true
}

// resolveOwner returns whose progress is addressed. Learners may only
// address themselves; admins must name an existing learner.
func (s *Server) resolveOwner(c *gin.Context) (string, bool) {
	u := currentUser(c)
	owner := c.Query("owner")
	if u.Role != store.RoleAdmin {
		if owner != "" && owner != u.ID {
			abort(c, http.StatusForbidden, "cannot access another learner's progress")
			return "", false
		}
		return u.ID, true
	}

	if owner == "" {
		abort(c, http.StatusBadRequest, "owner is required")
		return "", false
	}
	// Owner ids name upload directories.
	if strings.ContainsAny(owner, `/\`) || strings.Contains(owner, "..") {
		abort(c, http.StatusBadRequest, "invalid owner")
		return "", false
	}
	learner, err := s.db.GetUser(owner)
	if err != nil {
		s.logger.Error("get owner failed", zap.Error(err))
		abort(c, http.StatusInternalServerError, "lookup failed")
		return "", false
	}
	if learner == nil || learner.Role != store.RoleUser {
		abort(c, http.StatusNotFound, "unknown owner")
		return "", false
	}
	return owner, true
}
