package api

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/workbook/internal/store"
	intsync "github.com/matheus3301/workbook/internal/sync"
	"github.com/matheus3301/workbook/internal/wire"
	"go.uber.org/zap"
)

// maxMessageLength is counted in characters.
const maxMessageLength = 4000

// learnerConversation answers GET /conversation (get-or-create).
func (s *Server) learnerConversation(c *gin.Context) {
	u := currentUser(c)
	if u.Role != store.RoleUser {
		abort(c, http.StatusForbidden, "learners only")
		return
	}
	conv, err := s.db.GetOrCreateConversation(u.ID)
	if err != nil {
		s.logger.Error("get or create conversation", zap.Error(err))
		abort(c, http.StatusInternalServerError, "lookup failed")
		return
	}
	c.JSON(http.StatusOK, intsync.WireConversation(*conv))
}

// listConversations answers GET /conversations for the admin inbox.
func (s *Server) listConversations(c *gin.Context) {
	convs, err := s.db.ListConversations(200)
	if err != nil {
		s.logger.Error("list conversations", zap.Error(err))
		abort(c, http.StatusInternalServerError, "lookup failed")
		return
	}
	out := make([]wire.Conversation, 0, len(convs))
	for _, conv := range convs {
		out = append(out, intsync.WireConversation(conv))
	}
	c.JSON(http.StatusOK, out)
}

// markRead answers POST /conversations/:id/read.
func (s *Server) markRead(c *gin.Context) {
	if err := s.engine.MarkRead(c.Param("id")); err != nil {
		s.logger.Error("mark read", zap.Error(err))
		abort(c, http.StatusInternalServerError, "update failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// listMessages answers GET /messages?conversationId=.
func (s *Server) listMessages(c *gin.Context) {
	conv, ok := s.authorizeConversation(c, c.Query("conversationId"))
	if !ok {
		return
	}
	msgs, err := s.db.ListMessages(conv.ID, 500)
	if err != nil {
		s.logger.Error("list messages", zap.Error(err))
		abort(c, http.StatusInternalServerError, "lookup failed")
		return
	}
	out := wire.MessageList{Messages: make([]wire.Message, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, intsync.WireMessage(m))
	}
	c.JSON(http.StatusOK, out)
}

// postMessage answers POST /messages.
func (s *Server) postMessage(c *gin.Context) {
	var req wire.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid body")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		abort(c, http.StatusBadRequest, "text is required")
		return
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		abort(c, http.StatusRequestEntityTooLarge, "message too long")
		return
	}
	conv, ok := s.authorizeConversation(c, req.ConversationID)
	if !ok {
		return
	}

	sender := wire.SenderUser
	if currentUser(c).Role == store.RoleAdmin {
		sender = wire.SenderAdmin
	}
	msg, err := s.engine.IngestMessage(conv.ID, sender, text)
	if errors.Is(err, intsync.ErrUnknownConversation) {
		abort(c, http.StatusNotFound, "unknown conversation")
		return
	}
	if err != nil {
		s.logger.Error("ingest message", zap.Error(err))
		abort(c, http.StatusInternalServerError, "send failed")
		return
	}
	c.JSON(http.StatusCreated, intsync.WireMessage(*msg))
}

// authorizeConversation loads a conversation the current user may access.
func (s *Server) authorizeConversation(c *gin.Context, id string) (*store.Conversation, bool) {
	if id == "" {
		abort(c, http.StatusBadRequest, "conversationId is required")
		return nil, false
	}
	conv, err := s.db.GetConversation(id)
	if err != nil {
		s.logger.Error("get conversation", zap.Error(err))
		abort(c, http.StatusInternalServerError, "lookup failed")
		return nil, false
	}
	u := currentUser(c)
	if conv == nil || (u.Role != store.RoleAdmin && conv.UserID != u.ID) {
		abort(c, http.StatusNotFound, "unknown conversation")
		return nil, false
	}
	return conv, true
}
