package notifications

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	notificationsvc "kaiden-app/internal/service/notifications"
)

// SocketServer upgrades a request into a push socket for userID and blocks until it closes.
type SocketServer interface {
	Serve(w http.ResponseWriter, r *http.Request, userID uint) error
}

type Handler struct {
	svc *notificationsvc.Service
	hub SocketServer
	log *zap.Logger
}

func NewHandler(svc *notificationsvc.Service, hub SocketServer, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, hub: hub, log: log}
}

// List GET /notifications?limit=
func (h *Handler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	list, err := h.svc.List(c.Request.Context(), c.GetUint("user_id"), limit)
	if err != nil {
		h.log.Error("list notifications failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load notifications"})
		return
	}
	c.JSON(http.StatusOK, list)
}

// UnreadCount GET /notifications/unread-count
func (h *Handler) UnreadCount(c *gin.Context) {
	n, err := h.svc.UnreadCount(c.Request.Context(), c.GetUint("user_id"))
	if err != nil {
		h.log.Error("unread count failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// MarkAsRead POST /notifications/:id/read
func (h *Handler) MarkAsRead(c *gin.Context) {
	n, err := h.svc.MarkAsRead(c.Request.Context(), c.GetUint("user_id"), c.Param("id"))
	if errors.Is(err, notificationsvc.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}
	if err != nil {
		h.log.Error("mark read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
		return
	}
	c.JSON(http.StatusOK, n)
}

// MarkAllAsRead POST /notifications/read-all
func (h *Handler) MarkAllAsRead(c *gin.Context) {
	n, err := h.svc.MarkAllAsRead(c.Request.Context(), c.GetUint("user_id"))
	if err != nil {
		h.log.Error("mark all read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// Socket GET /notifications/ws
func (h *Handler) Socket(c *gin.Context) {
	userID := c.GetUint("user_id")
	if err := h.hub.Serve(c.Writer, c.Request, userID); err != nil {
		// the upgrader has already written the HTTP error
		h.log.Debug("websocket upgrade failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}
