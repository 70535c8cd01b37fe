// Package chat exposes the HTTP surface of the reasoning engine: the chat
// endpoint, session management and collection browsing.
package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"showrunner/internal/agent"
	"showrunner/internal/reasoning"
	"showrunner/internal/session"
	"showrunner/internal/store"
	"showrunner/internal/videodb"
	"showrunner/pkg/logging"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxMessageRunes = 10000

// SessionStore is the session persistence surface the handlers need.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*session.Session, error)
	ListSessions(ctx context.Context) ([]session.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	GetConversation(ctx context.Context, sessionID string) ([]session.BaseMessage, error)
}

// CollectionSource proxies collection browsing to the video database.
type CollectionSource interface {
	Collections(ctx context.Context) ([]videodb.Collection, error)
	Collection(ctx context.Context, collectionID string) (*videodb.Collection, error)
	Videos(ctx context.Context, collectionID string) ([]videodb.Video, error)
	Video(ctx context.Context, collectionID, videoID string) (*videodb.Video, error)
}

type Handler struct {
	Engine              *reasoning.Engine
	Registry            *agent.Registry
	Store               SessionStore
	VideoDB             CollectionSource
	Logger              logging.Logger
	DefaultCollectionID string

	// sessionLocks serializes concurrent chat requests to the same session.
	sessionLocks sync.Map
	// activeRuns maps session id to the in-flight run so it can be stopped.
	activeRuns sync.Map
}

func NewHandler(engine *reasoning.Engine, registry *agent.Registry, sessions SessionStore, vdb CollectionSource, logger logging.Logger, defaultCollectionID string) *Handler {
	return &Handler{
		Engine:              engine,
		Registry:            registry,
		Store:               sessions,
		VideoDB:             vdb,
		Logger:              logger,
		DefaultCollectionID: defaultCollectionID,
	}
}

func RegisterRoutes(router gin.IRoutes, handler *Handler) {
	router.POST("/chat", handler.HandleChat)
	router.GET("/agents", handler.HandleListAgents)
	router.GET("/sessions", handler.HandleListSessions)
	router.GET("/sessions/:id", handler.HandleGetSession)
	router.DELETE("/sessions/:id", handler.HandleDeleteSession)
	router.POST("/sessions/:id/stop", handler.HandleStopSession)
	router.GET("/collections", handler.HandleListCollections)
	router.GET("/collections/:id", handler.HandleGetCollection)
	router.GET("/collections/:id/videos", handler.HandleListVideos)
	router.GET("/collections/:id/videos/:videoId", handler.HandleGetVideo)
}

type ChatRequest struct {
	SessionID    string   `json:"session_id,omitempty"`
	ConvID       string   `json:"conv_id,omitempty"`
	CollectionID string   `json:"collection_id,omitempty"`
	VideoID      string   `json:"video_id,omitempty"`
	Message      string   `json:"message"`
	Agents       []string `json:"agents,omitempty"`
}

func (h *Handler) HandleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if len([]rune(req.Message)) > maxMessageRunes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message too long"})
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	collectionID := strings.TrimSpace(req.CollectionID)
	if collectionID == "" {
		collectionID = h.DefaultCollectionID
	}
	convID := strings.TrimSpace(req.ConvID)
	if convID == "" {
		convID = uuid.New().String()
	}

	lockVal, _ := h.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	sessMu, ok := lockVal.(*sync.Mutex)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal lock error"})
		return
	}
	sessMu.Lock()
	defer func() {
		sessMu.Unlock()
		if sessMu.TryLock() {
			h.sessionLocks.Delete(sessionID)
			sessMu.Unlock()
		}
	}()

	run := h.Engine.NewRun(reasoning.Request{
		SessionID:    sessionID,
		ConvID:       convID,
		CollectionID: collectionID,
		VideoID:      strings.TrimSpace(req.VideoID),
		Message:      req.Message,
		Agents:       req.Agents,
	})
	h.activeRuns.Store(sessionID, run)
	defer h.activeRuns.Delete(sessionID)

	out, err := run.Execute(c.Request.Context())
	switch {
	case errors.Is(err, reasoning.ErrRunStopped):
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "conv_id": convID, "message": out, "aborted": true})
	case errors.Is(err, reasoning.ErrCompletionFailed):
		h.Logger.WithError(err).Error("Chat run aborted on completion failure")
		c.JSON(http.StatusBadGateway, gin.H{"session_id": sessionID, "conv_id": convID, "message": out, "error": "model request failed"})
	case err != nil:
		h.Logger.WithError(err).Error("Chat run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"session_id": sessionID, "conv_id": convID, "message": out, "error": "chat run failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "conv_id": convID, "message": out})
	}
}

// HandleStopSession signals the in-flight run of a session to abort.
func (h *Handler) HandleStopSession(c *gin.Context) {
	val, ok := h.activeRuns.Load(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active run for session"})
		return
	}
	run, ok := val.(*reasoning.Run)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal run registry error"})
		return
	}
	run.Stop()
	c.JSON(http.StatusAccepted, gin.H{"status": "stopping"})
}

func (h *Handler) HandleListAgents(c *gin.Context) {
	agents := h.Registry.List()
	out := make([]gin.H, 0, len(agents))
	for _, a := range agents {
		out = append(out, gin.H{
			"name":        a.Name(),
			"description": a.Description(),
			"parameters":  a.Parameters(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"agents": out})
}

func (h *Handler) HandleListSessions(c *gin.Context) {
	sessions, err := h.Store.ListSessions(c.Request.Context())
	if err != nil {
		h.Logger.WithError(err).Error("Failed to list sessions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) HandleGetSession(c *gin.Context) {
	sessionID := c.Param("id")
	sess, err := h.Store.GetSession(c.Request.Context(), sessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		h.Logger.WithError(err).Error("Failed to load session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}
	conversation, err := h.Store.GetConversation(c.Request.Context(), sessionID)
	if err != nil {
		h.Logger.WithError(err).Error("Failed to load conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "conversation": conversation})
}

func (h *Handler) HandleDeleteSession(c *gin.Context) {
	err := h.Store.DeleteSession(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		h.Logger.WithError(err).Error("Failed to delete session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) HandleListCollections(c *gin.Context) {
	collections, err := h.VideoDB.Collections(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to list collections"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": collections})
}

func (h *Handler) HandleGetCollection(c *gin.Context) {
	collection, err := h.VideoDB.Collection(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load collection"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"collection": collection})
}

func (h *Handler) HandleListVideos(c *gin.Context) {
	videos, err := h.VideoDB.Videos(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to list videos"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

func (h *Handler) HandleGetVideo(c *gin.Context) {
	video, err := h.VideoDB.Video(c.Request.Context(), c.Param("id"), c.Param("videoId"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load video"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"video": video})
}
