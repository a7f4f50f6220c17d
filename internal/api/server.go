// Package api exposes the conversation core over HTTP. Handlers are thin:
// decode, call the service, encode. All turn logic lives in internal/chat.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"titan/internal/chat"
	"titan/internal/safety"
	"titan/internal/store"
	"titan/internal/types"
)

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	service *chat.Service
	store   types.MessageStore
	logger  *zap.Logger
}

// NewServer builds the router around the chat service.
func NewServer(service *chat.Service, st types.MessageStore, logger *zap.Logger) *Server {
	return &Server{service: service, store: st, logger: logger}
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/messages", s.handleSend)
		r.Get("/conversations", s.handleListConversations)
		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetConversation)
			r.Patch("/", s.handleUpdateConversation)
			r.Delete("/", s.handleDeleteConversation)
			r.Post("/messages", s.handleSend)
			r.Get("/messages", s.handleListMessages)
			r.Get("/events", s.handleEvents)
			r.Post("/abort", s.handleAbort)
		})
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type sendPayload struct {
	UserID     string   `json:"user_id"`
	Text       string   `json:"text"`
	Images     []string `json:"images,omitempty"`
	Privileged bool     `json:"privileged,omitempty"`
}

type sendResponse struct {
	ConversationID string               `json:"conversation_id"`
	Text           string               `json:"text"`
	Actions        []types.ActionRecord `json:"actions,omitempty"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload sendPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.UserID == "" || payload.Text == "" {
		writeError(w, http.StatusBadRequest, "user_id and text are required")
		return
	}

	result, err := s.service.Send(r.Context(), chat.SendRequest{
		ConversationID: chi.URLParam(r, "id"),
		UserID:         payload.UserID,
		Text:           payload.Text,
		Images:         payload.Images,
		Privileged:     payload.Privileged,
	})
	if err != nil {
		s.writeSendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sendResponse{
		ConversationID: result.ConversationID,
		Text:           result.Text,
		Actions:        result.Actions,
	})
}

// writeSendError maps gate rejections to specific statuses; everything else
// is a generic 500 without internal detail.
func (s *Server) writeSendError(w http.ResponseWriter, err error) {
	var rateErr *safety.RateLimitError
	if errors.As(err, &rateErr) {
		w.Header().Set("Retry-After", rateErr.RetryAfter.Round(time.Second).String())
		writeError(w, http.StatusTooManyRequests, rateErr.Error())
		return
	}
	var suspErr *safety.SuspensionError
	if errors.As(err, &suspErr) {
		writeError(w, http.StatusForbidden, suspErr.Error())
		return
	}
	if errors.Is(err, safety.ErrInjectionBlocked) {
		writeError(w, http.StatusBadRequest, "message blocked by safety checks")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	s.logger.Error("send failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "something went wrong")
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	convs, err := s.store.ListConversations(r.Context(), userID)
	if err != nil {
		s.logger.Error("list conversations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type updateConversationPayload struct {
	Title    *string `json:"title,omitempty"`
	Pinned   *bool   `json:"pinned,omitempty"`
	Archived *bool   `json:"archived,omitempty"`
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	var payload updateConversationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.Title == nil && payload.Pinned == nil && payload.Archived == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	id := chi.URLParam(r, "id")
	var err error
	if payload.Title != nil {
		err = s.store.UpdateTitle(r.Context(), id, *payload.Title)
	}
	if err == nil && payload.Pinned != nil {
		err = s.store.SetPinned(r.Context(), id, *payload.Pinned)
	}
	if err == nil && payload.Archived != nil {
		err = s.store.SetArchived(r.Context(), id, *payload.Archived)
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteConversation(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.RecentMessages(r.Context(), chi.URLParam(r, "id"), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	// Store order is newest-first; the UI wants chronological.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	s.service.Abort(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
