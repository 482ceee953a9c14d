package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"lexhub.io/policy-agent/internal/auth"
	"lexhub.io/policy-agent/internal/core"
	"lexhub.io/policy-agent/internal/store"
)

type APIHandler struct {
	chatService   *core.ChatService
	ingestService *core.IngestService
}

func NewAPIHandler(cs *core.ChatService, is *core.IngestService) *APIHandler {
	return &APIHandler{chatService: cs, ingestService: is}
}

// writeServiceError maps the core error taxonomy onto HTTP statuses. Quota
// denials are client-facing upgrade prompts, not server faults.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, core.ErrMalformedID), errors.Is(err, core.ErrEmptyInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, core.ErrQuotaExceeded):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   err.Error(),
			"upgrade": true,
		})
	case errors.Is(err, core.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, core.ErrModelUnavailable):
		http.Error(w, "Model backend unavailable, please retry later", http.StatusServiceUnavailable)
	default:
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		externalUserID, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := h.chatService.GetUserByExternalID(externalUserID)
		if err != nil {
			log.Printf("Error in JWTAuthMiddleware for user %s: %v", externalUserID, err)
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}

		if user == nil {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", user.ID)
		ctx = context.WithValue(ctx, "externalUserID", user.ExternalUserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type SignupRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.Password == "" {
		http.Error(w, "User ID and password are required", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password for user %s: %v", req.UserID, err)
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	user, err := h.chatService.CreateUser(req.UserID, hashedPassword)
	if err != nil {
		log.Printf("Error creating user %s: %v", req.UserID, err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.Password == "" {
		http.Error(w, "User ID and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.chatService.GetUserByExternalID(req.UserID)
	if err != nil {
		log.Printf("Error getting user %s: %v", req.UserID, err)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(req.UserID)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", req.UserID, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	user, err := h.chatService.GetUser(userID)
	if err != nil {
		log.Printf("Error loading user %d: %v", userID, err)
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(user)
}

func (h *APIHandler) UpgradeHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	user, err := h.chatService.UpgradeUser(userID)
	if err != nil {
		log.Printf("Error upgrading user %d: %v", userID, err)
		writeServiceError(w, err, "Failed to upgrade membership")
		return
	}
	json.NewEncoder(w).Encode(user)
}

type CreateConversationRequest struct {
	FirstMessage *string `json:"first_message,omitempty"`
}

type CreateConversationResponse struct {
	*store.Conversation
	Messages []store.Message `json:"messages,omitempty"`
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	var req CreateConversationRequest
	if r.Body != http.NoBody {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	conversation, messages, err := h.chatService.CreateConversation(r.Context(), userID, req.FirstMessage)
	if err != nil {
		log.Printf("Error creating conversation for user %d: %v", userID, err)
		writeServiceError(w, err, "Failed to create conversation")
		return
	}

	resp := CreateConversationResponse{
		Conversation: conversation,
		Messages:     messages,
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	conversations, err := h.chatService.GetConversations(userID)
	if err != nil {
		log.Printf("Error listing conversations for user %d: %v", userID, err)
		http.Error(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(conversations)
}

type GetConversationResponse struct {
	*store.Conversation
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	conversationID := chi.URLParam(r, "conversationID")

	conversation, messages, err := h.chatService.GetConversationDetails(conversationID, userID)
	if err != nil {
		writeServiceError(w, err, "Failed to get conversation")
		return
	}

	resp := GetConversationResponse{
		Conversation: conversation,
		Messages:     messages,
	}
	json.NewEncoder(w).Encode(resp)
}

func (h *APIHandler) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	conversationID := chi.URLParam(r, "conversationID")

	if err := h.chatService.DeleteConversation(conversationID, userID); err != nil {
		writeServiceError(w, err, "Failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type IngestDocumentRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// IngestDocumentHandler accepts extracted document text; format-specific
// extraction (PDF, DOCX, images) happens client-side or in a separate
// service.
func (h *APIHandler) IngestDocumentHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	conversationID := chi.URLParam(r, "conversationID")

	var req IngestDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.ingestService.IngestDocument(r.Context(), conversationID, userID, req.Text, req.Source)
	if err != nil {
		log.Printf("Error ingesting document for conversation %s: %v", conversationID, err)
		writeServiceError(w, err, "Failed to ingest document")
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

type AskRequest struct {
	Question string `json:"question"`
	Context  string `json:"context,omitempty"` // Inline context overrides stored retrieval
}

func (h *APIHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	conversationID := chi.URLParam(r, "conversationID")

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "Question cannot be empty", http.StatusBadRequest)
		return
	}

	aiMessage, err := h.chatService.AskQuestion(r.Context(), conversationID, userID, req.Question, req.Context)
	if err != nil {
		log.Printf("Error answering question for user %d, conversation %s: %v", userID, conversationID, err)
		writeServiceError(w, err, "Failed to answer question")
		return
	}
	json.NewEncoder(w).Encode(aiMessage)
}

func (h *APIHandler) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	messageID := chi.URLParam(r, "messageID")

	if err := h.chatService.DeleteMessage(messageID, userID); err != nil {
		writeServiceError(w, err, "Failed to delete message")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type FeedbackRequest struct {
	Negative bool `json:"negative"`
}

func (h *APIHandler) MessageFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	messageID := chi.URLParam(r, "messageID")

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.chatService.SetMessageFeedback(messageID, userID, req.Negative); err != nil {
		writeServiceError(w, err, "Failed to set feedback")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
