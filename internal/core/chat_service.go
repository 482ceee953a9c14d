package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"lexhub.io/policy-agent/internal/store"
)

// HistoryWindow bounds how many prior messages feed the prompt.
const HistoryWindow = 5

// ChatStore is what conversation orchestration needs from persistence.
type ChatStore interface {
	CreateUser(externalUserID, passwordHash string) (*store.User, error)
	GetUserByExternalID(externalUserID string) (*store.User, error)
	GetUserByID(id int64) (*store.User, error)
	SetMembershipStatus(userID int64, status store.MembershipStatus) error

	CreateConversation(userID int64, title *string) (*store.Conversation, error)
	GetConversationByID(conversationID string, userID int64) (*store.Conversation, error)
	GetConversationsByUserID(userID int64) ([]store.Conversation, error)
	UpdateConversationTitle(conversationID string, userID int64, title string) error
	DeleteConversation(conversationID string, userID int64) error

	CreateMessage(msg *store.Message) error
	GetMessagesByConversationID(conversationID string, limit, offset int) ([]store.Message, error)
	GetLastNMessagesByConversationID(conversationID string, n int) ([]store.Message, error)
	UpdateMessageFeedback(messageID string, negativeFeedback bool) error
	DeleteMessage(messageID string, userID int64) error
}

// ChatService orchestrates conversations, quota gating, retrieval and
// generation.
type ChatService struct {
	store     ChatStore
	embedder  Embedder
	retriever *Retriever
	quota     *QuotaTracker
	llm       Generator
	topK      int
}

func NewChatService(st ChatStore, embedder Embedder, retriever *Retriever, quota *QuotaTracker, llm Generator, topK int) *ChatService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &ChatService{
		store:     st,
		embedder:  embedder,
		retriever: retriever,
		quota:     quota,
		llm:       llm,
		topK:      topK,
	}
}

// User plumbing for the auth handlers.

func (s *ChatService) CreateUser(externalUserID, passwordHash string) (*store.User, error) {
	return s.store.CreateUser(externalUserID, passwordHash)
}

func (s *ChatService) GetUserByExternalID(externalUserID string) (*store.User, error) {
	return s.store.GetUserByExternalID(externalUserID)
}

func (s *ChatService) GetUser(userID int64) (*store.User, error) {
	return s.store.GetUserByID(userID)
}

// UpgradeUser flips the user to the premium tier.
func (s *ChatService) UpgradeUser(userID int64) (*store.User, error) {
	if err := s.store.SetMembershipStatus(userID, store.MembershipPremium); err != nil {
		return nil, fmt.Errorf("%w: upgrading membership: %v", ErrStorageFailure, err)
	}
	return s.store.GetUserByID(userID)
}

// CreateConversation starts a conversation for the user, gated by the
// free-tier conversation quota. When a first question is supplied the full
// ask pipeline runs for it immediately.
func (s *ChatService) CreateConversation(ctx context.Context, userID int64, firstQuestion *string) (*store.Conversation, []store.Message, error) {
	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: loading user: %v", ErrStorageFailure, err)
	}
	if err := s.quota.CheckConversationCreate(user); err != nil {
		return nil, nil, err
	}

	conversation, err := s.store.CreateConversation(userID, nil) // Title is generated after the first exchange
	if err != nil {
		return nil, nil, fmt.Errorf("%w: creating conversation: %v", ErrStorageFailure, err)
	}

	if err := s.quota.Recompute(userID); err != nil {
		log.Printf("Failed to recompute quota for user %d after conversation create: %v", userID, err)
	}

	var messages []store.Message
	if firstQuestion != nil && strings.TrimSpace(*firstQuestion) != "" {
		if _, err := s.AskQuestion(ctx, conversation.ID, userID, *firstQuestion, ""); err != nil {
			// The conversation exists either way; surface the miss in logs
			// and return it without messages.
			log.Printf("First question for new conversation %s failed: %v", conversation.ID, err)
		} else {
			messages, err = s.store.GetMessagesByConversationID(conversation.ID, 10, 0)
			if err != nil {
				log.Printf("Failed to load messages for new conversation %s: %v", conversation.ID, err)
			}
		}
	}

	return conversation, messages, nil
}

func (s *ChatService) GetConversations(userID int64) ([]store.Conversation, error) {
	return s.store.GetConversationsByUserID(userID)
}

func (s *ChatService) GetConversationDetails(conversationID string, userID int64) (*store.Conversation, []store.Message, error) {
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, nil, fmt.Errorf("%w: conversation id %q", ErrMalformedID, conversationID)
	}

	conversation, err := s.store.GetConversationByID(conversationID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: loading conversation: %v", ErrStorageFailure, err)
	}
	if conversation == nil {
		return nil, nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}

	messages, err := s.store.GetMessagesByConversationID(conversationID, 100, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: loading messages: %v", ErrStorageFailure, err)
	}
	return conversation, messages, nil
}

// DeleteConversation removes the conversation with its messages and chunks,
// then recomputes the owner's quota counters.
func (s *ChatService) DeleteConversation(conversationID string, userID int64) error {
	if _, err := uuid.Parse(conversationID); err != nil {
		return fmt.Errorf("%w: conversation id %q", ErrMalformedID, conversationID)
	}

	conversation, err := s.store.GetConversationByID(conversationID, userID)
	if err != nil {
		return fmt.Errorf("%w: loading conversation: %v", ErrStorageFailure, err)
	}
	if conversation == nil {
		return fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}

	if err := s.store.DeleteConversation(conversationID, userID); err != nil {
		return fmt.Errorf("%w: deleting conversation: %v", ErrStorageFailure, err)
	}

	if err := s.quota.Recompute(userID); err != nil {
		log.Printf("Failed to recompute quota for user %d after conversation delete: %v", userID, err)
	}
	return nil
}

// AskQuestion answers a question inside a conversation. Inline context, if
// supplied by the caller, takes precedence and skips retrieval entirely;
// otherwise the question is embedded and the conversation's stored chunks
// are ranked for context. Nothing is persisted until generation succeeds,
// so an embedding or model failure leaves no partial state.
func (s *ChatService) AskQuestion(ctx context.Context, conversationID string, userID int64, question, inlineContext string) (*store.Message, error) {
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, fmt.Errorf("%w: conversation id %q", ErrMalformedID, conversationID)
	}

	conversation, err := s.store.GetConversationByID(conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: verifying conversation: %v", ErrStorageFailure, err)
	}
	if conversation == nil {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}

	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading user: %v", ErrStorageFailure, err)
	}
	if err := s.quota.CheckQuestion(user); err != nil {
		return nil, err
	}

	history, err := s.store.GetLastNMessagesByConversationID(conversationID, HistoryWindow)
	if err != nil {
		log.Printf("Error getting history for conversation %s: %v. Proceeding without history.", conversationID, err)
		history = nil
	}

	relevantContext := inlineContext
	if relevantContext == "" {
		queryEmbedding, err := s.embedder.EmbedText(ctx, question)
		if err != nil {
			return nil, fmt.Errorf("failed to embed question: %w", err)
		}
		relevantContext, err = s.retriever.RetrieveContext(conversationID, queryEmbedding, s.topK)
		if err != nil {
			return nil, err
		}
	}

	prompt := buildPrompt(question, relevantContext)
	answer, err := s.llm.Generate(ctx, historyToTurns(history), prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to get LLM completion: %w", err)
	}

	userMsg := store.Message{
		ConversationID: conversationID,
		Sender:         store.SenderUser,
		Content:        question,
	}
	if err := s.store.CreateMessage(&userMsg); err != nil {
		return nil, fmt.Errorf("%w: storing user message: %v", ErrStorageFailure, err)
	}

	aiMsg := store.Message{
		ConversationID: conversationID,
		Sender:         store.SenderAI,
		Content:        answer,
		Context:        relevantContext,
	}
	if err := s.store.CreateMessage(&aiMsg); err != nil {
		return nil, fmt.Errorf("%w: storing ai message: %v", ErrStorageFailure, err)
	}

	if err := s.quota.Recompute(userID); err != nil {
		log.Printf("Failed to recompute quota for user %d after message insert: %v", userID, err)
	}

	if conversation.Title == nil || *conversation.Title == "" {
		go s.generateAndSaveTitle(conversationID, userID, question)
	}

	return &aiMsg, nil
}

// AppendMessage stores an explicit message without running the ask
// pipeline, rejecting unknown sender kinds at the boundary.
func (s *ChatService) AppendMessage(conversationID string, userID int64, sender, content string) (*store.Message, error) {
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, fmt.Errorf("%w: conversation id %q", ErrMalformedID, conversationID)
	}

	parsedSender, err := store.ParseSender(sender)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedID, err)
	}

	conversation, err := s.store.GetConversationByID(conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: verifying conversation: %v", ErrStorageFailure, err)
	}
	if conversation == nil {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}

	msg := store.Message{
		ConversationID: conversationID,
		Sender:         parsedSender,
		Content:        content,
	}
	if err := s.store.CreateMessage(&msg); err != nil {
		return nil, fmt.Errorf("%w: storing message: %v", ErrStorageFailure, err)
	}

	if err := s.quota.Recompute(userID); err != nil {
		log.Printf("Failed to recompute quota for user %d after message append: %v", userID, err)
	}
	return &msg, nil
}

// DeleteMessage removes a single message, scoped to conversations the user
// owns, then recomputes quota counters since the ai-message count may
// shrink.
func (s *ChatService) DeleteMessage(messageID string, userID int64) error {
	if _, err := uuid.Parse(messageID); err != nil {
		return fmt.Errorf("%w: message id %q", ErrMalformedID, messageID)
	}

	if err := s.store.DeleteMessage(messageID, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	if err := s.quota.Recompute(userID); err != nil {
		log.Printf("Failed to recompute quota for user %d after message delete: %v", userID, err)
	}
	return nil
}

func (s *ChatService) SetMessageFeedback(messageID string, userID int64, negative bool) error {
	if _, err := uuid.Parse(messageID); err != nil {
		return fmt.Errorf("%w: message id %q", ErrMalformedID, messageID)
	}
	if err := s.store.UpdateMessageFeedback(messageID, negative); err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return nil
}

func (s *ChatService) generateAndSaveTitle(conversationID string, userID int64, basisContent string) {
	title, err := s.llm.GenerateTitle(context.Background(), basisContent)
	if err != nil {
		log.Printf("Failed to generate title for conversation %s: %v", conversationID, err)
		return
	}
	title = strings.Trim(title, "\"'\n\r\t .")

	if err := s.store.UpdateConversationTitle(conversationID, userID, title); err != nil {
		log.Printf("Failed to save generated title %q for conversation %s: %v", title, conversationID, err)
	}
}

func buildPrompt(question, relevantContext string) string {
	if relevantContext != "" {
		return fmt.Sprintf("Based on our previous conversation and the following potentially relevant excerpts from the uploaded documents:\n\n--- CONTEXT START ---\n%s\n--- CONTEXT END ---\n\nNow, please answer my question: %s", relevantContext, question)
	}
	return fmt.Sprintf("Based on our previous conversation (if any), and noting that no document excerpts were found for your current question, please answer: %s", question)
}

// historyToTurns maps stored messages onto the model's role vocabulary.
// System notes ride along as user turns since the system instruction slot
// is already taken by the policy-agent prompt.
func historyToTurns(messages []store.Message) []ChatTurn {
	turns := make([]ChatTurn, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		if msg.Sender == store.SenderAI {
			role = "model"
		}
		turns = append(turns, ChatTurn{Role: role, Content: msg.Content})
	}
	return turns
}
