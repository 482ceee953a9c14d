package core

import (
	"fmt"

	"lexhub.io/policy-agent/internal/store"
)

const (
	DefaultFreeConversationLimit = 1
	DefaultFreeMessageLimit      = 10
)

// QuotaStore provides the authoritative counts and the counter writeback.
type QuotaStore interface {
	CountConversationsByUser(userID int64) (int, error)
	CountAIMessagesByUser(userID int64) (int, error)
	UpdateUserCounters(userID int64, conversationCount, messageCount int) error
}

// QuotaTracker gates conversation creation and question-answering by the
// user's membership tier. Checks read the persisted counters; Recompute
// rewrites them from COUNT queries after every mutating operation rather
// than incrementing in place, so counters cannot drift. The check-then-act
// window is not transactionally isolated: two concurrent requests from the
// same user can both pass a check before either recompute lands, allowing
// a transient over-limit state. Accepted.
type QuotaTracker struct {
	store             QuotaStore
	conversationLimit int
	messageLimit      int
}

func NewQuotaTracker(store QuotaStore, conversationLimit, messageLimit int) *QuotaTracker {
	if conversationLimit <= 0 {
		conversationLimit = DefaultFreeConversationLimit
	}
	if messageLimit <= 0 {
		messageLimit = DefaultFreeMessageLimit
	}
	return &QuotaTracker{
		store:             store,
		conversationLimit: conversationLimit,
		messageLimit:      messageLimit,
	}
}

// CheckConversationCreate reports whether the user may start another
// conversation. Premium users are never denied here.
func (q *QuotaTracker) CheckConversationCreate(user *store.User) error {
	if user.MembershipStatus == store.MembershipPremium {
		return nil
	}
	if user.ConversationCount >= q.conversationLimit {
		return fmt.Errorf("%w: conversation limit of %d reached", ErrQuotaExceeded, q.conversationLimit)
	}
	return nil
}

// CheckQuestion reports whether the user may ask another question, gated
// by their cumulative AI-message count.
func (q *QuotaTracker) CheckQuestion(user *store.User) error {
	if user.MembershipStatus == store.MembershipPremium {
		return nil
	}
	if user.MessageCount >= q.messageLimit {
		return fmt.Errorf("%w: message limit of %d reached", ErrQuotaExceeded, q.messageLimit)
	}
	return nil
}

// Recompute refreshes both counters from the authoritative tables and
// writes them back to the user's quota record.
func (q *QuotaTracker) Recompute(userID int64) error {
	conversations, err := q.store.CountConversationsByUser(userID)
	if err != nil {
		return fmt.Errorf("failed to recompute conversation count: %w", err)
	}
	messages, err := q.store.CountAIMessagesByUser(userID)
	if err != nil {
		return fmt.Errorf("failed to recompute message count: %w", err)
	}
	if err := q.store.UpdateUserCounters(userID, conversations, messages); err != nil {
		return fmt.Errorf("failed to write back quota counters: %w", err)
	}
	return nil
}
