package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedUser(t *testing.T, st *SQLiteStore) *User {
	t.Helper()
	user, err := st.CreateUser(uuid.NewString(), "hashed-password")
	require.NoError(t, err)
	return user
}

func seedConversation(t *testing.T, st *SQLiteStore, userID int64) *Conversation {
	t.Helper()
	conv, err := st.CreateConversation(userID, nil)
	require.NoError(t, err)
	return conv
}

func TestCreateUserDefaults(t *testing.T) {
	st := newTestStore(t)

	user := seedUser(t, st)
	require.Equal(t, MembershipFree, user.MembershipStatus)
	require.Equal(t, 0, user.ConversationCount)
	require.Equal(t, 0, user.MessageCount)

	found, err := st.GetUserByExternalID(user.ExternalUserID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, user.ID, found.ID)
}

func TestGetUserByExternalIDMissing(t *testing.T) {
	st := newTestStore(t)

	found, err := st.GetUserByExternalID("nobody")
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestSetMembershipStatus(t *testing.T) {
	st := newTestStore(t)
	user := seedUser(t, st)

	require.NoError(t, st.SetMembershipStatus(user.ID, MembershipPremium))

	refreshed, err := st.GetUserByID(user.ID)
	require.NoError(t, err)
	require.Equal(t, MembershipPremium, refreshed.MembershipStatus)

	require.Error(t, st.SetMembershipStatus(9999, MembershipPremium))
}

func TestConversationRoundtrip(t *testing.T) {
	st := newTestStore(t)
	user := seedUser(t, st)

	conv := seedConversation(t, st, user.ID)
	require.Nil(t, conv.Title)

	found, err := st.GetConversationByID(conv.ID, user.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, conv.ID, found.ID)

	// Ownership is part of the lookup key.
	other := seedUser(t, st)
	foreign, err := st.GetConversationByID(conv.ID, other.ID)
	require.NoError(t, err)
	require.Nil(t, foreign)
}

func TestUpdateConversationTitle(t *testing.T) {
	st := newTestStore(t)
	user := seedUser(t, st)
	conv := seedConversation(t, st, user.ID)

	require.NoError(t, st.UpdateConversationTitle(conv.ID, user.ID, "Liability Caps"))

	found, err := st.GetConversationByID(conv.ID, user.ID)
	require.NoError(t, err)
	require.NotNil(t, found.Title)
	require.Equal(t, "Liability Caps", *found.Title)

	require.Error(t, st.UpdateConversationTitle(conv.ID, user.ID+1, "stolen"))
}

func TestConversationSnapshotTracksCount(t *testing.T) {
	st := newTestStore(t)
	user := seedUser(t, st)

	first := seedConversation(t, st, user.ID)
	second := seedConversation(t, st, user.ID)
	require.Equal(t, 2, second.ConversationCountSnapshot)

	// The earlier conversation's snapshot is refreshed too.
	refreshed, err := st.GetConversationByID(first.ID, user.ID)
	require.NoError(t, err)
	require.Equal(t, 2, refreshed.ConversationCountSnapshot)

	require.NoError(t, st.DeleteConversation(second.ID, user.ID))
	refreshed, err = st.GetConversationByID(first.ID, user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, refreshed.ConversationCountSnapshot)
}

func TestDeleteConversationCascades(t *testing.T) {
	st := newTestStore(t)
	user := seedUser(t, st)
	conv := seedConversation(t, st, user.ID)

	require.NoError(t, st.CreateMessage(&Message{
		ConversationID: conv.ID,
		Sender:         SenderUser,
		Content:        "hello",
	}))
	require.NoError(t, st.CreateChunk(&Chunk{
		ConversationID: conv.ID,
		Content:        "clause text",
		Embedding:      []float32{0.1, 0.2},
	}))

	require.NoError(t, st.DeleteConversation(conv.ID, user.ID))

	found, err := st.GetConversationByID(conv.ID, user.ID)
	require.NoError(t, err)
	require.Nil(t, found)

	messages, err := st.GetMessagesByConversationID(conv.ID, 10, 0)
	require.NoError(t, err)
	require.Empty(t, messages)

	chunks, err := st.GetChunksByConversationID(conv.ID)
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestDeleteConversationWrongOwner(t *testing.T) {
	st := newTestStore(t)
	user := seedUser(t, st)
	conv := seedConversation(t, st, user.ID)

	require.Error(t, st.DeleteConversation(conv.ID, user.ID+1))

	found, err := st.GetConversationByID(conv.ID, user.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
}

func TestCreateMessageRejectsUnknownSender(t *testing.T) {
	st := newTestStore(t)
	user := seedUser(t, st)
	conv := seedConversation(t, st, user.ID)

	err := st.CreateMessage(&Message{
		ConversationID: conv.ID,
		Sender:         Sender("robot"),
		Content:        "beep",
	})
	require.Error(t, err)

	messages, err := st.GetMessagesByConversationID(conv.ID, 10, 0)
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestGetLastNMessagesChronological(t *testing.T) {
	st := newTestStore(t)
	user := seedUser(t, st)
	conv := seedConversation(t, st, user.ID)

	contents := []string{"first", "second", "third", "fourth"}
	for _, content := range contents {
		require.NoError(t, st.CreateMessage(&Message{
			ConversationID: conv.ID,
			Sender:         SenderUser,
			Content:        content,
		}))
		time.Sleep(2 * time.Millisecond) // Distinct created_at for ordering
	}

	messages, err := st.GetLastNMessagesByConversationID(conv.ID, 3)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	require.Equal(t, "second", messages[0].Content)
	require.Equal(t, "third", messages[1].Content)
	require.Equal(t, "fourth", messages[2].Content)
}

func TestCountAIMessagesByUserCountsOnlyAI(t *testing.T) {
	st := newTestStore(t)
	user := seedUser(t, st)
	conv := seedConversation(t, st, user.ID)

	for _, sender := range []Sender{SenderUser, SenderAI, SenderSystem, SenderAI} {
		require.NoError(t, st.CreateMessage(&Message{
			ConversationID: conv.ID,
			Sender:         sender,
			Content:        "m",
		}))
	}

	// Another user's ai traffic must not bleed into the count.
	other := seedUser(t, st)
	otherConv := seedConversation(t, st, other.ID)
	require.NoError(t, st.CreateMessage(&Message{
		ConversationID: otherConv.ID,
		Sender:         SenderAI,
		Content:        "m",
	}))

	count, err := st.CountAIMessagesByUser(user.ID)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestUpdateUserCounters(t *testing.T) {
	st := newTestStore(t)
	user := seedUser(t, st)

	require.NoError(t, st.UpdateUserCounters(user.ID, 3, 7))

	refreshed, err := st.GetUserByID(user.ID)
	require.NoError(t, err)
	require.Equal(t, 3, refreshed.ConversationCount)
	require.Equal(t, 7, refreshed.MessageCount)

	require.Error(t, st.UpdateUserCounters(9999, 1, 1))
}

func TestUpdateMessageFeedback(t *testing.T) {
	st := newTestStore(t)
	user := seedUser(t, st)
	conv := seedConversation(t, st, user.ID)

	msg := Message{ConversationID: conv.ID, Sender: SenderAI, Content: "answer"}
	require.NoError(t, st.CreateMessage(&msg))

	require.NoError(t, st.UpdateMessageFeedback(msg.ID, true))

	messages, err := st.GetMessagesByConversationID(conv.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.True(t, messages[0].NegativeFeedback)

	require.Error(t, st.UpdateMessageFeedback(uuid.NewString(), true))
}

func TestDeleteMessageScopedToOwner(t *testing.T) {
	st := newTestStore(t)
	user := seedUser(t, st)
	conv := seedConversation(t, st, user.ID)

	msg := Message{ConversationID: conv.ID, Sender: SenderAI, Content: "answer"}
	require.NoError(t, st.CreateMessage(&msg))

	other := seedUser(t, st)
	require.Error(t, st.DeleteMessage(msg.ID, other.ID))

	messages, err := st.GetMessagesByConversationID(conv.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	require.NoError(t, st.DeleteMessage(msg.ID, user.ID))

	messages, err = st.GetMessagesByConversationID(conv.ID, 10, 0)
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestChunkRoundtripPreservesEmbedding(t *testing.T) {
	st := newTestStore(t)
	user := seedUser(t, st)
	conv := seedConversation(t, st, user.ID)

	chunk := Chunk{
		ConversationID: conv.ID,
		Content:        "indemnification clause",
		Embedding:      []float32{0.25, -0.5, 1},
		Source:         "terms.pdf",
	}
	require.NoError(t, st.CreateChunk(&chunk))

	chunks, err := st.GetChunksByConversationID(conv.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, chunk.Content, chunks[0].Content)
	require.Equal(t, chunk.Source, chunks[0].Source)
	require.Equal(t, []float32{0.25, -0.5, 1}, chunks[0].Embedding)
}

func TestGetChunksMalformedEmbeddingIsSkippedNotFatal(t *testing.T) {
	st := newTestStore(t)
	user := seedUser(t, st)
	conv := seedConversation(t, st, user.ID)

	_, err := st.db.Exec(
		"INSERT INTO chunks (id, conversation_id, content, embedding) VALUES (?, ?, ?, ?)",
		uuid.NewString(), conv.ID, "legacy row", "{not json",
	)
	require.NoError(t, err)

	chunks, err := st.GetChunksByConversationID(conv.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Nil(t, chunks[0].Embedding)
	require.Equal(t, "legacy row", chunks[0].Content)
}
