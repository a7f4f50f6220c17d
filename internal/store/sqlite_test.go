package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titan/internal/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "u1", "First chat")
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "First chat", got.Title)
	assert.Equal(t, 0, got.MessageCount)

	require.NoError(t, s.UpdateTitle(ctx, conv.ID, "Renamed"))
	require.NoError(t, s.SetPinned(ctx, conv.ID, true))

	got, err = s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.True(t, got.Pinned)

	require.NoError(t, s.DeleteConversation(ctx, conv.ID))
	_, err = s.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendMessageBumpsCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "u1", "t")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		err := s.AppendMessage(ctx, &types.Message{
			ConversationID: conv.ID,
			UserID:         "u1",
			Role:           types.RoleUser,
			Content:        "hello",
		})
		require.NoError(t, err)
	}

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MessageCount)
	assert.False(t, got.LastMessageAt.IsZero())
}

func TestRecentMessagesNewestFirstAndFiltered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "u1", "t")
	require.NoError(t, err)

	contents := []string{"one", "two", "three"}
	for _, c := range contents {
		require.NoError(t, s.AppendMessage(ctx, &types.Message{
			ConversationID: conv.ID, UserID: "u1", Role: types.RoleUser, Content: c,
		}))
	}
	// Ephemeral roles never surface in reads.
	require.NoError(t, s.AppendMessage(ctx, &types.Message{
		ConversationID: conv.ID, UserID: "u1", Role: types.RoleSystem, Content: "hidden",
	}))

	msgs, err := s.RecentMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "three", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)
}

func TestAppendMessageRoundTripsStructuredFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "u1", "t")
	require.NoError(t, err)

	msg := &types.Message{
		ConversationID: conv.ID,
		UserID:         "u1",
		Role:           types.RoleAssistant,
		Content:        "done",
		ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: "read_file", Args: map[string]any{"path": "a.go"}},
		},
		Actions: []types.ActionRecord{
			{Tool: "read_file", Success: true, Summary: "Read a.go"},
		},
	}
	require.NoError(t, s.AppendMessage(ctx, msg))

	msgs, err := s.RecentMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].ToolCalls, 1)
	assert.Equal(t, "read_file", msgs[0].ToolCalls[0].Name)
	require.Len(t, msgs[0].Actions, 1)
	assert.True(t, msgs[0].Actions[0].Success)
}

func TestDeleteConversationCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "u1", "t")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, &types.Message{
		ConversationID: conv.ID, UserID: "u1", Role: types.RoleUser, Content: "x",
	}))

	require.NoError(t, s.DeleteConversation(ctx, conv.ID))

	msgs, err := s.RecentMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateCredential(ctx, "u1", "github", "tok-123")
	require.NoError(t, err)

	// Duplicate names per user are rejected.
	_, err = s.CreateCredential(ctx, "u1", "github", "tok-456")
	assert.Error(t, err)

	// Same name for another user is fine.
	_, err = s.CreateCredential(ctx, "u2", "github", "tok-789")
	require.NoError(t, err)

	creds, err := s.ListCredentials(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "github", creds[0].Name)
	assert.Empty(t, creds[0].Value, "list must not expose values")

	got, err := s.GetCredential(ctx, "u1", "github")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", got.Value)

	require.NoError(t, s.DeleteCredential(ctx, "u1", "github"))
	_, err = s.GetCredential(ctx, "u1", "github")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteCredential(ctx, "u1", "github"), ErrNotFound)
}

func TestListConversationsPinnedFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateConversation(ctx, "u1", "a")
	require.NoError(t, err)
	b, err := s.CreateConversation(ctx, "u1", "b")
	require.NoError(t, err)
	require.NoError(t, s.SetPinned(ctx, a.ID, true))

	convs, err := s.ListConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, a.ID, convs[0].ID)
	assert.Equal(t, b.ID, convs[1].ID)
}
