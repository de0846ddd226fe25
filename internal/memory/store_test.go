package memory

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"deskrelay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "history.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndQuery_Order(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Append(ctx, domain.ChannelChatwoot, "42", domain.SenderUser, "Hello")
	require.NoError(t, err)
	second, err := s.Append(ctx, domain.ChannelChatwoot, "42", domain.SenderBot, "Hi there")
	require.NoError(t, err)

	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)
	assert.False(t, second.CreatedAt.Before(first.CreatedAt))

	msgs, err := s.Query(ctx, domain.ChannelChatwoot, "42")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.SenderUser, msgs[0].Sender)
	assert.Equal(t, "Hello", msgs[0].Text)
	assert.Equal(t, domain.SenderBot, msgs[1].Sender)
	assert.Equal(t, "Hi there", msgs[1].Text)
	assert.Equal(t, domain.ChannelChatwoot, msgs[1].Channel)
	assert.Equal(t, "42", msgs[1].ConversationID)
}

func TestQuery_EmptyIsNotError(t *testing.T) {
	s := newTestStore(t)
	msgs, err := s.Query(context.Background(), domain.ChannelTelegram, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestQuery_ScopedByChannelAndConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, domain.ChannelTelegram, "100", domain.SenderUser, "telegram")
	require.NoError(t, err)
	_, err = s.Append(ctx, domain.ChannelTwilio, "100", domain.SenderUser, "twilio")
	require.NoError(t, err)
	_, err = s.Append(ctx, domain.ChannelTelegram, "200", domain.SenderUser, "other chat")
	require.NoError(t, err)

	msgs, err := s.Query(ctx, domain.ChannelTelegram, "100")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "telegram", msgs[0].Text)
}

func TestAppend_ClockStepsBackwards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	first, err := s.Append(ctx, domain.ChannelTwilio, "whatsapp:+1555", domain.SenderUser, "one")
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(-time.Hour) }
	second, err := s.Append(ctx, domain.ChannelTwilio, "whatsapp:+1555", domain.SenderBot, "two")
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	msgs, err := s.Query(ctx, domain.ChannelTwilio, "whatsapp:+1555")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Text)
	assert.Equal(t, "two", msgs[1].Text)

	// Other conversations are unaffected by the clamp.
	other, err := s.Append(ctx, domain.ChannelTwilio, "whatsapp:+1666", domain.SenderUser, "x")
	require.NoError(t, err)
	assert.Equal(t, base.Add(-time.Hour), other.CreatedAt)
}

func TestAppend_RejectsUnknownValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, domain.Channel("sms"), "1", domain.SenderUser, "x")
	assert.Error(t, err)
	_, err = s.Append(ctx, domain.ChannelTelegram, "1", domain.Sender("agent"), "x")
	assert.Error(t, err)
	_, err = s.Append(ctx, domain.ChannelTelegram, "", domain.SenderUser, "x")
	assert.Error(t, err)
}

func TestAppend_ClosedStorePropagatesError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.Append(context.Background(), domain.ChannelChatwoot, "1", domain.SenderUser, "x")
	assert.Error(t, err)
	_, err = s.Query(context.Background(), domain.ChannelChatwoot, "1")
	assert.Error(t, err)
}

func TestAppend_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Append(ctx, domain.ChannelTelegram, "race", domain.SenderUser, "msg")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := s.Query(ctx, domain.ChannelTelegram, "race")
	require.NoError(t, err)
	assert.Len(t, msgs, 20)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 20, n)
	assert.NoError(t, s.Ping(ctx))
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:", testLogger())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Append(context.Background(), domain.ChannelChatwoot, "7", domain.SenderUser, "hi")
	assert.NoError(t, err)
}
