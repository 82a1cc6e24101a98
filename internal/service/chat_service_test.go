package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/luvhive/luvhive-backend/internal/models"
	"github.com/luvhive/luvhive-backend/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage_UnlockOnThreshold(t *testing.T) {
	f := newFixture()
	f.createMatch("m1", 1, 2)
	ctx := context.Background()

	for i := 1; i <= 19; i++ {
		sender := int64(1 + i%2)
		result, err := f.chat.SendMessage(ctx, "m1", sender, fmt.Sprintf("hello %d", i))
		require.NoError(t, err)
		assert.Equal(t, i, result.MessageCount)
		assert.Nil(t, result.UnlockAchieved, "message %d", i)
		require.NotNil(t, result.NextUnlockAt)
		assert.Equal(t, 20, *result.NextUnlockAt)
	}

	result, err := f.chat.SendMessage(ctx, "m1", 1, "twentieth")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 20, result.MessageCount)
	require.NotNil(t, result.UnlockAchieved)
	assert.Equal(t, 1, result.UnlockAchieved.Level)
	assert.NotEmpty(t, result.UnlockAchieved.Unlocked)
	require.NotNil(t, result.NextUnlockAt)
	assert.Equal(t, 60, *result.NextUnlockAt)

	result, err = f.chat.SendMessage(ctx, "m1", 2, "twenty-first")
	require.NoError(t, err)
	assert.Nil(t, result.UnlockAchieved)

	match, err := f.matchRepo.FindByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 21, match.MessageCount)
	assert.Equal(t, 1, match.UnlockLevel)

	unlocks := f.notifier.ofType(models.EventUnlock)
	require.Len(t, unlocks, 2)
	assert.ElementsMatch(t, []int64{1, 2}, []int64{unlocks[0].RecipientID, unlocks[1].RecipientID})
}

func TestSendMessage_NotifiesPartner(t *testing.T) {
	f := newFixture()
	f.createMatch("m1", 1, 2)

	_, err := f.chat.SendMessage(context.Background(), "m1", 2, "  hi there  ")
	require.NoError(t, err)

	events := f.notifier.ofType(models.EventMessage)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].RecipientID)
	msg, ok := events[0].Payload.(*models.ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "hi there", msg.Text)
	assert.Equal(t, int64(2), msg.SenderID)
}

func TestSendMessage_Rejections(t *testing.T) {
	t.Run("expired match", func(t *testing.T) {
		f := newFixture()
		f.createMatch("m1", 1, 2)
		f.clock.Advance(DefaultMatchTTL + time.Minute)

		_, err := f.chat.SendMessage(context.Background(), "m1", 1, "too late")
		assert.ErrorIs(t, err, ErrMatchExpired)
		assertMessageCount(t, f, "m1", 0)
	})

	t.Run("non participant", func(t *testing.T) {
		f := newFixture()
		f.createMatch("m1", 1, 2)

		_, err := f.chat.SendMessage(context.Background(), "m1", 3, "let me in")
		assert.ErrorIs(t, err, ErrNotAParticipant)
		assertMessageCount(t, f, "m1", 0)
		assert.Empty(t, f.notifier.ofType(models.EventMessage))
	})

	t.Run("unknown match", func(t *testing.T) {
		f := newFixture()
		_, err := f.chat.SendMessage(context.Background(), "missing", 1, "hello")
		assert.ErrorIs(t, err, ErrMatchNotFound)
	})

	t.Run("empty and oversized text", func(t *testing.T) {
		f := newFixture()
		f.createMatch("m1", 1, 2)

		_, err := f.chat.SendMessage(context.Background(), "m1", 1, "   ")
		assert.ErrorIs(t, err, ErrInvalidMessage)

		_, err = f.chat.SendMessage(context.Background(), "m1", 1, strings.Repeat("가", maxMessageRunes+1))
		assert.ErrorIs(t, err, ErrInvalidMessage)

		_, err = f.chat.SendMessage(context.Background(), "m1", 1, strings.Repeat("가", maxMessageRunes))
		assert.NoError(t, err)
	})

	t.Run("rate limited", func(t *testing.T) {
		f := newFixture()
		f.createMatch("m1", 1, 2)
		chat := NewChatService(f.matchRepo, ChatServiceOptions{
			Limiter: ratelimit.NewRateLimiter(2, 1),
			Clock:   f.clock.Now,
		})

		for i := 0; i < 2; i++ {
			_, err := chat.SendMessage(context.Background(), "m1", 1, "spam")
			require.NoError(t, err)
		}
		_, err := chat.SendMessage(context.Background(), "m1", 1, "spam")
		assert.ErrorIs(t, err, ErrRateLimited)

		// 상대방은 별도 버킷
		_, err = chat.SendMessage(context.Background(), "m1", 2, "reply")
		assert.NoError(t, err)
		assertMessageCount(t, f, "m1", 3)
	})
}

func TestSendMessage_ConcurrentSendsUnlockOnce(t *testing.T) {
	f := newFixture()
	f.createMatch("m1", 1, 2)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		_, err := f.chat.SendMessage(ctx, "m1", 1, "warm up")
		require.NoError(t, err)
	}

	results := make(chan *models.SendResult, 10)
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		sender := int64(1 + i%2)
		go func() {
			r, err := f.chat.SendMessage(ctx, "m1", sender, "race")
			errs <- err
			results <- r
		}()
	}

	unlocked := 0
	seenCounts := make(map[int]bool)
	for i := 0; i < 10; i++ {
		require.NoError(t, <-errs)
		r := <-results
		seenCounts[r.MessageCount] = true
		if r.UnlockAchieved != nil {
			unlocked++
			assert.Equal(t, 20, r.MessageCount)
		}
	}
	assert.Equal(t, 1, unlocked)
	assert.Len(t, seenCounts, 10)
	assertMessageCount(t, f, "m1", 25)
}

func TestRelayTyping(t *testing.T) {
	f := newFixture()
	f.createMatch("m1", 1, 2)
	ctx := context.Background()

	require.NoError(t, f.chat.RelayTyping(ctx, "m1", 1, true))
	typing := f.notifier.ofType(models.EventTyping)
	require.Len(t, typing, 1)
	assert.Equal(t, int64(2), typing[0].RecipientID)
	assert.True(t, typing[0].BestEffort)

	assert.ErrorIs(t, f.chat.RelayTyping(ctx, "m1", 9, true), ErrNotAParticipant)

	f.clock.Advance(DefaultMatchTTL + time.Second)
	require.NoError(t, f.chat.RelayTyping(ctx, "m1", 1, false))
	assert.Len(t, f.notifier.ofType(models.EventTyping), 1)
	assertMessageCount(t, f, "m1", 0)
}

func TestGetOnlineStatus(t *testing.T) {
	f := newFixture()
	f.createMatch("m1", 1, 2)
	chat := NewChatService(f.matchRepo, ChatServiceOptions{
		Presence: staticPresence{2: true},
		Clock:    f.clock.Now,
	})
	ctx := context.Background()

	online, err := chat.GetOnlineStatus(ctx, "m1", 1)
	require.NoError(t, err)
	assert.True(t, online)

	online, err = chat.GetOnlineStatus(ctx, "m1", 2)
	require.NoError(t, err)
	assert.False(t, online)

	_, err = chat.GetOnlineStatus(ctx, "m1", 3)
	assert.ErrorIs(t, err, ErrNotAParticipant)

	// presence 없이 구성되면 항상 offline
	online, err = f.chat.GetOnlineStatus(ctx, "m1", 1)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestListMessages(t *testing.T) {
	f := newFixture()
	f.createMatch("m1", 1, 2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.chat.SendMessage(ctx, "m1", 1, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	messages, err := f.chat.ListMessages(ctx, "m1", 2, 3, nil)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "msg 4", messages[0].Text)
	assert.Equal(t, "msg 2", messages[2].Text)

	before := models.MessageCursor{SentAt: messages[2].SentAt, ID: messages[2].ID}
	older, err := f.chat.ListMessages(ctx, "m1", 2, 0, &before)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, "msg 1", older[0].Text)

	_, err = f.chat.ListMessages(ctx, "m1", 7, 10, nil)
	assert.ErrorIs(t, err, ErrNotAParticipant)

	f.clock.Advance(DefaultMatchTTL)
	history, err := f.chat.ListMessages(ctx, "m1", 1, 10, nil)
	require.NoError(t, err)
	assert.Len(t, history, 5)
}

func TestListMessages_SameTimestampAcrossPages(t *testing.T) {
	f := newFixture()
	f.createMatch("m1", 1, 2)
	ctx := context.Background()

	// 시계를 움직이지 않으므로 모든 메시지의 sent_at이 같다
	for i := 0; i < 5; i++ {
		_, err := f.chat.SendMessage(ctx, "m1", 1+int64(i%2), fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	seen := make(map[string]bool)
	var cursor *models.MessageCursor
	for page := 0; page < 5; page++ {
		messages, err := f.chat.ListMessages(ctx, "m1", 1, 2, cursor)
		require.NoError(t, err)
		if len(messages) == 0 {
			break
		}
		for _, m := range messages {
			assert.False(t, seen[m.ID], "message %s returned twice", m.ID)
			seen[m.ID] = true
		}
		last := messages[len(messages)-1]
		cursor = &models.MessageCursor{SentAt: last.SentAt, ID: last.ID}
	}
	assert.Len(t, seen, 5)
}

func TestAuthorize(t *testing.T) {
	f := newFixture()
	f.createMatch("m1", 1, 2)
	ctx := context.Background()

	match, err := f.chat.Authorize(ctx, "m1", 2)
	require.NoError(t, err)
	assert.Equal(t, "m1", match.ID)

	_, err = f.chat.Authorize(ctx, "m1", 3)
	assert.ErrorIs(t, err, ErrNotAParticipant)

	_, err = f.chat.Authorize(ctx, "nope", 1)
	assert.ErrorIs(t, err, ErrMatchNotFound)

	f.clock.Advance(DefaultMatchTTL + time.Second)
	_, err = f.chat.Authorize(ctx, "m1", 1)
	assert.ErrorIs(t, err, ErrMatchExpired)
}

func assertMessageCount(t *testing.T, f *fixture, matchID string, want int) {
	t.Helper()
	m, err := f.matchRepo.FindByID(context.Background(), matchID)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, want, m.MessageCount)
}
