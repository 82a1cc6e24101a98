package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/luvhive/luvhive-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMatch_DailyLimitBoundary(t *testing.T) {
	users := []*models.UserProfile{user(1, 27, "male", false)}
	for id := int64(10); id < 15; id++ {
		users = append(users, user(id, 26, "female", false))
	}
	f := newFixture(users...)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		result, err := f.matchmaking.FindMatch(ctx, models.FindMatchRequest{UserID: 1})
		require.NoError(t, err)
		require.True(t, result.Success, "call %d", i+1)
		require.NotNil(t, result.ExpiresAt)
		assert.Equal(t, baseTime.Add(DefaultMatchTTL), *result.ExpiresAt)
		ids = append(ids, result.MatchID)
	}
	assert.Less(t, ids[0], ids[1])
	assert.Less(t, ids[1], ids[2])

	result, err := f.matchmaking.FindMatch(ctx, models.FindMatchRequest{UserID: 1})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, models.ErrorDailyLimitReached, result.Error)
	require.NotNil(t, result.MatchesToday)
	require.NotNil(t, result.Limit)
	assert.Equal(t, 3, *result.MatchesToday)
	assert.Equal(t, 3, *result.Limit)
	assert.Contains(t, result.Message, "3 matches today")
}

func TestFindMatch_PremiumIsNotLimited(t *testing.T) {
	users := []*models.UserProfile{user(1, 30, "female", true)}
	for id := int64(10); id < 16; id++ {
		users = append(users, user(id, 30, "male", false))
	}
	f := newFixture(users...)

	for i := 0; i < 5; i++ {
		result, err := f.matchmaking.FindMatch(context.Background(), models.FindMatchRequest{UserID: 1})
		require.NoError(t, err)
		assert.True(t, result.Success, "call %d", i+1)
	}
}

func TestFindMatch_ConcurrentRequestsRespectQuota(t *testing.T) {
	users := []*models.UserProfile{user(1, 24, "male", false)}
	for id := int64(100); id < 130; id++ {
		users = append(users, user(id, 24, "female", true))
	}
	f := newFixture(users...)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		limited   int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.matchmaking.FindMatch(context.Background(), models.FindMatchRequest{UserID: 1})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if result.Success {
				succeeded++
			} else if result.Error == models.ErrorDailyLimitReached {
				limited++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 9, limited)

	from, to := utcDay(baseTime)
	count, err := f.matchRepo.CountCreatedBetween(context.Background(), 1, from, to)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestFindMatch_NeverMatchesSelf(t *testing.T) {
	f := newFixture(user(1, 30, "male", true))

	result, err := f.matchmaking.FindMatch(context.Background(), models.FindMatchRequest{UserID: 1})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, models.ErrorNoCandidatesAvailable, result.Error)
}

func TestFindMatch_ExcludesActivePartners(t *testing.T) {
	f := newFixture(user(1, 30, "male", true), user(2, 30, "female", true))
	ctx := context.Background()

	first, err := f.matchmaking.FindMatch(ctx, models.FindMatchRequest{UserID: 1})
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := f.matchmaking.FindMatch(ctx, models.FindMatchRequest{UserID: 2})
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, models.ErrorNoCandidatesAvailable, second.Error)
}

func TestFindMatch_ExcludesCandidatesAtLimit(t *testing.T) {
	f := newFixture(user(1, 30, "male", false), user(2, 30, "female", false))
	for i, partner := range []int64{50, 51, 52} {
		f.createMatch(string(rune('a'+i)), 2, partner)
	}

	result, err := f.matchmaking.FindMatch(context.Background(), models.FindMatchRequest{UserID: 1})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, models.ErrorNoCandidatesAvailable, result.Error)
}

func TestFindMatch_ExhaustedCandidatesDoNotCrowdOutPool(t *testing.T) {
	const exhausted = candidatePoolSize + 50

	users := []*models.UserProfile{user(1, 30, "male", false), user(2, 30, "female", false)}
	for i := 0; i < exhausted; i++ {
		users = append(users, user(int64(1000+i), 30, "female", false))
	}

	for run := 0; run < 3; run++ {
		t.Run(fmt.Sprintf("run %d", run), func(t *testing.T) {
			f := newFixture(users...)
			// 디렉터리에 없는 상대와 3번씩 매칭시켜 오늘 한도를 채운다
			for i := 0; i < exhausted; i++ {
				candidate := int64(1000 + i)
				for j := int64(0); j < DefaultDailyMatchLimit; j++ {
					f.createMatch(fmt.Sprintf("full-%d-%d", candidate, j), candidate, 100000+candidate*10+j)
				}
			}

			result, err := f.matchmaking.FindMatch(context.Background(), models.FindMatchRequest{UserID: 1})
			require.NoError(t, err)
			require.True(t, result.Success, result.Error)

			m, err := f.matchRepo.FindByID(context.Background(), result.MatchID)
			require.NoError(t, err)
			assert.Equal(t, int64(2), m.ParticipantBID)
		})
	}
}

func TestFindMatch_GenderPreference(t *testing.T) {
	users := []*models.UserProfile{
		user(1, 28, "male", false),
		user(2, 28, "male", true),
		user(10, 28, "female", false),
		user(11, 28, "male", false),
		user(12, 28, "Female", false),
	}

	t.Run("free user is rejected", func(t *testing.T) {
		f := newFixture(users...)
		result, err := f.matchmaking.FindMatch(context.Background(), models.FindMatchRequest{
			UserID:          1,
			PreferredGender: strPtr("female"),
		})
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, models.ErrorGenderNotAvailable, result.Error)

		from, to := utcDay(baseTime)
		count, err := f.matchRepo.CountCreatedBetween(context.Background(), 1, from, to)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("premium user only gets the requested gender", func(t *testing.T) {
		f := newFixture(users...)
		for i := 0; i < 2; i++ {
			result, err := f.matchmaking.FindMatch(context.Background(), models.FindMatchRequest{
				UserID:          2,
				PreferredGender: strPtr("female"),
			})
			require.NoError(t, err)
			require.True(t, result.Success)

			match, err := f.matchRepo.FindByID(context.Background(), result.MatchID)
			require.NoError(t, err)
			partnerID, _ := match.PartnerOf(2)
			assert.Contains(t, []int64{10, 12}, partnerID)
		}

		result, err := f.matchmaking.FindMatch(context.Background(), models.FindMatchRequest{
			UserID:          2,
			PreferredGender: strPtr("female"),
		})
		require.NoError(t, err)
		assert.Equal(t, models.ErrorNoCandidatesAvailable, result.Error)
	})
}

func TestFindMatch_AgeBounds(t *testing.T) {
	users := []*models.UserProfile{
		user(1, 30, "male", false),
		user(10, 22, "female", false),
		user(11, 35, "female", false),
		user(12, 41, "female", false),
	}

	t.Run("bounds are inclusive", func(t *testing.T) {
		f := newFixture(users...)
		result, err := f.matchmaking.FindMatch(context.Background(), models.FindMatchRequest{
			UserID:          1,
			PreferredAgeMin: intPtr(35),
			PreferredAgeMax: intPtr(35),
		})
		require.NoError(t, err)
		require.True(t, result.Success)

		match, err := f.matchRepo.FindByID(context.Background(), result.MatchID)
		require.NoError(t, err)
		partnerID, _ := match.PartnerOf(1)
		assert.Equal(t, int64(11), partnerID)
	})

	t.Run("no candidate in range", func(t *testing.T) {
		f := newFixture(users...)
		result, err := f.matchmaking.FindMatch(context.Background(), models.FindMatchRequest{
			UserID:          1,
			PreferredAgeMin: intPtr(50),
		})
		require.NoError(t, err)
		assert.Equal(t, models.ErrorNoCandidatesAvailable, result.Error)
	})

	t.Run("min above max is invalid", func(t *testing.T) {
		f := newFixture(users...)
		_, err := f.matchmaking.FindMatch(context.Background(), models.FindMatchRequest{
			UserID:          1,
			PreferredAgeMin: intPtr(40),
			PreferredAgeMax: intPtr(30),
		})
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})
}

func TestFindMatch_UnknownUser(t *testing.T) {
	f := newFixture()
	_, err := f.matchmaking.FindMatch(context.Background(), models.FindMatchRequest{UserID: 404})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMatchmakingService_Quota(t *testing.T) {
	f := newFixture(user(1, 30, "male", false), user(2, 30, "female", false))
	ctx := context.Background()

	result, err := f.matchmaking.FindMatch(ctx, models.FindMatchRequest{UserID: 1})
	require.NoError(t, err)
	require.True(t, result.Success)

	for _, id := range []int64{1, 2} {
		status, err := f.matchmaking.Quota(ctx, id)
		require.NoError(t, err)
		assert.True(t, status.Allowed)
		assert.Equal(t, 1, status.MatchesToday, "both participants spend a match")
	}

	_, err = f.matchmaking.Quota(ctx, 3)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
