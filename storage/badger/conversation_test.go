package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/kbassist/core"
	"github.com/poiesic/kbassist/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepositories(t *testing.T) *Repositories {
	t.Helper()
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

func TestCreateAndGetSession(t *testing.T) {
	repo := newTestRepositories(t).Conversations
	ctx := context.Background()

	session, err := repo.CreateSession(ctx, &core.Session{UserID: "u1", Title: "Leave policy"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.False(t, session.CreatedAt.IsZero())
	assert.True(t, session.CreatedAt.Equal(session.UpdatedAt))

	got, err := repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "Leave policy", got.Title)

	_, err = repo.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = repo.CreateSession(ctx, &core.Session{ID: session.ID, UserID: "u1"})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestAppendTurn(t *testing.T) {
	repo := newTestRepositories(t).Conversations
	ctx := context.Background()

	session, err := repo.CreateSession(ctx, &core.Session{UserID: "u1", Title: "t"})
	require.NoError(t, err)

	turn, err := repo.AppendTurn(ctx, &core.Turn{
		SessionID: session.ID,
		UserID:    "u1",
		Message:   "How many vacation days?",
		Response:  "Twenty.",
		Sources:   []core.Source{{Title: "Vacation", Score: 0.8, Kind: core.SourceSemantic}},
	})
	require.NoError(t, err)
	assert.NotZero(t, turn.ID)
	assert.True(t, turn.CreatedAt.After(session.UpdatedAt))

	updated, err := repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, turn.CreatedAt.Equal(updated.UpdatedAt))

	turns, err := repo.Turns(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "Twenty.", turns[0].Response)
	assert.Equal(t, []core.Source{{Title: "Vacation", Score: 0.8, Kind: core.SourceSemantic}}, turns[0].Sources)

	_, err = repo.AppendTurn(ctx, &core.Turn{SessionID: "missing", Message: "m"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecentTurns(t *testing.T) {
	repo := newTestRepositories(t).Conversations
	ctx := context.Background()

	session, err := repo.CreateSession(ctx, &core.Session{UserID: "u1", Title: "t"})
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		_, err := repo.AppendTurn(ctx, &core.Turn{
			SessionID: session.ID,
			Message:   fmt.Sprintf("q%d", i),
			Response:  fmt.Sprintf("a%d", i),
		})
		require.NoError(t, err)
	}

	recent, err := repo.RecentTurns(ctx, session.ID, 5)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	for i, turn := range recent {
		assert.Equal(t, fmt.Sprintf("q%d", 95+i), turn.Message)
	}

	none, err := repo.RecentTurns(ctx, session.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := repo.RecentTurns(ctx, session.ID, 1000)
	require.NoError(t, err)
	assert.Len(t, all, 100)
}

func TestRecentTurns_IsolatedPerSession(t *testing.T) {
	repo := newTestRepositories(t).Conversations
	ctx := context.Background()

	a, err := repo.CreateSession(ctx, &core.Session{UserID: "u1", Title: "a"})
	require.NoError(t, err)
	b, err := repo.CreateSession(ctx, &core.Session{UserID: "u1", Title: "b"})
	require.NoError(t, err)

	_, err = repo.AppendTurn(ctx, &core.Turn{SessionID: a.ID, Message: "in a"})
	require.NoError(t, err)

	turns, err := repo.RecentTurns(ctx, b.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestAppendTurn_Concurrent(t *testing.T) {
	repo := newTestRepositories(t).Conversations
	ctx := context.Background()

	session, err := repo.CreateSession(ctx, &core.Session{UserID: "u1", Title: "t"})
	require.NoError(t, err)

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.AppendTurn(ctx, &core.Turn{SessionID: session.ID, Message: fmt.Sprintf("m%d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	turns, err := repo.Turns(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, turns, writers)
	for i := 1; i < len(turns); i++ {
		assert.True(t, turns[i].CreatedAt.After(turns[i-1].CreatedAt))
	}

	updated, err := repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, turns[len(turns)-1].CreatedAt.Equal(updated.UpdatedAt))
}

func TestListSessions(t *testing.T) {
	repo := newTestRepositories(t).Conversations
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		s, err := repo.CreateSession(ctx, &core.Session{UserID: "u1", Title: fmt.Sprintf("s%d", i)})
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	_, err := repo.CreateSession(ctx, &core.Session{UserID: "u2", Title: "other"})
	require.NoError(t, err)

	// Touch the oldest so it moves to the front
	_, err = repo.AppendTurn(ctx, &core.Turn{SessionID: ids[0], Message: "bump"})
	require.NoError(t, err)

	sessions, err := repo.ListSessions(ctx, "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, ids[0], sessions[0].ID)
	for i := 1; i < len(sessions); i++ {
		assert.False(t, sessions[i].UpdatedAt.After(sessions[i-1].UpdatedAt))
	}

	page, err := repo.ListSessions(ctx, "u1", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, sessions[1].ID, page[0].ID)
}

func TestSearchSessions(t *testing.T) {
	repo := newTestRepositories(t).Conversations
	ctx := context.Background()

	vacation, err := repo.CreateSession(ctx, &core.Session{UserID: "u1", Title: "Vacation days"})
	require.NoError(t, err)
	laptop, err := repo.CreateSession(ctx, &core.Session{UserID: "u1", Title: "Hardware"})
	require.NoError(t, err)
	_, err = repo.AppendTurn(ctx, &core.Turn{SessionID: laptop.ID, Message: "Can I get a new LAPTOP?", Response: "Yes."})
	require.NoError(t, err)

	results, err := repo.SearchSessions(ctx, "u1", "vacation", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, vacation.ID, results[0].ID)

	results, err = repo.SearchSessions(ctx, "u1", "laptop", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, laptop.ID, results[0].ID)

	results, err = repo.SearchSessions(ctx, "u2", "laptop", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = repo.SearchSessions(ctx, "u1", "  ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRenameSession(t *testing.T) {
	repo := newTestRepositories(t).Conversations
	ctx := context.Background()

	session, err := repo.CreateSession(ctx, &core.Session{UserID: "u1", Title: "old"})
	require.NoError(t, err)

	renamed, err := repo.RenameSession(ctx, session.ID, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", renamed.Title)
	assert.True(t, renamed.UpdatedAt.After(session.CreatedAt))

	sessions, err := repo.ListSessions(ctx, "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "new", sessions[0].Title)

	_, err = repo.RenameSession(ctx, "missing", "x")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteSession(t *testing.T) {
	repo := newTestRepositories(t).Conversations
	ctx := context.Background()

	session, err := repo.CreateSession(ctx, &core.Session{UserID: "u1", Title: "t"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := repo.AppendTurn(ctx, &core.Turn{SessionID: session.ID, Message: "m"})
		require.NoError(t, err)
	}

	require.NoError(t, repo.DeleteSession(ctx, session.ID))

	_, err = repo.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	turns, err := repo.Turns(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, turns)

	sessions, err := repo.ListSessions(ctx, "u1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	assert.ErrorIs(t, repo.DeleteSession(ctx, session.ID), storage.ErrNotFound)
}

func TestStats(t *testing.T) {
	repo := newTestRepositories(t).Conversations
	ctx := context.Background()
	now := time.Now().UTC()
	today := core.Day(now)

	create := func(userID string, createdAt time.Time) *core.Session {
		session, err := repo.CreateSession(ctx, &core.Session{UserID: userID, Title: "t", CreatedAt: createdAt})
		require.NoError(t, err)
		return session
	}
	ask := func(session *core.Session) {
		_, err := repo.AppendTurn(ctx, &core.Turn{SessionID: session.ID, UserID: session.UserID, Message: "q", Response: "a"})
		require.NoError(t, err)
	}

	create("u1", today.Add(-40*24*time.Hour))
	older := create("u1", today.Add(-10*24*time.Hour))
	active := create("u1", today)
	create("u1", today.Add(time.Minute))
	ask(older)
	ask(active)
	ask(active)
	ask(create("u2", today))

	stats, err := repo.Stats(ctx, "u1", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalConversations)
	assert.Equal(t, 3, stats.TotalMessages)
	assert.Equal(t, 2, stats.EmptyConversations)
	assert.Equal(t, 2, stats.ConversationsThisWeek)
	assert.Equal(t, 3, stats.MessagesThisWeek)
	assert.Equal(t, []core.DailyUsage{
		{Date: today, Conversations: 2},
		{Date: today.Add(-10 * 24 * time.Hour), Conversations: 1},
	}, stats.DailyUsage)
}

func TestStats_NoSessions(t *testing.T) {
	repo := newTestRepositories(t).Conversations

	stats, err := repo.Stats(context.Background(), "nobody", time.Now())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalConversations)
	assert.Empty(t, stats.DailyUsage)
	assert.NotNil(t, stats.DailyUsage)
}

func TestStats_DailyUsageCapped(t *testing.T) {
	repo := newTestRepositories(t).Conversations
	ctx := context.Background()
	now := time.Now().UTC()
	today := core.Day(now)

	// The window opens mid-day, so it touches 31 calendar days
	for i := 0; i <= core.StatsMaxDays; i++ {
		createdAt := today.Add(-time.Duration(i)*24*time.Hour + 3*time.Hour)
		if i == 0 {
			createdAt = today.Add(time.Hour)
		}
		_, err := repo.CreateSession(ctx, &core.Session{UserID: "u1", CreatedAt: createdAt})
		require.NoError(t, err)
	}

	stats, err := repo.Stats(ctx, "u1", today.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, core.StatsMaxDays+1, stats.TotalConversations)
	require.Len(t, stats.DailyUsage, core.StatsMaxDays)
	assert.Equal(t, today, stats.DailyUsage[0].Date)
}
