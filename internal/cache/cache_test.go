package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/david/grant-matcher/internal/models"
)

func testStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, zap.NewNop()), mr
}

func scoredList(n int) []models.ScoredOpportunity {
	out := make([]models.ScoredOpportunity, n)
	for i := range out {
		out[i] = models.ScoredOpportunity{
			Opportunity: models.Opportunity{ID: uuid.New(), Title: "Opportunity"},
			MatchScore:  100 - i,
		}
	}
	return out
}

// entryMeta decodes the stored meta record so tests can address the
// generation-scoped chunk keys.
func entryMeta(t *testing.T, mr *miniredis.Miniredis, requesterID string) meta {
	t.Helper()
	raw, err := mr.Get("match:" + requesterID + ":meta")
	require.NoError(t, err)
	var m meta
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func TestProfileHash(t *testing.T) {
	a := &models.RequesterProfile{EntityType: models.EntityForProfit, FundingTypes: []string{"grants"}}
	b := &models.RequesterProfile{EntityType: models.EntityForProfit, FundingTypes: []string{"grants"}}
	assert.Equal(t, ProfileHash(a), ProfileHash(b))

	b.Keywords = []string{"broadband"}
	assert.NotEqual(t, ProfileHash(a), ProfileHash(b))

	// Identity fields stay out of the hash: changing the user does not
	// invalidate scoring-equivalent profiles.
	b = &models.RequesterProfile{UserID: "someone-else", EntityType: models.EntityForProfit, FundingTypes: []string{"grants"}}
	assert.Equal(t, ProfileHash(a), ProfileHash(b))
}

func TestStore_PutGetRoundtrip(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	entry := &Entry{
		ProfileHash: "h1",
		CachedAt:    time.Now().UTC(),
		MinScore:    35,
		All:         scoredList(75),
	}
	require.NoError(t, s.Put(ctx, "u1", entry))

	got, err := s.Get(ctx, "u1", "h1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "h1", got.ProfileHash)
	assert.Equal(t, 35, got.MinScore)
	require.Len(t, got.All, 75)
	// Chunk reassembly preserves order.
	for i := range got.All {
		assert.Equal(t, entry.All[i].ID, got.All[i].ID)
		assert.Equal(t, entry.All[i].MatchScore, got.All[i].MatchScore)
	}
}

func TestStore_GetMissOnUnknownRequester(t *testing.T) {
	s, _ := testStore(t)
	got, err := s.Get(context.Background(), "nobody", "h1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_HashMismatchEvicts(t *testing.T) {
	s, mr := testStore(t)
	ctx := context.Background()

	entry := &Entry{ProfileHash: "h1", CachedAt: time.Now().UTC(), All: scoredList(5)}
	require.NoError(t, s.Put(ctx, "u1", entry))
	m := entryMeta(t, mr, "u1")

	got, err := s.Get(ctx, "u1", "h2")
	require.NoError(t, err)
	assert.Nil(t, got)

	// The stale entry is gone, not just skipped.
	assert.False(t, mr.Exists("match:u1:meta"))
	assert.False(t, mr.Exists(chunkKey("u1", m.Gen, 0)))
}

func TestStore_ExpiredEntryIsAMiss(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	entry := &Entry{ProfileHash: "h1", CachedAt: time.Now().UTC(), All: scoredList(3)}
	require.NoError(t, s.Put(ctx, "u1", entry))

	s.now = func() time.Time { return time.Now().Add(TTL + time.Minute) }
	got, err := s.Get(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_RedisTTLExpiry(t *testing.T) {
	s, mr := testStore(t)
	ctx := context.Background()

	entry := &Entry{ProfileHash: "h1", CachedAt: time.Now().UTC(), All: scoredList(3)}
	require.NoError(t, s.Put(ctx, "u1", entry))

	mr.FastForward(TTL + time.Minute)
	got, err := s.Get(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_MissingChunkEvicts(t *testing.T) {
	s, mr := testStore(t)
	ctx := context.Background()

	entry := &Entry{ProfileHash: "h1", CachedAt: time.Now().UTC(), All: scoredList(65)}
	require.NoError(t, s.Put(ctx, "u1", entry))
	m := entryMeta(t, mr, "u1")
	require.True(t, mr.Exists(chunkKey("u1", m.Gen, 1)))

	mr.Del(chunkKey("u1", m.Gen, 1))
	got, err := s.Get(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists("match:u1:meta"))
}

func TestStore_PutReplacesLeftoverChunks(t *testing.T) {
	s, mr := testStore(t)
	ctx := context.Background()

	big := &Entry{ProfileHash: "h1", CachedAt: time.Now().UTC(), All: scoredList(90)}
	require.NoError(t, s.Put(ctx, "u1", big))
	bigMeta := entryMeta(t, mr, "u1")
	require.True(t, mr.Exists(chunkKey("u1", bigMeta.Gen, 2)))

	small := &Entry{ProfileHash: "h2", CachedAt: time.Now().UTC(), All: scoredList(10)}
	require.NoError(t, s.Put(ctx, "u1", small))

	// Chunks from the superseded generation must not survive.
	for i := 0; i < bigMeta.Chunks; i++ {
		assert.False(t, mr.Exists(chunkKey("u1", bigMeta.Gen, i)))
	}

	got, err := s.Get(ctx, "u1", "h2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.All, 10)
}

func TestStore_RefreshDuringGetNeverMixesGenerations(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	marked := func(score int) []models.ScoredOpportunity {
		out := make([]models.ScoredOpportunity, 65)
		for i := range out {
			out[i] = models.ScoredOpportunity{
				Opportunity: models.Opportunity{ID: uuid.New(), Title: "Opportunity"},
				MatchScore:  score,
			}
		}
		return out
	}
	generations := [][]models.ScoredOpportunity{marked(10), marked(90)}

	require.NoError(t, s.Put(ctx, "u1", &Entry{ProfileHash: "h1", CachedAt: time.Now().UTC(), All: generations[0]}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			entry := &Entry{ProfileHash: "h1", CachedAt: time.Now().UTC(), All: generations[i%2]}
			if err := s.Put(ctx, "u1", entry); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	// Every successful read must assemble a single write's chunks: all
	// 65 items with one marker score, never a blend of both.
	for {
		got, err := s.Get(ctx, "u1", "h1")
		require.NoError(t, err)
		if got != nil {
			require.Len(t, got.All, 65)
			first := got.All[0].MatchScore
			for _, item := range got.All {
				require.Equal(t, first, item.MatchScore)
			}
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

func TestStore_PutRespectsCancelledContext(t *testing.T) {
	s, mr := testStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entry := &Entry{ProfileHash: "h1", CachedAt: time.Now().UTC(), All: scoredList(3)}
	err := s.Put(ctx, "u1", entry)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, mr.Exists("match:u1:meta"))
}

func TestStore_Invalidate(t *testing.T) {
	s, mr := testStore(t)
	ctx := context.Background()

	entry := &Entry{ProfileHash: "h1", CachedAt: time.Now().UTC(), All: scoredList(40)}
	require.NoError(t, s.Put(ctx, "u1", entry))
	m := entryMeta(t, mr, "u1")
	require.NoError(t, s.Invalidate(ctx, "u1"))

	assert.False(t, mr.Exists("match:u1:meta"))
	assert.False(t, mr.Exists(chunkKey("u1", m.Gen, 0)))
	assert.False(t, mr.Exists(chunkKey("u1", m.Gen, 1)))
}

func TestEntry_Matched(t *testing.T) {
	e := &Entry{
		MinScore: 50,
		All: []models.ScoredOpportunity{
			{MatchScore: 80},
			{MatchScore: 50},
			{MatchScore: 49},
		},
	}
	assert.Len(t, e.Matched(), 2)
}

func TestShard(t *testing.T) {
	items := scoredList(65)

	chunks, err := Shard(items, 30, MaxChunkBytes)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 30)
	assert.Len(t, chunks[1], 30)
	assert.Len(t, chunks[2], 5)

	// A tight byte budget forces the chunk size down.
	tight, err := Shard(items, 30, 2000)
	require.NoError(t, err)
	assert.Greater(t, len(tight), len(chunks))
	total := 0
	for _, c := range tight {
		total += len(c)
	}
	assert.Equal(t, 65, total)

	// Even a budget smaller than one item bottoms out at singletons
	// rather than looping forever.
	singles, err := Shard(items, 30, 1)
	require.NoError(t, err)
	assert.Len(t, singles, 65)

	empty, err := Shard(nil, 30, MaxChunkBytes)
	require.NoError(t, err)
	assert.Nil(t, empty)
}
