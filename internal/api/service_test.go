package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/david/grant-matcher/internal/cache"
	"github.com/david/grant-matcher/internal/db"
	"github.com/david/grant-matcher/internal/match"
	"github.com/david/grant-matcher/internal/models"
)

type fakeSource struct {
	opps  []models.Opportunity
	err   error
	calls int
}

func (f *fakeSource) ListOpportunities(ctx context.Context, params db.ListParams) (*db.ListResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &db.ListResult{Opportunities: f.opps, Total: len(f.opps)}, nil
}

func testProfile() *models.RequesterProfile {
	return &models.RequesterProfile{
		UserID:       "u1",
		EntityType:   models.EntityForProfit,
		FundingTypes: []string{models.FundingGrants},
		Keywords:     []string{"broadband"},
	}
}

func testCandidates() []models.Opportunity {
	deadline := time.Now().AddDate(0, 2, 0)
	return []models.Opportunity{
		{Title: "Rural Broadband Deployment Grants", Description: "Fiber construction for small business providers.", Type: "grant", AgencyName: "USDA", CloseAt: &deadline},
		{Title: "Community Arts Festival Support", Description: "Local mural and music programming.", Type: "grant", CloseAt: &deadline},
	}
}

func testService(t *testing.T) (*MatchService, *fakeSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	src := &fakeSource{opps: testCandidates()}
	svc := NewMatchService(src, match.NewEngine(), cache.NewStore(rdb, zap.NewNop()), zap.NewNop())
	return svc, src, mr
}

func TestResults_ComputesThenServesFromCache(t *testing.T) {
	svc, src, _ := testService(t)
	ctx := context.Background()
	profile := testProfile()

	entry, cached, err := svc.Results(ctx, profile, false)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.False(t, cached)
	assert.Len(t, entry.All, 2)
	assert.Equal(t, 1, src.calls)

	again, cached, err := svc.Results(ctx, profile, false)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, src.calls)
	require.Len(t, again.All, 2)
	for i := range entry.All {
		assert.Equal(t, entry.All[i].MatchScore, again.All[i].MatchScore)
	}
}

func TestResults_RefreshBypassesCache(t *testing.T) {
	svc, src, _ := testService(t)
	ctx := context.Background()
	profile := testProfile()

	_, _, err := svc.Results(ctx, profile, false)
	require.NoError(t, err)

	_, cached, err := svc.Results(ctx, profile, true)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, src.calls)
}

func TestResults_ProfileChangeInvalidates(t *testing.T) {
	svc, src, _ := testService(t)
	ctx := context.Background()
	profile := testProfile()

	_, _, err := svc.Results(ctx, profile, false)
	require.NoError(t, err)

	profile.Keywords = append(profile.Keywords, "fiber")
	_, cached, err := svc.Results(ctx, profile, false)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, src.calls)
}

func TestResults_CacheDownStillMatches(t *testing.T) {
	svc, _, mr := testService(t)
	mr.Close()

	entry, cached, err := svc.Results(context.Background(), testProfile(), false)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.False(t, cached)
	assert.Len(t, entry.All, 2)
}

func TestResults_NoCacheConfigured(t *testing.T) {
	src := &fakeSource{opps: testCandidates()}
	svc := NewMatchService(src, match.NewEngine(), nil, zap.NewNop())

	entry, cached, err := svc.Results(context.Background(), testProfile(), false)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.False(t, cached)
}

func TestResults_SourceErrorPropagates(t *testing.T) {
	svc, src, _ := testService(t)
	src.err = errors.New("listing unavailable")

	_, _, err := svc.Results(context.Background(), testProfile(), false)
	require.Error(t, err)
}

func TestResults_CancelledContextWritesNothing(t *testing.T) {
	svc, _, mr := testService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := svc.Results(ctx, testProfile(), false)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, mr.Keys())
}
