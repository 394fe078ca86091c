package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/david/grant-matcher/internal/cache"
	"github.com/david/grant-matcher/internal/db"
	"github.com/david/grant-matcher/internal/match"
	"github.com/david/grant-matcher/internal/models"
)

// candidateLimit caps how many opportunities one matching pass scores.
const candidateLimit = 1000

// OpportunitySource lists the open candidate set a matching pass
// scores. *db.Store satisfies it.
type OpportunitySource interface {
	ListOpportunities(ctx context.Context, params db.ListParams) (*db.ListResult, error)
}

// MatchService runs the scoring pipeline behind the result cache.
// Cache faults are logged and absorbed: matching always succeeds if the
// pipeline itself does.
type MatchService struct {
	source   OpportunitySource
	engine   *match.Engine
	cache    *cache.Store
	minScore int
	log      *zap.Logger
	now      func() time.Time
}

func NewMatchService(source OpportunitySource, engine *match.Engine, cacheStore *cache.Store, log *zap.Logger) *MatchService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MatchService{
		source:   source,
		engine:   engine,
		cache:    cacheStore,
		minScore: match.DefaultMinScore,
		log:      log,
		now:      time.Now,
	}
}

// Results returns the scored set for a requester, from cache when the
// profile hash still matches, recomputed otherwise. The second return
// reports whether the cache served the result.
func (m *MatchService) Results(ctx context.Context, profile *models.RequesterProfile, refresh bool) (*cache.Entry, bool, error) {
	hash := cache.ProfileHash(profile)

	if m.cache != nil && !refresh {
		entry, err := m.cache.Get(ctx, profile.UserID, hash)
		if err != nil {
			m.log.Warn("cache read failed, recomputing", zap.String("user_id", profile.UserID), zap.Error(err))
		} else if entry != nil {
			return entry, true, nil
		}
	}

	listed, err := m.source.ListOpportunities(ctx, db.ListParams{OnlyOpen: true, Limit: candidateLimit})
	if err != nil {
		return nil, false, err
	}

	scored, err := m.engine.Match(ctx, listed.Opportunities, profile)
	if err != nil {
		return nil, false, err
	}

	entry := &cache.Entry{
		ProfileHash: hash,
		CachedAt:    m.now().UTC(),
		MinScore:    m.minScore,
		All:         scored,
	}

	// A timed-out batch must never reach the cache; a partial or
	// post-deadline write would mask the timeout on the next read.
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	if m.cache != nil {
		if err := m.cache.Put(ctx, profile.UserID, entry); err != nil {
			m.log.Warn("cache write failed", zap.String("user_id", profile.UserID), zap.Error(err))
		}
	}
	return entry, false, nil
}

// Invalidate drops the requester's cached results.
func (m *MatchService) Invalidate(ctx context.Context, requesterID string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Invalidate(ctx, requesterID); err != nil {
		m.log.Warn("cache invalidate failed", zap.String("user_id", requesterID), zap.Error(err))
	}
}
