// Package cache stores the last computed match results per requester in
// Redis, keyed by a hash of the scoring-relevant profile fields.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/david/grant-matcher/internal/match"
	"github.com/david/grant-matcher/internal/models"
)

const (
	// TTL is how long a cached result set stays valid.
	TTL = 24 * time.Hour
	// DefaultChunkSize is how many scored opportunities go in one Redis
	// value before size probing kicks in.
	DefaultChunkSize = 30
	// MaxChunkBytes is the per-value size ceiling of the storage layer.
	MaxChunkBytes = 900_000
)

// Entry is one requester's cached result set.
type Entry struct {
	ProfileHash string                     `json:"profile_hash"`
	CachedAt    time.Time                  `json:"cached_at"`
	MinScore    int                        `json:"min_score"`
	All         []models.ScoredOpportunity `json:"all"`
}

// Matched derives the filtered subset shown on the dashboard.
func (e *Entry) Matched() []models.ScoredOpportunity {
	return match.Matched(e.All, e.MinScore)
}

type meta struct {
	ProfileHash string    `json:"profile_hash"`
	CachedAt    time.Time `json:"cached_at"`
	MinScore    int       `json:"min_score"`
	Gen         string    `json:"gen"`
	Chunks      int       `json:"chunks"`
	Total       int       `json:"total"`
}

// scoringProfile is the subset of profile fields that affect scoring.
// Anything listed here invalidates the cache when it changes.
type scoringProfile struct {
	EntityType       string                     `json:"entity_type"`
	FundingTypes     []string                   `json:"funding_types"`
	Timeline         string                     `json:"timeline"`
	Interests        []string                   `json:"interests"`
	Keywords         []string                   `json:"keywords"`
	PositiveKeywords []string                   `json:"positive_keywords"`
	NegativeKeywords []string                   `json:"negative_keywords"`
	BusinessProfile  *models.BusinessProfile    `json:"business_profile"`
	Preferences      *models.LearnedPreferences `json:"preferences"`
}

// ProfileHash digests the scoring-relevant profile fields.
func ProfileHash(p *models.RequesterProfile) string {
	payload, err := json.Marshal(scoringProfile{
		EntityType:       p.EntityType,
		FundingTypes:     p.FundingTypes,
		Timeline:         p.Timeline,
		Interests:        p.Interests,
		Keywords:         p.Keywords,
		PositiveKeywords: p.PositiveKeywords,
		NegativeKeywords: p.NegativeKeywords,
		BusinessProfile:  p.BusinessProfile,
		Preferences:      p.Preferences,
	})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Store is the Redis-backed result cache. Writes for the same requester
// are serialized so a reader never observes a half-replaced entry.
type Store struct {
	rdb *redis.Client
	log *zap.Logger
	now func() time.Time

	mu      sync.Mutex
	writers map[string]*sync.Mutex
}

func NewStore(rdb *redis.Client, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		rdb:     rdb,
		log:     log,
		now:     time.Now,
		writers: make(map[string]*sync.Mutex),
	}
}

func (s *Store) writerLock(requesterID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.writers[requesterID]; ok {
		return m
	}
	m := &sync.Mutex{}
	s.writers[requesterID] = m
	return m
}

func metaKey(requesterID string) string { return "match:" + requesterID + ":meta" }
func chunkKey(requesterID, gen string, i int) string {
	return fmt.Sprintf("match:%s:%s:chunk:%d", requesterID, gen, i)
}

func (s *Store) readMeta(ctx context.Context, requesterID string) (meta, bool) {
	raw, err := s.rdb.Get(ctx, metaKey(requesterID)).Bytes()
	if err != nil {
		return meta{}, false
	}
	var m meta
	if json.Unmarshal(raw, &m) != nil {
		return meta{}, false
	}
	return m, true
}

// Get returns the cached entry for a requester if the stored profile
// hash matches and the entry is inside its TTL. Any mismatch, missing
// chunk, or decode failure reads as a miss and evicts the stale entry.
// Chunk keys carry the generation token from the meta record, so every
// assembled entry comes from a single Put even when a refresh lands
// mid-read.
func (s *Store) Get(ctx context.Context, requesterID, profileHash string) (*Entry, error) {
	raw, err := s.rdb.Get(ctx, metaKey(requesterID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache read: %w", err)
	}

	var m meta
	if err := json.Unmarshal(raw, &m); err != nil {
		s.evict(ctx, requesterID)
		return nil, nil
	}
	if m.ProfileHash != profileHash || s.now().Sub(m.CachedAt) >= TTL {
		s.evict(ctx, requesterID)
		return nil, nil
	}

	entry := &Entry{ProfileHash: m.ProfileHash, CachedAt: m.CachedAt, MinScore: m.MinScore}
	entry.All = make([]models.ScoredOpportunity, 0, m.Total)
	for i := 0; i < m.Chunks; i++ {
		chunkRaw, err := s.rdb.Get(ctx, chunkKey(requesterID, m.Gen, i)).Bytes()
		if err == redis.Nil {
			// A concurrent Put replacing the generation took this chunk
			// with it; the fresh entry must not be evicted. Only a chunk
			// missing from the current generation marks the entry stale.
			if cur, ok := s.readMeta(ctx, requesterID); !ok || cur.Gen != m.Gen {
				return nil, nil
			}
			s.evict(ctx, requesterID)
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("cache read chunk %d: %w", i, err)
		}
		var chunk []models.ScoredOpportunity
		if err := json.Unmarshal(chunkRaw, &chunk); err != nil {
			s.evict(ctx, requesterID)
			return nil, nil
		}
		entry.All = append(entry.All, chunk...)
	}
	return entry, nil
}

// Put replaces the requester's cached entry. Fragments are written
// under a fresh generation token and the meta record lands in the same
// MULTI/EXEC, so a concurrent Get assembles the old generation or the
// new one, never a mix. The superseded generation's chunks are deleted
// afterwards; if that delete fails they expire with their TTL.
func (s *Store) Put(ctx context.Context, requesterID string, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.writerLock(requesterID)
	lock.Lock()
	defer lock.Unlock()

	chunks, err := Shard(entry.All, DefaultChunkSize, MaxChunkBytes)
	if err != nil {
		return err
	}

	m := meta{
		ProfileHash: entry.ProfileHash,
		CachedAt:    entry.CachedAt,
		MinScore:    entry.MinScore,
		Gen:         uuid.NewString(),
		Chunks:      len(chunks),
		Total:       len(entry.All),
	}
	metaRaw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("cache encode meta: %w", err)
	}

	prev, hadPrev := s.readMeta(ctx, requesterID)

	pipe := s.rdb.TxPipeline()
	for i, chunk := range chunks {
		raw, err := json.Marshal(chunk)
		if err != nil {
			return fmt.Errorf("cache encode chunk %d: %w", i, err)
		}
		pipe.Set(ctx, chunkKey(requesterID, m.Gen, i), raw, TTL)
	}
	pipe.Set(ctx, metaKey(requesterID), metaRaw, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}

	if hadPrev && prev.Chunks > 0 {
		keys := make([]string, 0, prev.Chunks)
		for i := 0; i < prev.Chunks; i++ {
			keys = append(keys, chunkKey(requesterID, prev.Gen, i))
		}
		if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
			s.log.Warn("cache cleanup failed", zap.String("requester_id", requesterID), zap.Error(err))
		}
	}
	return nil
}

// Invalidate removes everything cached for a requester.
func (s *Store) Invalidate(ctx context.Context, requesterID string) error {
	lock := s.writerLock(requesterID)
	lock.Lock()
	defer lock.Unlock()
	return s.evict(ctx, requesterID)
}

func (s *Store) evict(ctx context.Context, requesterID string) error {
	keys := []string{metaKey(requesterID)}
	if m, ok := s.readMeta(ctx, requesterID); ok {
		for i := 0; i < m.Chunks; i++ {
			keys = append(keys, chunkKey(requesterID, m.Gen, i))
		}
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.log.Warn("cache evict failed", zap.String("requester_id", requesterID), zap.Error(err))
		return err
	}
	return nil
}

// Shard splits a scored list into storage-sized chunks. It starts at
// chunkSize items per chunk and halves until the estimated serialized
// size of every chunk fits under maxBytes, bottoming out at one item
// per chunk.
func Shard(items []models.ScoredOpportunity, chunkSize, maxBytes int) ([][]models.ScoredOpportunity, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if len(items) == 0 {
		return nil, nil
	}

	for chunkSize >= 1 {
		chunks := split(items, chunkSize)
		fits := true
		for _, chunk := range chunks {
			raw, err := json.Marshal(chunk)
			if err != nil {
				return nil, fmt.Errorf("estimate chunk size: %w", err)
			}
			if len(raw) > maxBytes {
				fits = false
				break
			}
		}
		if fits || chunkSize == 1 {
			return chunks, nil
		}
		chunkSize /= 2
	}
	return nil, nil
}

func split(items []models.ScoredOpportunity, size int) [][]models.ScoredOpportunity {
	var chunks [][]models.ScoredOpportunity
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
