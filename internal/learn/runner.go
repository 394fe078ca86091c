package learn

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/david/grant-matcher/internal/models"
)

// EventSource provides the action history for a user.
type EventSource interface {
	ListActionEvents(ctx context.Context, userID string) ([]models.ActionEvent, error)
}

// PreferenceSink persists a freshly computed preference set.
type PreferenceSink interface {
	SaveLearnedPreferences(ctx context.Context, userID string, prefs models.LearnedPreferences) error
}

// Runner schedules preference recomputation. Runs for different users
// may overlap; runs for the same user are serialized because learning
// is read-modify-write over that user's history.
type Runner struct {
	src  EventSource
	sink PreferenceSink
	log  *zap.Logger
	now  func() time.Time

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

func NewRunner(src EventSource, sink PreferenceSink, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		src:   src,
		sink:  sink,
		log:   log,
		now:   time.Now,
		users: make(map[string]*sync.Mutex),
	}
}

func (r *Runner) userLock(userID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.users[userID]; ok {
		return m
	}
	m := &sync.Mutex{}
	r.users[userID] = m
	return m
}

// Recompute mines the user's current history and persists the result.
// An unavailable history is not an error: the user simply gets empty
// preferences, which downstream scoring treats as neutral.
func (r *Runner) Recompute(ctx context.Context, userID string) (models.LearnedPreferences, error) {
	lock := r.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	events, err := r.src.ListActionEvents(ctx, userID)
	if err != nil {
		r.log.Warn("action history unavailable, yielding empty preferences",
			zap.String("user_id", userID), zap.Error(err))
		events = nil
	}

	prefs := Learn(events, r.now().UTC())
	if err := r.sink.SaveLearnedPreferences(ctx, userID, prefs); err != nil {
		return models.LearnedPreferences{}, err
	}

	r.log.Info("preferences recomputed",
		zap.String("user_id", userID),
		zap.Int("events", len(events)),
		zap.Int("save_keywords", len(prefs.SavePatterns.Keywords)),
		zap.Int("save_agencies", len(prefs.SavePatterns.Agencies)))
	return prefs, nil
}
