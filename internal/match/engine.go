package match

import (
	"context"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/david/grant-matcher/internal/models"
)

// DefaultMinScore is the cutoff above which an opportunity counts as a
// match for the dashboard's filtered view.
const DefaultMinScore = 35

// Engine runs the full pipeline: pre-filter, factor scoring, weighted
// aggregation, reasoning. It holds no mutable state between calls, so a
// single Engine is safe for concurrent use.
type Engine struct {
	strategy Strategy
	weights  WeightTable
	workers  int
	strict   bool
	now      func() time.Time
	log      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategy selects the weight table.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) {
		e.strategy = s
		e.weights = Weights(s)
	}
}

// WithWorkers caps the scoring fan-out.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithStrict makes out-of-range factor values an error instead of a
// silent clamp. Intended for tests.
func WithStrict() Option {
	return func(e *Engine) { e.strict = true }
}

// WithClock overrides the time source used by the timing factor.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine builds an engine with the balanced strategy and one worker
// per CPU unless options say otherwise.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		strategy: StrategyBalanced,
		weights:  Weights(StrategyBalanced),
		workers:  runtime.NumCPU(),
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strategy reports the engine's active strategy.
func (e *Engine) Strategy() Strategy { return e.strategy }

// ScoreOne runs the scoring pipeline for a single opportunity that has
// already passed the pre-filter.
func (e *Engine) ScoreOne(opp *models.Opportunity, profile *models.RequesterProfile) (models.ScoredOpportunity, error) {
	components, clamped := ScoreComponents(opp, profile, e.now())
	if e.strict && len(clamped) > 0 {
		return models.ScoredOpportunity{}, &InvariantViolationError{
			OpportunityID: opp.ID.String(),
			Factors:       clamped,
		}
	}
	score := AggregateScore(components, profile, e.weights)
	reasoning := Explain(opp, profile, components, score)
	return models.ScoredOpportunity{
		Opportunity:             *opp,
		MatchScore:              score,
		FitScore:                components,
		Reasoning:               reasoning,
		PersonalizedDescription: PersonalizedDescription(opp, profile, reasoning),
	}, nil
}

// Match filters, scores, and ranks a candidate set against a profile.
// Results are sorted by descending match score; ties keep their input
// order. The context bounds the whole batch; a cancelled context
// returns before any result is produced.
func (e *Engine) Match(ctx context.Context, opps []models.Opportunity, profile *models.RequesterProfile) ([]models.ScoredOpportunity, error) {
	if err := validateProfile(profile); err != nil {
		return nil, err
	}

	eligible := make([]models.Opportunity, 0, len(opps))
	for i := range opps {
		if opps[i].Title == "" {
			continue
		}
		if excl, excluded := Exclude(&opps[i], profile); excluded {
			e.log.Debug("opportunity excluded",
				zap.String("opportunity_id", opps[i].ID.String()),
				zap.String("rule", excl.Rule),
				zap.String("term", excl.Term))
			continue
		}
		eligible = append(eligible, opps[i])
	}

	// Index-addressed results keep input order without locking.
	scored := make([]models.ScoredOpportunity, len(eligible))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range eligible {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := e.ScoreOne(&eligible[i], profile)
			if err != nil {
				return err
			}
			scored[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].MatchScore > scored[j].MatchScore
	})

	e.log.Info("matching complete",
		zap.Int("candidates", len(opps)),
		zap.Int("eligible", len(eligible)),
		zap.String("strategy", string(e.strategy)))
	return scored, nil
}

// Matched returns the subset of a scored list at or above minScore.
// Pass a non-positive minScore to use the default cutoff.
func Matched(scored []models.ScoredOpportunity, minScore int) []models.ScoredOpportunity {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	out := make([]models.ScoredOpportunity, 0, len(scored))
	for _, s := range scored {
		if s.MatchScore >= minScore {
			out = append(out, s)
		}
	}
	return out
}
