package match

import (
	"math"

	"github.com/david/grant-matcher/internal/models"
)

// Strategy selects which weight table drives aggregation. Callers that
// trust document-derived signals pick StrategyProfileHeavy; the default
// leans on stated preferences.
type Strategy string

const (
	StrategyBalanced     Strategy = "balanced"
	StrategyProfileHeavy Strategy = "profile-heavy"
)

// WeightTable assigns a relative weight to each fit factor. Tables need
// not sum to 1; aggregation renormalizes after zeroing factors whose
// inputs are absent.
type WeightTable struct {
	Eligibility     float64
	InterestKeyword float64
	Structure       float64
	Population      float64
	Amount          float64
	Timing          float64
	BusinessProfile float64
	Capability      float64
	Experience      float64
	Mission         float64
	UserPreference  float64
}

var strategyWeights = map[Strategy]WeightTable{
	StrategyBalanced: {
		Eligibility:     0.20,
		InterestKeyword: 0.15,
		Structure:       0.05,
		Population:      0.05,
		Amount:          0.05,
		Timing:          0.10,
		BusinessProfile: 0.15,
		Capability:      0.10,
		Experience:      0.05,
		Mission:         0.05,
		UserPreference:  0.05,
	},
	StrategyProfileHeavy: {
		Eligibility:     0.10,
		InterestKeyword: 0.12,
		Structure:       0.04,
		Population:      0.02,
		Amount:          0.02,
		Timing:          0.01,
		BusinessProfile: 0.20,
		Capability:      0.15,
		Experience:      0.12,
		Mission:         0.12,
		UserPreference:  0.10,
	},
}

// Weights returns the table for a strategy, defaulting to balanced.
func Weights(s Strategy) WeightTable {
	if w, ok := strategyWeights[s]; ok {
		return w
	}
	return strategyWeights[StrategyBalanced]
}

// AggregateScore folds the eleven factor scores into one [0,100]
// integer. Factors whose prerequisite data is missing from the profile
// are dropped and the remaining weights renormalized, so thin profiles
// are rescored proportionally rather than handicapped.
func AggregateScore(c models.FitScoreComponents, profile *models.RequesterProfile, w WeightTable) int {
	if profile.BusinessProfile == nil {
		w.BusinessProfile = 0
		w.Capability = 0
		w.Experience = 0
		w.Mission = 0
	}
	if profile.Preferences == nil {
		w.UserPreference = 0
	}

	total := w.Eligibility + w.InterestKeyword + w.Structure + w.Population +
		w.Amount + w.Timing + w.BusinessProfile + w.Capability +
		w.Experience + w.Mission + w.UserPreference
	if total == 0 {
		return 0
	}

	dot := c.EligibilityFit*w.Eligibility +
		c.InterestKeywordFit*w.InterestKeyword +
		c.StructureFit*w.Structure +
		c.PopulationFit*w.Population +
		c.AmountFit*w.Amount +
		c.TimingFit*w.Timing +
		c.BusinessProfileFit*w.BusinessProfile +
		c.CapabilityFit*w.Capability +
		c.ExperienceFit*w.Experience +
		c.MissionFit*w.Mission +
		c.UserPreferenceFit*w.UserPreference

	score := int(math.Round(dot / total * 100))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
