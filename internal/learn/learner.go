// Package learn mines a user's save/pass/apply history into the
// frequency patterns consumed by the user-preference fit factor.
package learn

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/david/grant-matcher/internal/match"
	"github.com/david/grant-matcher/internal/models"
)

const (
	maxKeywordPatterns = 20
	maxAgencyPatterns  = 10
	maxAmountPatterns  = 5
	minAgencyCount     = 2
)

// Learn aggregates an immutable action log into LearnedPreferences.
// Saves and applies are positive signal; passes are negative. The
// computation is order-independent and idempotent: rerunning over the
// same history yields the same tables.
func Learn(events []models.ActionEvent, now time.Time) models.LearnedPreferences {
	prefs := models.LearnedPreferences{LastAnalyzed: now}

	var positive, negative []*models.Opportunity
	savedSeen := map[string]struct{}{}
	passedSeen := map[string]struct{}{}
	appliedSeen := map[string]struct{}{}

	for _, ev := range events {
		switch ev.Action {
		case models.ActionSave:
			if _, ok := savedSeen[ev.OpportunityID]; !ok {
				savedSeen[ev.OpportunityID] = struct{}{}
				prefs.SavedOpportunityIDs = append(prefs.SavedOpportunityIDs, ev.OpportunityID)
			}
			if ev.Snapshot != nil {
				positive = append(positive, ev.Snapshot)
			}
		case models.ActionApply:
			if _, ok := appliedSeen[ev.OpportunityID]; !ok {
				appliedSeen[ev.OpportunityID] = struct{}{}
				prefs.AppliedOpportunityIDs = append(prefs.AppliedOpportunityIDs, ev.OpportunityID)
			}
			if ev.Snapshot != nil {
				positive = append(positive, ev.Snapshot)
			}
		case models.ActionPass:
			if _, ok := passedSeen[ev.OpportunityID]; !ok {
				passedSeen[ev.OpportunityID] = struct{}{}
				prefs.PassedOpportunityIDs = append(prefs.PassedOpportunityIDs, ev.OpportunityID)
			}
			if ev.Snapshot != nil {
				negative = append(negative, ev.Snapshot)
			}
		}
	}

	sort.Strings(prefs.SavedOpportunityIDs)
	sort.Strings(prefs.PassedOpportunityIDs)
	sort.Strings(prefs.AppliedOpportunityIDs)

	prefs.SavePatterns = minePatterns(positive)
	prefs.PassPatterns = minePatterns(negative)
	return prefs
}

// minePatterns builds the frequency tables for one signal direction.
func minePatterns(snapshots []*models.Opportunity) models.PatternSet {
	if len(snapshots) == 0 {
		return models.PatternSet{}
	}

	keywordCounts := map[string]int{}
	agencyCounts := map[string]int{}
	amountCounts := map[string]int{}

	for _, opp := range snapshots {
		seen := map[string]struct{}{}
		for _, kw := range match.ExtractKeywords(opp.SearchText()) {
			if _, dup := seen[kw]; dup {
				continue
			}
			seen[kw] = struct{}{}
			keywordCounts[kw]++
		}
		if agency := strings.TrimSpace(opp.AgencyName); agency != "" {
			agencyCounts[agency]++
		}
		if bucket := categorizeAmount(opp); bucket != "" {
			amountCounts[bucket]++
		}
	}

	// A keyword is a pattern once it shows up in at least 20% of the
	// snapshots, floored at 2 so a single action never forms one.
	minKeyword := int(math.Ceil(float64(len(snapshots)) * 0.2))
	if minKeyword < 2 {
		minKeyword = 2
	}

	return models.PatternSet{
		Keywords: topN(keywordCounts, minKeyword, maxKeywordPatterns),
		Agencies: topN(agencyCounts, minAgencyCount, maxAgencyPatterns),
		Amounts:  topN(amountCounts, 1, maxAmountPatterns),
	}
}

// topN returns the highest-count entries at or above threshold, sorted
// by descending count with alphabetical tie-break so output is stable
// regardless of input order.
func topN(counts map[string]int, threshold, n int) []string {
	entries := make([]string, 0, len(counts))
	for k, c := range counts {
		if c >= threshold {
			entries = append(entries, k)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if counts[entries[i]] != counts[entries[j]] {
			return counts[entries[i]] > counts[entries[j]]
		}
		return entries[i] < entries[j]
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// Amount bucket labels, smallest first.
var amountBuckets = []struct {
	ceiling float64
	label   string
}{
	{10000, "under-10k"},
	{25000, "10k-25k"},
	{50000, "25k-50k"},
	{100000, "50k-100k"},
	{250000, "100k-250k"},
	{500000, "250k-500k"},
	{1000000, "500k-1m"},
}

func categorizeAmount(opp *models.Opportunity) string {
	amount := opp.AmountMax
	if amount == 0 {
		amount = opp.AmountMin
	}
	if amount <= 0 {
		return ""
	}
	for _, b := range amountBuckets {
		if amount < b.ceiling {
			return b.label
		}
	}
	return "over-1m"
}
