package match

import (
	"strings"
	"time"

	"github.com/david/grant-matcher/internal/ingest"
	"github.com/david/grant-matcher/internal/models"
)

// interestKeywords expands each topical interest into the terms scanned
// for in opportunity text.
var interestKeywords = map[string][]string{
	"technology":            {"technology", "software", "digital", "innovation", "data", "cyber", "artificial intelligence"},
	"healthcare":            {"health", "medical", "clinical", "patient", "wellness", "disease", "hospital"},
	"education":             {"education", "training", "learning", "teaching", "curriculum", "literacy", "workforce"},
	"environment":           {"environment", "climate", "conservation", "sustainability", "energy", "pollution", "ecosystem"},
	"community-development": {"community", "neighborhood", "housing", "economic development", "revitalization", "civic"},
	"arts-culture":          {"arts", "culture", "museum", "music", "heritage", "creative", "humanities"},
	"research":              {"research", "study", "science", "laboratory", "analysis", "development"},
	"social-services":       {"social services", "welfare", "homeless", "food security", "counseling", "family services"},
	"infrastructure":        {"infrastructure", "transportation", "construction", "broadband", "water", "utilities"},
	"agriculture":           {"agriculture", "farming", "rural", "food", "crops", "livestock"},
}

// populationKeywords flag opportunities that target a specific served
// population.
var populationKeywords = []string{
	"underserved", "rural", "urban", "youth", "veterans", "low-income",
	"minority", "women", "seniors", "disabilities", "tribal", "immigrant",
}

// communityKeywords and commercialKeywords drive the structure fit
// heuristic for mission-driven versus market-driven entities.
var communityKeywords = []string{"community", "public benefit", "charitable", "volunteer", "social impact"}
var commercialKeywords = []string{"innovation", "commercialization", "business", "market", "product development", "startup"}

// fundingTypeAliases maps an opportunity's type to the requester-side
// funding-type selections it satisfies.
var fundingTypeAliases = map[string][]string{
	"grant": {models.FundingGrants},
	"rfp":   {models.FundingRFPs, models.FundingContracts},
}

// Boost multipliers for the business-profile overlap factors. Higher
// means the signal is treated as more decisive.
const (
	businessProfileBoost = 1.5
	capabilityBoost      = 1.5
	experienceBoost      = 1.3
	missionBoost         = 1.8
)

const neutralFit = 0.5

// ScoreComponents computes the eleven independent fit factors for one
// opportunity. Factors never read each other, and every factor
// saturates its own arithmetic at the range edges as part of its
// contract. The returned list names any factor that still produced a
// value outside [0,1]; a non-empty list means a factor regressed, not
// that the input was unusual.
func ScoreComponents(opp *models.Opportunity, profile *models.RequesterProfile, now time.Time) (models.FitScoreComponents, []string) {
	oppText := opp.SearchText()
	oppKeywords := ExtractKeywords(oppText)

	c := models.FitScoreComponents{
		EligibilityFit:     eligibilityFit(opp, profile, oppText),
		InterestKeywordFit: interestKeywordFit(opp, profile, oppText),
		StructureFit:       structureFit(profile, oppText),
		PopulationFit:      populationFit(profile, oppText),
		AmountFit:          amountFit(opp),
		TimingFit:          timingFit(opp, profile, now),
		BusinessProfileFit: businessProfileFit(profile, oppKeywords),
		CapabilityFit:      capabilityFit(profile, oppKeywords),
		ExperienceFit:      experienceFit(profile, oppKeywords),
		MissionFit:         missionFit(profile, oppKeywords),
		UserPreferenceFit:  userPreferenceFit(opp, profile, oppText),
	}
	violations := rangeViolations(c)
	return clampComponents(c), violations
}

// factorValues pairs each factor name with its value for range checks
// and clamping.
func factorValues(c models.FitScoreComponents) []struct {
	name  string
	value float64
} {
	return []struct {
		name  string
		value float64
	}{
		{"eligibilityFit", c.EligibilityFit},
		{"interestKeywordFit", c.InterestKeywordFit},
		{"structureFit", c.StructureFit},
		{"populationFit", c.PopulationFit},
		{"amountFit", c.AmountFit},
		{"timingFit", c.TimingFit},
		{"businessProfileFit", c.BusinessProfileFit},
		{"capabilityFit", c.CapabilityFit},
		{"experienceFit", c.ExperienceFit},
		{"missionFit", c.MissionFit},
		{"userPreferenceFit", c.UserPreferenceFit},
	}
}

// rangeViolations names every factor whose value lies outside [0,1].
func rangeViolations(c models.FitScoreComponents) []string {
	var out []string
	for _, f := range factorValues(c) {
		if f.value < 0 || f.value > 1 {
			out = append(out, f.name)
		}
	}
	return out
}

func clampComponents(c models.FitScoreComponents) models.FitScoreComponents {
	return models.FitScoreComponents{
		EligibilityFit:     clamp01(c.EligibilityFit),
		InterestKeywordFit: clamp01(c.InterestKeywordFit),
		StructureFit:       clamp01(c.StructureFit),
		PopulationFit:      clamp01(c.PopulationFit),
		AmountFit:          clamp01(c.AmountFit),
		TimingFit:          clamp01(c.TimingFit),
		BusinessProfileFit: clamp01(c.BusinessProfileFit),
		CapabilityFit:      clamp01(c.CapabilityFit),
		ExperienceFit:      clamp01(c.ExperienceFit),
		MissionFit:         clamp01(c.MissionFit),
		UserPreferenceFit:  clamp01(c.UserPreferenceFit),
	}
}

func eligibilityFit(opp *models.Opportunity, profile *models.RequesterProfile, oppText string) float64 {
	score := neutralFit
	lower := strings.ToLower(oppText)

	for _, kw := range entityKeywords[profile.EntityType] {
		if strings.Contains(lower, kw) {
			score += 0.3
			break
		}
	}

	// An "X only" restriction for a different entity type is a strong
	// negative even before the hard filter would catch a structured one.
	// The penalty applies once no matter how many entity types the
	// restriction text names.
restricted:
	for entity, kws := range entityKeywords {
		if entity == profile.EntityType {
			continue
		}
		for _, kw := range kws {
			if strings.Contains(lower, kw+" only") || strings.Contains(lower, "only "+kw) {
				score -= 0.4
				break restricted
			}
		}
	}

	for _, alias := range fundingTypeAliases[strings.ToLower(opp.Type)] {
		for _, ft := range profile.FundingTypes {
			if strings.EqualFold(ft, alias) {
				score += 0.2
				return clamp01(score)
			}
		}
	}
	return clamp01(score)
}

func interestKeywordFit(opp *models.Opportunity, profile *models.RequesterProfile, oppText string) float64 {
	terms := make([]string, 0, len(profile.Keywords))
	for _, interest := range profile.Interests {
		terms = append(terms, interestKeywords[strings.ToLower(interest)]...)
	}
	terms = append(terms, profile.Keywords...)

	lower := strings.ToLower(oppText)
	score := 0.0
	if len(terms) > 0 {
		matched := 0
		for _, t := range terms {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" && strings.Contains(lower, t) {
				matched++
			}
		}
		// Capped denominator so long interest lists do not dilute a
		// handful of strong matches.
		expected := float64(len(terms)) * 0.3
		if expected < 1 {
			expected = 1
		}
		score = float64(matched) / expected
		if score > 1 {
			score = 1
		}
	} else {
		score = neutralFit
	}

	boost := 0.0
	for _, kw := range profile.PositiveKeywords {
		kw = strings.TrimSpace(kw)
		if kw != "" && containsFold(oppText, kw) {
			boost += 0.15
		}
	}
	if boost > 0.30 {
		boost = 0.30
	}

	// Negative keywords in the description were not hard-filtered (the
	// hard stop only reads titles) but still drag the fit down.
	penalty := 0.0
	for _, kw := range profile.NegativeKeywords {
		kw = strings.TrimSpace(kw)
		if kw != "" && containsFold(opp.Description, kw) {
			penalty += 0.25
		}
	}
	if penalty > 0.50 {
		penalty = 0.50
	}

	return clamp01(score + boost - penalty)
}

func structureFit(profile *models.RequesterProfile, oppText string) float64 {
	score := neutralFit
	lower := strings.ToLower(oppText)
	var hints []string
	switch profile.EntityType {
	case models.EntityNonprofit, models.EntityEducation, models.EntityGovernment:
		hints = communityKeywords
	case models.EntityForProfit:
		hints = commercialKeywords
	}
	for _, h := range hints {
		if strings.Contains(lower, h) {
			score += 0.3
			break
		}
	}
	return clamp01(score)
}

func populationFit(profile *models.RequesterProfile, oppText string) float64 {
	if profile.BusinessProfile == nil {
		return neutralFit
	}
	bpText := strings.ToLower(profile.BusinessProfile.CompanyOverview + " " + profile.BusinessProfile.OutcomesImpact)
	lower := strings.ToLower(oppText)
	matches := 0
	for _, kw := range populationKeywords {
		if strings.Contains(lower, kw) && strings.Contains(bpText, kw) {
			matches++
		}
	}
	if matches == 0 {
		return neutralFit
	}
	score := 0.4 + 0.15*float64(matches)
	if score > 1 {
		score = 1
	}
	return score
}

// amountFit scores award size in tiers; larger awards rank slightly
// higher. Unparseable amounts land on 0.7 rather than penalizing the
// opportunity.
func amountFit(opp *models.Opportunity) float64 {
	amount := opp.AmountMax
	if amount == 0 {
		amount = opp.AmountMin
	}
	if amount == 0 && opp.AmountRaw != "" {
		// "minimum $25,000" style text parses with only a floor; tier on
		// that rather than falling through to the unparseable neutral.
		lo, hi, _ := ingest.ParseAmount(opp.AmountRaw, opp.Currency)
		amount = hi
		if amount == 0 {
			amount = lo
		}
	}
	if amount == 0 {
		return 0.7
	}
	switch {
	case amount < 10000:
		return 0.5
	case amount < 50000:
		return 0.7
	case amount < 100000:
		return 0.85
	case amount < 500000:
		return 0.9
	default:
		return 1.0
	}
}

func timingFit(opp *models.Opportunity, profile *models.RequesterProfile, now time.Time) float64 {
	if opp.IsRolling {
		return 0.8
	}
	if opp.CloseAt == nil {
		return 0.6
	}
	days := int(opp.CloseAt.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	switch profile.Timeline {
	case models.TimelineImmediate:
		switch {
		case days <= 30:
			return 1.0
		case days <= 60:
			return 0.7
		default:
			return 0.4
		}
	case models.TimelineThreeMo:
		switch {
		case days <= 90:
			return 1.0
		case days <= 120:
			return 0.8
		default:
			return 0.5
		}
	case models.TimelineSixMo:
		switch {
		case days <= 180:
			return 1.0
		case days <= 240:
			return 0.8
		default:
			return 0.5
		}
	case models.TimelineTwelveMo:
		if days <= 365 {
			return 1.0
		}
		return 0.8
	}
	return 0.6
}

func profileSliceFit(oppKeywords []string, boost float64, texts ...string) float64 {
	combined := strings.Join(texts, " ")
	if strings.TrimSpace(combined) == "" {
		return neutralFit
	}
	words := ExtractKeywords(combined)
	if len(words) == 0 {
		return neutralFit
	}
	return clamp01(overlapScore(words, oppKeywords) * boost)
}

func businessProfileFit(profile *models.RequesterProfile, oppKeywords []string) float64 {
	bp := profile.BusinessProfile
	if bp == nil {
		return neutralFit
	}
	return profileSliceFit(oppKeywords, businessProfileBoost,
		bp.CompanyOverview, strings.Join(bp.Keywords, " "))
}

func capabilityFit(profile *models.RequesterProfile, oppKeywords []string) float64 {
	bp := profile.BusinessProfile
	if bp == nil {
		return neutralFit
	}
	return profileSliceFit(oppKeywords, capabilityBoost,
		bp.ServicesCapabilities, bp.ApproachMethodology)
}

func experienceFit(profile *models.RequesterProfile, oppKeywords []string) float64 {
	bp := profile.BusinessProfile
	if bp == nil {
		return neutralFit
	}
	return profileSliceFit(oppKeywords, experienceBoost,
		bp.PastPerformance, bp.TeamExperience)
}

func missionFit(profile *models.RequesterProfile, oppKeywords []string) float64 {
	bp := profile.BusinessProfile
	if bp == nil {
		return neutralFit
	}
	return profileSliceFit(oppKeywords, missionBoost, bp.Mission, bp.Vision)
}

const preferenceBaseline = 0.7

func userPreferenceFit(opp *models.Opportunity, profile *models.RequesterProfile, oppText string) float64 {
	prefs := profile.Preferences
	if prefs == nil {
		return preferenceBaseline
	}
	score := preferenceBaseline
	score += patternAffinity(opp, oppText, prefs.SavePatterns)
	score -= patternAffinity(opp, oppText, prefs.PassPatterns)
	return clamp01(score)
}

// patternAffinity measures how strongly an opportunity resembles a
// mined pattern set: up to 0.2 for keyword overlap plus 0.15 for an
// agency match.
func patternAffinity(opp *models.Opportunity, oppText string, pat models.PatternSet) float64 {
	affinity := 0.0
	if len(pat.Keywords) > 0 {
		lower := strings.ToLower(oppText)
		matched := 0
		for _, kw := range pat.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				matched++
			}
		}
		affinity += 0.2 * float64(matched) / float64(len(pat.Keywords))
	}
	for _, agency := range pat.Agencies {
		if strings.EqualFold(agency, opp.AgencyName) {
			affinity += 0.15
			break
		}
	}
	return affinity
}
