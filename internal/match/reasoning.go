package match

import (
	"fmt"
	"strings"

	"github.com/david/grant-matcher/internal/models"
)

const maxReasonItems = 5

// factorRule maps a threshold on one factor to strength and concern
// sentences. Sentences are fixed templates so the output stays
// deterministic for identical inputs.
type factorRule struct {
	value    func(models.FitScoreComponents) float64
	strong   float64
	weak     float64
	strength string
	concern  string
}

var factorRules = []factorRule{
	{
		value:    func(c models.FitScoreComponents) float64 { return c.EligibilityFit },
		strong:   0.7,
		weak:     0.4,
		strength: "Your organization type is a strong match for this opportunity's eligibility criteria",
		concern:  "Eligibility requirements may not align with your organization type",
	},
	{
		value:    func(c models.FitScoreComponents) float64 { return c.InterestKeywordFit },
		strong:   0.7,
		weak:     0.3,
		strength: "The focus areas closely match your stated interests and keywords",
		concern:  "Limited overlap with your stated interests and keywords",
	},
	{
		value:    func(c models.FitScoreComponents) float64 { return c.BusinessProfileFit },
		strong:   0.7,
		weak:     0.35,
		strength: "Your company profile aligns well with what this funder is looking for",
		concern:  "Your company profile shows limited alignment with this opportunity",
	},
	{
		value:    func(c models.FitScoreComponents) float64 { return c.CapabilityFit },
		strong:   0.7,
		weak:     0.35,
		strength: "Your services and capabilities directly address the scope of work",
		concern:  "The required capabilities may fall outside your core services",
	},
	{
		value:    func(c models.FitScoreComponents) float64 { return c.ExperienceFit },
		strong:   0.7,
		weak:     0.35,
		strength: "Your past performance and team experience are relevant to this work",
		concern:  "You may need to demonstrate additional relevant experience",
	},
	{
		value:    func(c models.FitScoreComponents) float64 { return c.MissionFit },
		strong:   0.7,
		weak:     0.35,
		strength: "This opportunity strongly aligns with your mission and vision",
		concern:  "The funder's goals diverge from your stated mission",
	},
	{
		value:    func(c models.FitScoreComponents) float64 { return c.TimingFit },
		strong:   0.8,
		weak:     0.3,
		strength: "The application deadline fits your preferred timeline",
		concern:  "The deadline is tight or outside your preferred timeline",
	},
	{
		value:    func(c models.FitScoreComponents) float64 { return c.UserPreferenceFit },
		strong:   0.8,
		weak:     0.4,
		strength: "This resembles opportunities you have saved before",
		concern:  "This resembles opportunities you have passed on before",
	},
}

// Explain converts factor scores into the reasoning payload rendered in
// the UI.
func Explain(opp *models.Opportunity, profile *models.RequesterProfile, c models.FitScoreComponents, matchScore int) models.MatchReasoning {
	r := models.MatchReasoning{}

	for _, rule := range factorRules {
		v := rule.value(c)
		if v > rule.strong && len(r.Strengths) < maxReasonItems {
			r.Strengths = append(r.Strengths, rule.strength)
		} else if v < rule.weak && len(r.Concerns) < maxReasonItems {
			r.Concerns = append(r.Concerns, rule.concern)
		}
	}

	r.SpecificReasons = specificReasons(opp, profile, c)
	r.EligibilityHighlights = eligibilityHighlights(opp, profile)
	r.Summary = summarize(opp, matchScore, r.Strengths)
	r.ConfidenceScore = ConfidenceScore(profile)
	return r
}

func specificReasons(opp *models.Opportunity, profile *models.RequesterProfile, c models.FitScoreComponents) []string {
	var reasons []string
	add := func(s string) {
		if len(reasons) < maxReasonItems {
			reasons = append(reasons, s)
		}
	}
	for _, ft := range profile.FundingTypes {
		for _, alias := range fundingTypeAliases[strings.ToLower(opp.Type)] {
			if strings.EqualFold(ft, alias) {
				add(fmt.Sprintf("Matches your preference for %s", ft))
			}
		}
	}
	for _, kw := range profile.PositiveKeywords {
		kw = strings.TrimSpace(kw)
		if kw != "" && containsFold(opp.SearchText(), kw) {
			add(fmt.Sprintf("Mentions your priority keyword %q", kw))
		}
	}
	if opp.AgencyName != "" && profile.Preferences != nil {
		for _, agency := range profile.Preferences.SavePatterns.Agencies {
			if strings.EqualFold(agency, opp.AgencyName) {
				add(fmt.Sprintf("You have saved other opportunities from %s", opp.AgencyName))
			}
		}
	}
	if c.AmountFit >= 0.85 {
		add("The award size is substantial for this category")
	}
	return reasons
}

func eligibilityHighlights(opp *models.Opportunity, profile *models.RequesterProfile) []string {
	var highlights []string
	add := func(s string) {
		if len(highlights) < maxReasonItems {
			highlights = append(highlights, s)
		}
	}
	lower := strings.ToLower(opp.SearchText())
	for _, kw := range entityKeywords[profile.EntityType] {
		if strings.Contains(lower, kw) {
			add(fmt.Sprintf("Explicitly open to %s applicants (%q)", profile.EntityType, kw))
			break
		}
	}
	if isSBIR(opp) && profile.EntityType == models.EntityForProfit {
		add("SBIR/STTR programs are designed for small businesses")
	}
	for _, at := range opp.ApplicantTypes {
		lat := strings.ToLower(at)
		for _, hint := range structuredEntityHints {
			if strings.Contains(lat, hint.term) && acceptsEntity(hint.accepts, profile.EntityType) {
				add(fmt.Sprintf("Listed applicant type: %s", at))
			}
		}
	}
	return highlights
}

// summarize picks the register of the one-line summary from the final
// score.
func summarize(opp *models.Opportunity, matchScore int, strengths []string) string {
	name := opp.Title
	if len(name) > 60 {
		name = name[:57] + "..."
	}
	switch {
	case matchScore >= 80:
		return fmt.Sprintf("Exceptional match (%d%%): %s is highly aligned with your profile.", matchScore, name)
	case matchScore >= 65:
		return fmt.Sprintf("Strong match (%d%%): %s aligns well with your profile.", matchScore, name)
	case matchScore >= 50:
		if len(strengths) > 0 {
			return fmt.Sprintf("Moderate match (%d%%): %s has some promising alignment.", matchScore, name)
		}
		return fmt.Sprintf("Moderate match (%d%%): %s may be worth a closer look.", matchScore, name)
	default:
		return fmt.Sprintf("Limited match (%d%%): %s shows weak alignment with your profile.", matchScore, name)
	}
}

// ConfidenceScore measures how much evidence backs the reasoning, not
// how certain the score is. More profile data means more confidence.
func ConfidenceScore(profile *models.RequesterProfile) int {
	score := 50
	if bp := profile.BusinessProfile; bp != nil {
		score += 20
		if strings.TrimSpace(bp.PastPerformance) != "" {
			score += 10
		}
		if strings.TrimSpace(bp.ServicesCapabilities) != "" {
			score += 10
		}
	}
	if prefs := profile.Preferences; prefs != nil && len(prefs.SavedOpportunityIDs) >= 5 {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}

// PersonalizedDescription renders the sectioned narrative shown on the
// opportunity detail card.
func PersonalizedDescription(opp *models.Opportunity, profile *models.RequesterProfile, r models.MatchReasoning) string {
	var b strings.Builder

	overview := opp.Description
	if len(overview) > 400 {
		overview = overview[:397] + "..."
	}
	if strings.TrimSpace(overview) != "" {
		b.WriteString(overview)
		b.WriteString("\n\n")
	}

	if len(r.EligibilityHighlights) > 0 {
		b.WriteString("Why You're Eligible\n")
		for _, h := range r.EligibilityHighlights {
			b.WriteString("- " + h + "\n")
		}
		b.WriteString("\n")
	}
	if len(r.Strengths) > 0 {
		b.WriteString("Your Competitive Advantages\n")
		for _, s := range r.Strengths {
			b.WriteString("- " + s + "\n")
		}
		b.WriteString("\n")
	}
	if len(r.Concerns) > 0 {
		b.WriteString("Considerations\n")
		for _, c := range r.Concerns {
			b.WriteString("- " + c + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
