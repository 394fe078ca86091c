package match

import (
	"strings"
	"testing"

	"github.com/david/grant-matcher/internal/models"
)

func TestExplain_StrengthsAndConcerns(t *testing.T) {
	opp := models.Opportunity{Title: "Broadband Grants", Type: "grant"}
	profile := models.RequesterProfile{EntityType: models.EntityForProfit}
	c := models.FitScoreComponents{
		EligibilityFit:     0.9,  // strength
		InterestKeywordFit: 0.2,  // concern
		TimingFit:          0.85, // strength
		BusinessProfileFit: 0.5,  // neither
		CapabilityFit:      0.5,
		ExperienceFit:      0.5,
		MissionFit:         0.5,
		UserPreferenceFit:  0.7,
	}

	r := Explain(&opp, &profile, c, 70)
	if len(r.Strengths) != 2 {
		t.Fatalf("expected 2 strengths, got %v", r.Strengths)
	}
	if len(r.Concerns) != 1 {
		t.Fatalf("expected 1 concern, got %v", r.Concerns)
	}
	if !strings.Contains(r.Strengths[0], "eligibility criteria") {
		t.Fatalf("unexpected first strength: %q", r.Strengths[0])
	}
	if !strings.Contains(r.Concerns[0], "interests and keywords") {
		t.Fatalf("unexpected concern: %q", r.Concerns[0])
	}
}

func TestExplain_ThresholdsAreExclusive(t *testing.T) {
	// A value exactly at a threshold lands in neither list.
	opp := models.Opportunity{Title: "Awards"}
	profile := models.RequesterProfile{EntityType: models.EntityNonprofit}
	c := models.FitScoreComponents{
		EligibilityFit:     0.7,
		InterestKeywordFit: 0.3,
		TimingFit:          0.5,
		BusinessProfileFit: 0.5,
		CapabilityFit:      0.5,
		ExperienceFit:      0.5,
		MissionFit:         0.5,
		UserPreferenceFit:  0.7,
	}
	r := Explain(&opp, &profile, c, 50)
	if len(r.Strengths) != 0 || len(r.Concerns) != 0 {
		t.Fatalf("boundary values produced strengths=%v concerns=%v", r.Strengths, r.Concerns)
	}
}

func TestExplain_Deterministic(t *testing.T) {
	opp := models.Opportunity{Title: "Rural Broadband Grants", AgencyName: "USDA", Type: "grant"}
	profile := models.RequesterProfile{
		EntityType:       models.EntityForProfit,
		FundingTypes:     []string{models.FundingGrants},
		PositiveKeywords: []string{"broadband"},
		Preferences: &models.LearnedPreferences{
			SavePatterns: models.PatternSet{Agencies: []string{"USDA"}},
		},
	}
	c := models.FitScoreComponents{EligibilityFit: 0.9, AmountFit: 0.9, UserPreferenceFit: 0.9}

	first := Explain(&opp, &profile, c, 80)
	for i := 0; i < 5; i++ {
		got := Explain(&opp, &profile, c, 80)
		if got.Summary != first.Summary ||
			strings.Join(got.Strengths, "|") != strings.Join(first.Strengths, "|") ||
			strings.Join(got.SpecificReasons, "|") != strings.Join(first.SpecificReasons, "|") {
			t.Fatalf("run %d produced different reasoning", i)
		}
	}
}

func TestSpecificReasons(t *testing.T) {
	opp := models.Opportunity{
		Title:      "Rural Broadband Deployment",
		AgencyName: "USDA",
		Type:       "grant",
	}
	profile := models.RequesterProfile{
		EntityType:       models.EntityForProfit,
		FundingTypes:     []string{models.FundingGrants},
		PositiveKeywords: []string{"broadband"},
		Preferences: &models.LearnedPreferences{
			SavePatterns: models.PatternSet{Agencies: []string{"usda"}},
		},
	}
	c := models.FitScoreComponents{AmountFit: 0.9}

	reasons := specificReasons(&opp, &profile, c)
	want := []string{
		"Matches your preference for grants",
		`Mentions your priority keyword "broadband"`,
		"You have saved other opportunities from USDA",
		"The award size is substantial for this category",
	}
	if len(reasons) != len(want) {
		t.Fatalf("expected %d reasons, got %v", len(want), reasons)
	}
	for i := range want {
		if reasons[i] != want[i] {
			t.Fatalf("reason %d: expected %q, got %q", i, want[i], reasons[i])
		}
	}
}

func TestSummarize_Registers(t *testing.T) {
	opp := models.Opportunity{Title: "Broadband Grants"}
	tests := []struct {
		score    int
		register string
	}{
		{95, "Exceptional match"},
		{80, "Exceptional match"},
		{79, "Strong match"},
		{65, "Strong match"},
		{64, "Moderate match"},
		{50, "Moderate match"},
		{49, "Limited match"},
		{0, "Limited match"},
	}
	for _, tt := range tests {
		got := summarize(&opp, tt.score, nil)
		if !strings.HasPrefix(got, tt.register) {
			t.Errorf("score %d: expected prefix %q, got %q", tt.score, tt.register, got)
		}
	}
}

func TestSummarize_TruncatesLongTitles(t *testing.T) {
	opp := models.Opportunity{Title: strings.Repeat("Broadband ", 12)}
	got := summarize(&opp, 90, nil)
	if !strings.Contains(got, "...") {
		t.Fatalf("expected truncated title in %q", got)
	}
	if strings.Contains(got, opp.Title) {
		t.Fatal("full title should not survive truncation")
	}
}

func TestConfidenceScore(t *testing.T) {
	manySaved := make([]string, 6)
	for i := range manySaved {
		manySaved[i] = "id"
	}

	tests := []struct {
		name     string
		profile  models.RequesterProfile
		expected int
	}{
		{"bare profile", models.RequesterProfile{}, 50},
		{
			"business profile alone",
			models.RequesterProfile{BusinessProfile: &models.BusinessProfile{}},
			70,
		},
		{
			"with past performance",
			models.RequesterProfile{BusinessProfile: &models.BusinessProfile{PastPerformance: "Four contracts delivered."}},
			80,
		},
		{
			"with capabilities too",
			models.RequesterProfile{BusinessProfile: &models.BusinessProfile{
				PastPerformance:      "Four contracts delivered.",
				ServicesCapabilities: "Network engineering.",
			}},
			90,
		},
		{
			"saved history below five adds nothing",
			models.RequesterProfile{Preferences: &models.LearnedPreferences{SavedOpportunityIDs: manySaved[:4]}},
			50,
		},
		{
			"five saved opportunities add ten",
			models.RequesterProfile{Preferences: &models.LearnedPreferences{SavedOpportunityIDs: manySaved[:5]}},
			60,
		},
		{
			"everything caps at 100",
			models.RequesterProfile{
				BusinessProfile: &models.BusinessProfile{
					PastPerformance:      "Four contracts delivered.",
					ServicesCapabilities: "Network engineering.",
				},
				Preferences: &models.LearnedPreferences{SavedOpportunityIDs: manySaved},
			},
			100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConfidenceScore(&tt.profile); got != tt.expected {
				t.Fatalf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestPersonalizedDescription(t *testing.T) {
	opp := models.Opportunity{
		Title:       "Rural Broadband Grants",
		Description: "Funding for last-mile fiber construction.",
	}
	profile := models.RequesterProfile{EntityType: models.EntityForProfit}
	r := models.MatchReasoning{
		Strengths:             []string{"Strength one"},
		Concerns:              []string{"Concern one"},
		EligibilityHighlights: []string{"Highlight one"},
	}

	got := PersonalizedDescription(&opp, &profile, r)
	for _, section := range []string{
		"Funding for last-mile fiber construction.",
		"Why You're Eligible\n- Highlight one",
		"Your Competitive Advantages\n- Strength one",
		"Considerations\n- Concern one",
	} {
		if !strings.Contains(got, section) {
			t.Errorf("missing section %q in:\n%s", section, got)
		}
	}
	if strings.HasSuffix(got, "\n") {
		t.Error("trailing newline should be trimmed")
	}
}

func TestPersonalizedDescription_TruncatesOverview(t *testing.T) {
	opp := models.Opportunity{Description: strings.Repeat("grant funding ", 50)}
	got := PersonalizedDescription(&opp, &models.RequesterProfile{}, models.MatchReasoning{})
	if len(got) > 400 {
		t.Fatalf("overview not truncated: %d chars", len(got))
	}
	if !strings.HasSuffix(strings.TrimSpace(got), "...") {
		t.Fatalf("expected ellipsis, got tail %q", got[len(got)-10:])
	}
}
