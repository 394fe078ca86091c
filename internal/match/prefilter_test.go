package match

import (
	"testing"

	"github.com/google/uuid"

	"github.com/david/grant-matcher/internal/models"
)

func forProfitProfile() *models.RequesterProfile {
	return &models.RequesterProfile{
		UserID:       "u1",
		EntityType:   models.EntityForProfit,
		FundingTypes: []string{models.FundingGrants},
	}
}

func TestExclude_AlreadyActioned(t *testing.T) {
	opp := models.Opportunity{ID: uuid.New(), Title: "Rural Broadband Expansion"}
	profile := forProfitProfile()
	profile.Preferences = &models.LearnedPreferences{
		SavedOpportunityIDs: []string{opp.ID.String()},
	}

	excl, excluded := Exclude(&opp, profile)
	if !excluded {
		t.Fatal("expected saved opportunity to be excluded")
	}
	if excl.Rule != RuleAlreadyActioned {
		t.Fatalf("expected rule %s, got %s", RuleAlreadyActioned, excl.Rule)
	}

	profile.Preferences = &models.LearnedPreferences{
		PassedOpportunityIDs: []string{opp.ID.String()},
	}
	if _, excluded := Exclude(&opp, profile); !excluded {
		t.Fatal("expected passed opportunity to be excluded")
	}
}

func TestExclude_NegativeKeywordTitleOnly(t *testing.T) {
	profile := forProfitProfile()
	profile.NegativeKeywords = []string{"postdoctoral"}

	inTitle := models.Opportunity{ID: uuid.New(), Title: "Postdoctoral Fellowship in Marine Biology"}
	excl, excluded := Exclude(&inTitle, profile)
	if !excluded {
		t.Fatal("expected title keyword hit to exclude")
	}
	if excl.Rule != RuleNegativeKeyword || excl.Term != "postdoctoral" {
		t.Fatalf("unexpected exclusion %+v", excl)
	}

	// A negative keyword in the description alone does not pre-filter;
	// it only lowers the interest factor later.
	inBody := models.Opportunity{
		ID:             uuid.New(),
		Title:          "Marine Research Grants",
		Description:    "Open to labs hosting postdoctoral researchers and companies alike.",
		ApplicantTypes: []string{"Small business"},
	}
	if _, excluded := Exclude(&inBody, profile); excluded {
		t.Fatal("description-only keyword must not exclude")
	}
}

func TestExclude_StructuredBarrier(t *testing.T) {
	tests := []struct {
		name           string
		applicantTypes []string
		entityType     string
		excluded       bool
	}{
		{
			name:           "academic only bars for-profit",
			applicantTypes: []string{"Institution of higher education"},
			entityType:     models.EntityForProfit,
			excluded:       true,
		},
		{
			name:           "academic only admits education",
			applicantTypes: []string{"Institution of higher education"},
			entityType:     models.EntityEducation,
			excluded:       false,
		},
		{
			name:           "mixed list admits any named entity",
			applicantTypes: []string{"Nonprofits", "Small business concerns"},
			entityType:     models.EntityForProfit,
			excluded:       false,
		},
		{
			name:           "unrecognized values pass through",
			applicantTypes: []string{"Entities under section 17(b)"},
			entityType:     models.EntityForProfit,
			excluded:       false,
		},
		{
			name:           "unrestricted admits everyone",
			applicantTypes: []string{"Unrestricted"},
			entityType:     models.EntityIndividual,
			excluded:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp := models.Opportunity{
				ID:             uuid.New(),
				Title:          "Applied Research Grants",
				ApplicantTypes: tt.applicantTypes,
			}
			profile := &models.RequesterProfile{
				UserID:       "u1",
				EntityType:   tt.entityType,
				FundingTypes: []string{models.FundingGrants},
			}
			_, excluded := Exclude(&opp, profile)
			if excluded != tt.excluded {
				t.Fatalf("expected excluded=%v, got %v", tt.excluded, excluded)
			}
		})
	}
}

func TestExclude_SBIRBypassesAcademicSignals(t *testing.T) {
	profile := forProfitProfile()

	// Academic phrasing in an SBIR solicitation must not bar a company.
	sbir := models.Opportunity{
		ID:          uuid.New(),
		Title:       "SBIR Phase I: Advanced Materials",
		Description: "Each applicant must name a principal investigator for the project.",
	}
	if _, excluded := Exclude(&sbir, profile); excluded {
		t.Fatal("SBIR opportunity must not be excluded for a for-profit requester")
	}

	// The same phrase without the SBIR marker does exclude.
	plain := models.Opportunity{
		ID:          uuid.New(),
		Title:       "Advanced Materials Research",
		Description: "Each applicant must name a principal investigator for the project.",
	}
	excl, excluded := Exclude(&plain, profile)
	if !excluded {
		t.Fatal("expected academic phrase to exclude a for-profit requester")
	}
	if excl.Rule != RuleHardPhrase {
		t.Fatalf("expected rule %s, got %s", RuleHardPhrase, excl.Rule)
	}

	// Structured academic-only eligibility is also lifted for SBIR.
	sbirStructured := models.Opportunity{
		ID:             uuid.New(),
		Title:          "STTR Phase II Awards",
		ApplicantTypes: []string{"Institution of higher education"},
	}
	if _, excluded := Exclude(&sbirStructured, profile); excluded {
		t.Fatal("STTR structured restriction must not bar a for-profit requester")
	}
}

func TestExclude_StructuredDataSuppressesPhraseScan(t *testing.T) {
	profile := forProfitProfile()
	opp := models.Opportunity{
		ID:             uuid.New(),
		Title:          "Community Science Grants",
		Description:    "Projects may involve K-12 outreach led by a principal investigator.",
		ApplicantTypes: []string{"Small business"},
	}
	if _, excluded := Exclude(&opp, profile); excluded {
		t.Fatal("structured eligibility should override text phrase signals")
	}
}

func TestFilter_PreservesOrder(t *testing.T) {
	profile := forProfitProfile()
	opps := []models.Opportunity{
		{ID: uuid.New(), Title: "Alpha Grants"},
		{ID: uuid.New(), Title: "Postdoctoral Fellowship Beta"},
		{ID: uuid.New(), Title: "Gamma Contracts"},
		{ID: uuid.New(), Title: "Delta Awards"},
	}
	profile.NegativeKeywords = []string{"fellowship"}

	got := Filter(opps, profile)
	want := []string{"Alpha Grants", "Gamma Contracts", "Delta Awards"}
	if len(got) != len(want) {
		t.Fatalf("expected %d survivors, got %d", len(want), len(got))
	}
	for i, title := range want {
		if got[i].Title != title {
			t.Fatalf("position %d: expected %q, got %q", i, title, got[i].Title)
		}
	}
}

func TestFilter_IgnoresPositiveSignals(t *testing.T) {
	// Exclusion rules must not be softened by interests or positive
	// keywords: the pre-filter looks at eligibility alone.
	base := &models.RequesterProfile{
		UserID:       "u1",
		EntityType:   models.EntityForProfit,
		FundingTypes: []string{models.FundingGrants},
	}
	enthusiast := &models.RequesterProfile{
		UserID:           "u1",
		EntityType:       models.EntityForProfit,
		FundingTypes:     []string{models.FundingGrants},
		Interests:        []string{"education", "research"},
		PositiveKeywords: []string{"fellowship", "tenure-track"},
	}

	opp := models.Opportunity{
		ID:          uuid.New(),
		Title:       "Tenure-Track Faculty Startup Awards",
		Description: "Support for new tenure-track faculty.",
	}
	_, baseExcluded := Exclude(&opp, base)
	_, enthusiastExcluded := Exclude(&opp, enthusiast)
	if baseExcluded != enthusiastExcluded {
		t.Fatal("positive signals must not change pre-filter outcomes")
	}
	if !baseExcluded {
		t.Fatal("expected tenure-track opportunity to exclude a for-profit requester")
	}
}
