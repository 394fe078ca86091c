package models

import (
	"time"

	"github.com/google/uuid"
)

// Opportunity is a single funding listing as handed to us by ingestion.
// Records are read-only once loaded; scoring decorates a copy, never the
// original.
type Opportunity struct {
	ID                uuid.UUID  `json:"id"`
	SourceID          string     `json:"source_id"`
	SourceDomain      string     `json:"source_domain"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	AgencyName        string     `json:"agency_name"`
	AgencyCode        string     `json:"agency_code"`
	OpportunityNumber string     `json:"opportunity_number"`
	ExternalURL       string     `json:"external_url"`
	Location          string     `json:"location"`
	ContactInfo       string     `json:"contact_info"`
	Category          string     `json:"category"`
	Type              string     `json:"type"` // "grant" or "rfp"
	AmountRaw         string     `json:"amount_raw"`
	AmountMin         float64    `json:"amount_min"`
	AmountMax         float64    `json:"amount_max"`
	Currency          string     `json:"currency"`
	OpenAt            *time.Time `json:"open_at"`
	CloseAt           *time.Time `json:"close_at"`
	CloseDateRaw      string     `json:"close_date_raw"`
	IsRolling         bool       `json:"is_rolling"`

	// Structured eligibility data. Frequently absent; the matcher falls
	// back to text scanning when all three are empty.
	ApplicantTypes            []string `json:"applicant_types"`
	EligibleEntities          []string `json:"eligible_entities"`
	FundingActivityCategories []string `json:"funding_activity_categories"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasStructuredEligibility reports whether any structured eligibility
// field carries data.
func (o *Opportunity) HasStructuredEligibility() bool {
	return len(o.ApplicantTypes) > 0 || len(o.EligibleEntities) > 0 || len(o.FundingActivityCategories) > 0
}

// SearchText returns the concatenation of the fields keyword matching
// runs over.
func (o *Opportunity) SearchText() string {
	return o.Title + " " + o.Description + " " + o.Category
}

// ScoredOpportunity is an Opportunity decorated with the results of one
// scoring pass.
type ScoredOpportunity struct {
	Opportunity
	MatchScore              int                `json:"match_score"`
	FitScore                FitScoreComponents `json:"fit_score"`
	Reasoning               MatchReasoning     `json:"match_reasoning"`
	PersonalizedDescription string             `json:"personalized_description"`
}

// FitScoreComponents holds the eleven independent factor scores, each
// in [0,1].
type FitScoreComponents struct {
	EligibilityFit     float64 `json:"eligibility_fit"`
	InterestKeywordFit float64 `json:"interest_keyword_fit"`
	StructureFit       float64 `json:"structure_fit"`
	PopulationFit      float64 `json:"population_fit"`
	AmountFit          float64 `json:"amount_fit"`
	TimingFit          float64 `json:"timing_fit"`
	BusinessProfileFit float64 `json:"business_profile_fit"`
	CapabilityFit      float64 `json:"capability_fit"`
	ExperienceFit      float64 `json:"experience_fit"`
	MissionFit         float64 `json:"mission_fit"`
	UserPreferenceFit  float64 `json:"user_preference_fit"`
}

// MatchReasoning is the human-readable justification attached to each
// scored opportunity.
type MatchReasoning struct {
	Summary               string   `json:"summary"`
	Strengths             []string `json:"strengths"`
	Concerns              []string `json:"concerns"`
	SpecificReasons       []string `json:"specific_reasons"`
	EligibilityHighlights []string `json:"eligibility_highlights"`
	ConfidenceScore       int      `json:"confidence_score"`
}
