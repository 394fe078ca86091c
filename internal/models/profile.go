package models

import "time"

// Entity types a requester can declare.
const (
	EntityNonprofit  = "nonprofit"
	EntityForProfit  = "for-profit"
	EntityGovernment = "government"
	EntityEducation  = "education"
	EntityIndividual = "individual"
)

// Funding type selections.
const (
	FundingGrants    = "grants"
	FundingRFPs      = "rfps"
	FundingContracts = "contracts"
)

// Timeline preferences for how soon the requester wants to apply.
const (
	TimelineImmediate = "immediate"
	TimelineThreeMo   = "3-months"
	TimelineSixMo     = "6-months"
	TimelineTwelveMo  = "12-months"
)

// RequesterProfile carries everything the matcher knows about the
// organization asking for matches. BusinessProfile and Preferences are
// optional; scoring treats their absence as neutral.
type RequesterProfile struct {
	UserID           string   `json:"user_id" yaml:"user_id"`
	EntityType       string   `json:"entity_type" yaml:"entity_type"`
	FundingTypes     []string `json:"funding_types" yaml:"funding_types"`
	Timeline         string   `json:"timeline" yaml:"timeline"`
	Interests        []string `json:"interests" yaml:"interests"`
	Keywords         []string `json:"keywords" yaml:"keywords"`
	PositiveKeywords []string `json:"positive_keywords" yaml:"positive_keywords"`
	NegativeKeywords []string `json:"negative_keywords" yaml:"negative_keywords"`

	BusinessProfile *BusinessProfile    `json:"business_profile,omitempty" yaml:"business_profile,omitempty"`
	Preferences     *LearnedPreferences `json:"preferences,omitempty" yaml:"preferences,omitempty"`
}

// BusinessProfile is extracted from uploaded company documents by an
// external pipeline. Every field may be empty.
type BusinessProfile struct {
	CompanyOverview      string   `json:"company_overview" yaml:"company_overview"`
	Mission              string   `json:"mission" yaml:"mission"`
	Vision               string   `json:"vision" yaml:"vision"`
	ServicesCapabilities string   `json:"services_capabilities" yaml:"services_capabilities"`
	PastPerformance      string   `json:"past_performance" yaml:"past_performance"`
	TeamExperience       string   `json:"team_experience" yaml:"team_experience"`
	ApproachMethodology  string   `json:"approach_methodology" yaml:"approach_methodology"`
	PricingModel         string   `json:"pricing_model" yaml:"pricing_model"`
	Certifications       []string `json:"certifications" yaml:"certifications"`
	OutcomesImpact       string   `json:"outcomes_impact" yaml:"outcomes_impact"`
	Keywords             []string `json:"keywords" yaml:"keywords"`
}

// PatternSet is a frequency summary of opportunities the user acted on.
type PatternSet struct {
	Keywords []string `json:"keywords" yaml:"keywords"`
	Agencies []string `json:"agencies" yaml:"agencies"`
	Amounts  []string `json:"amounts" yaml:"amounts"`
}

// LearnedPreferences is the output of the preference learner: which
// opportunities the user saved, passed, or applied to, plus frequency
// patterns mined from those actions.
type LearnedPreferences struct {
	SavedOpportunityIDs   []string   `json:"saved_opportunity_ids" yaml:"saved_opportunity_ids"`
	PassedOpportunityIDs  []string   `json:"passed_opportunity_ids" yaml:"passed_opportunity_ids"`
	AppliedOpportunityIDs []string   `json:"applied_opportunity_ids" yaml:"applied_opportunity_ids"`
	SavePatterns          PatternSet `json:"save_patterns" yaml:"save_patterns"`
	PassPatterns          PatternSet `json:"pass_patterns" yaml:"pass_patterns"`
	LastAnalyzed          time.Time  `json:"last_analyzed" yaml:"last_analyzed"`
}

// Action kinds recorded in the behavioral log.
const (
	ActionSave  = "save"
	ActionPass  = "pass"
	ActionApply = "apply"
)

// ActionEvent is one row of the behavioral action log. The opportunity
// snapshot is captured at action time so pattern mining does not depend
// on the listing still existing.
type ActionEvent struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	Action        string       `json:"action"`
	OpportunityID string       `json:"opportunity_id"`
	Snapshot      *Opportunity `json:"snapshot,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}
