package match

import (
	"strings"

	"github.com/david/grant-matcher/internal/models"
)

// Pre-filter rule names, in evaluation order.
const (
	RuleAlreadyActioned   = "already_actioned"
	RuleNegativeKeyword   = "negative_keyword"
	RuleStructuredBarrier = "structured_barrier"
	RuleHardPhrase        = "hard_phrase"
)

// Exclusion records which rule removed an opportunity and the term that
// triggered it.
type Exclusion struct {
	Rule string
	Term string
}

// entityKeywords maps an entity type to the terms that signal an
// opportunity is aimed at it. Shared by the pre-filter and the
// eligibility fit factor.
var entityKeywords = map[string][]string{
	models.EntityNonprofit:  {"nonprofit", "non-profit", "501(c)", "charitable", "community organization", "ngo"},
	models.EntityForProfit:  {"business", "company", "corporation", "for-profit", "commercial", "small business", "enterprise"},
	models.EntityGovernment: {"government", "municipal", "state agency", "federal agency", "public sector", "tribal"},
	models.EntityEducation:  {"university", "college", "school", "educational institution", "academic", "higher education"},
	models.EntityIndividual: {"individual", "sole proprietor", "independent researcher", "fellowship applicant"},
}

// structuredEntityHints maps terms found in structured eligibility
// fields (applicant types, eligible entities, activity categories) to
// the entity types they admit.
var structuredEntityHints = []struct {
	term    string
	accepts []string
}{
	{"small business", []string{models.EntityForProfit}},
	{"for-profit", []string{models.EntityForProfit}},
	{"for profit", []string{models.EntityForProfit}},
	{"nonprofit", []string{models.EntityNonprofit}},
	{"non-profit", []string{models.EntityNonprofit}},
	{"501(c)", []string{models.EntityNonprofit}},
	{"institution of higher education", []string{models.EntityEducation}},
	{"higher education", []string{models.EntityEducation}},
	{"university", []string{models.EntityEducation}},
	{"academic institution", []string{models.EntityEducation}},
	{"state government", []string{models.EntityGovernment}},
	{"local government", []string{models.EntityGovernment}},
	{"county government", []string{models.EntityGovernment}},
	{"city or township", []string{models.EntityGovernment}},
	{"tribal government", []string{models.EntityGovernment}},
	{"public housing", []string{models.EntityGovernment}},
	{"individual", []string{models.EntityIndividual}},
	{"unrestricted", nil}, // nil accepts everyone
	{"other", nil},
}

// hardPhrases are text signals that an opportunity is restricted to a
// narrow audience. Each phrase lists the entity types it still admits;
// any other requester is excluded. Used only when no structured
// eligibility data exists.
var hardPhrases = []struct {
	phrase  string
	accepts []string
}{
	{"postdoctoral fellowship", []string{models.EntityEducation, models.EntityIndividual}},
	{"postdoctoral researcher", []string{models.EntityEducation, models.EntityIndividual}},
	{"doctoral dissertation", []string{models.EntityEducation, models.EntityIndividual}},
	{"graduate student", []string{models.EntityEducation, models.EntityIndividual}},
	{"undergraduate student", []string{models.EntityEducation, models.EntityIndividual}},
	{"k-12", []string{models.EntityEducation}},
	{"tenure-track", []string{models.EntityEducation}},
	{"faculty position", []string{models.EntityEducation}},
	{"principal investigator", []string{models.EntityEducation, models.EntityIndividual}},
	{"accredited university", []string{models.EntityEducation}},
	{"school district", []string{models.EntityEducation, models.EntityGovernment}},
	{"tribal governments only", []string{models.EntityGovernment}},
	{"government agencies only", []string{models.EntityGovernment}},
	{"nonprofits only", []string{models.EntityNonprofit}},
	{"individuals only", []string{models.EntityIndividual}},
}

// sbirHints mark business-facing research programs. These routinely use
// academic language ("principal investigator") while being open to
// for-profit applicants, so they bypass the academic-audience rules.
var sbirHints = []string{"sbir", "sttr", "small business innovation research", "small business technology transfer"}

func isSBIR(opp *models.Opportunity) bool {
	text := strings.ToLower(opp.Title + " " + opp.Description + " " + strings.Join(opp.FundingActivityCategories, " "))
	for _, h := range sbirHints {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}

func acceptsEntity(accepts []string, entityType string) bool {
	if accepts == nil {
		return true
	}
	for _, a := range accepts {
		if a == entityType {
			return true
		}
	}
	return false
}

// Exclude evaluates the pre-filter rules in order and reports the first
// one the opportunity fails. Rules short-circuit: a single failure
// removes the opportunity regardless of any other signal.
func Exclude(opp *models.Opportunity, profile *models.RequesterProfile) (Exclusion, bool) {
	if prefs := profile.Preferences; prefs != nil {
		id := opp.ID.String()
		for _, saved := range prefs.SavedOpportunityIDs {
			if saved == id {
				return Exclusion{Rule: RuleAlreadyActioned, Term: "saved"}, true
			}
		}
		for _, passed := range prefs.PassedOpportunityIDs {
			if passed == id {
				return Exclusion{Rule: RuleAlreadyActioned, Term: "passed"}, true
			}
		}
	}

	for _, neg := range profile.NegativeKeywords {
		neg = strings.TrimSpace(neg)
		if neg == "" {
			continue
		}
		if containsFold(opp.Title, neg) {
			return Exclusion{Rule: RuleNegativeKeyword, Term: neg}, true
		}
	}

	if opp.HasStructuredEligibility() {
		if term, excluded := structuredBarrier(opp, profile.EntityType); excluded {
			return Exclusion{Rule: RuleStructuredBarrier, Term: term}, true
		}
		return Exclusion{}, false
	}

	if !isSBIR(opp) {
		text := strings.ToLower(opp.Title + " " + opp.Description)
		for _, hp := range hardPhrases {
			if strings.Contains(text, hp.phrase) && !acceptsEntity(hp.accepts, profile.EntityType) {
				return Exclusion{Rule: RuleHardPhrase, Term: hp.phrase}, true
			}
		}
	}

	return Exclusion{}, false
}

// structuredBarrier checks structured eligibility fields against the
// requester's entity type. The opportunity is excluded only when the
// fields name recognizable audiences and none of them admit the
// requester. Unrecognized or open-ended values pass through.
func structuredBarrier(opp *models.Opportunity, entityType string) (string, bool) {
	fields := make([]string, 0, len(opp.ApplicantTypes)+len(opp.EligibleEntities)+len(opp.FundingActivityCategories))
	fields = append(fields, opp.ApplicantTypes...)
	fields = append(fields, opp.EligibleEntities...)
	fields = append(fields, opp.FundingActivityCategories...)

	recognized := 0
	firstTerm := ""
	for _, f := range fields {
		lf := strings.ToLower(f)
		for _, hint := range structuredEntityHints {
			if !strings.Contains(lf, hint.term) {
				continue
			}
			recognized++
			if acceptsEntity(hint.accepts, entityType) {
				return "", false
			}
			if firstTerm == "" {
				firstTerm = hint.term
			}
		}
	}
	if recognized == 0 {
		return "", false
	}
	// Academic-only restrictions do not bar SBIR/STTR applicants.
	if isSBIR(opp) && (entityType == models.EntityForProfit) {
		return "", false
	}
	return firstTerm, true
}

// Filter removes structurally ineligible opportunities, preserving
// input order. It never mutates its input.
func Filter(opps []models.Opportunity, profile *models.RequesterProfile) []models.Opportunity {
	out := make([]models.Opportunity, 0, len(opps))
	for i := range opps {
		if _, excluded := Exclude(&opps[i], profile); !excluded {
			out = append(out, opps[i])
		}
	}
	return out
}
