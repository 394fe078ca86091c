package ingest

import (
	"strings"
	"testing"
)

const grantsGovCSV = `Opportunity Title,Opportunity Number,Agency,Description,Close Date,Award Ceiling,Eligible Applicants,Opportunity Type
Rural Broadband Grants,USDA-26-001,USDA,"<p>Last-mile <b>fiber</b> construction.</p>",2026-04-15,"$2,000,000",Small business concerns; Nonprofits,Grant
Community Arts Program,NEA-26-012,NEA,Murals and festivals.,Rolling,"$25,000",Unrestricted,Grant
,,NSF,No title on this row,2026-05-01,,,Grant
`

const samGovCSV = `Title,Notice ID,Department/Ind. Agency,Response Deadline,Opportunity Type
IT Modernization Services,SAM-26-918,GSA,2026-03-30,Combined Synopsis/Solicitation
`

func TestLoadCSV_GrantsGovExport(t *testing.T) {
	opps, err := LoadCSV(strings.NewReader(grantsGovCSV))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The titleless row is dropped.
	if len(opps) != 2 {
		t.Fatalf("expected 2 opportunities, got %d", len(opps))
	}

	first := opps[0]
	if first.Title != "Rural Broadband Grants" {
		t.Fatalf("title: %q", first.Title)
	}
	if first.OpportunityNumber != "USDA-26-001" {
		t.Fatalf("number: %q", first.OpportunityNumber)
	}
	if first.AgencyName != "USDA" {
		t.Fatalf("agency: %q", first.AgencyName)
	}
	if strings.Contains(first.Description, "<") {
		t.Fatalf("description keeps markup: %q", first.Description)
	}
	if !strings.Contains(first.Description, "fiber") {
		t.Fatalf("description lost text: %q", first.Description)
	}
	if first.CloseAt == nil || first.CloseAt.Year() != 2026 {
		t.Fatalf("close date not parsed: %v", first.CloseAt)
	}
	if first.AmountMax != 2000000 {
		t.Fatalf("amount: %v", first.AmountMax)
	}
	if first.Type != "grant" {
		t.Fatalf("type: %q", first.Type)
	}
	if len(first.ApplicantTypes) != 2 {
		t.Fatalf("applicant types: %v", first.ApplicantTypes)
	}

	second := opps[1]
	if !second.IsRolling {
		t.Fatal("rolling deadline not flagged")
	}
	if second.CloseAt != nil {
		t.Fatalf("rolling row has a close date: %v", second.CloseAt)
	}
}

func TestLoadCSV_SamGovAliases(t *testing.T) {
	opps, err := LoadCSV(strings.NewReader(samGovCSV))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	opp := opps[0]
	if opp.OpportunityNumber != "SAM-26-918" {
		t.Fatalf("notice id alias not mapped: %q", opp.OpportunityNumber)
	}
	if opp.AgencyName != "GSA" {
		t.Fatalf("agency alias not mapped: %q", opp.AgencyName)
	}
	if opp.CloseAt == nil {
		t.Fatal("response deadline alias not mapped")
	}
	if opp.Type != "rfp" {
		t.Fatalf("solicitation should normalize to rfp, got %q", opp.Type)
	}
}

func TestLoadCSV_DeterministicIDs(t *testing.T) {
	a, err := LoadCSV(strings.NewReader(grantsGovCSV))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := LoadCSV(strings.NewReader(grantsGovCSV))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("row %d: id changed across reloads: %s vs %s", i, a[i].ID, b[i].ID)
		}
	}
}

func TestLoadCSV_NoTitleColumn(t *testing.T) {
	csv := "Agency,Close Date\nUSDA,2026-04-15\n"
	if _, err := LoadCSV(strings.NewReader(csv)); err == nil {
		t.Fatal("expected an error for a header without a title column")
	}
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{"Grant", "grant"},
		{"Discretionary Grant", "grant"},
		{"Solicitation", "rfp"},
		{"Combined Synopsis/Solicitation", "rfp"},
		{"RFP", "rfp"},
		{"Contract Opportunity", "rfp"},
		{"", "grant"},
		{"Notice", "grant"},
	}
	for _, tt := range tests {
		if got := normalizeType(tt.raw); got != tt.expected {
			t.Errorf("%q: expected %q, got %q", tt.raw, tt.expected, got)
		}
	}
}
