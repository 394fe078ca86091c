package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/david/grant-matcher/internal/models"
)

// Column aliases across the export formats we accept. Grants.gov and
// SAM.gov name the same concepts differently, so lookup is by the first
// alias present in the header row.
var csvColumnAliases = map[string][]string{
	"title":           {"title", "opportunity title"},
	"description":     {"description", "synopsis"},
	"deadline":        {"deadline", "response deadline", "close date", "archive date"},
	"agency":          {"agency", "department", "organization", "department/ind. agency", "agency name"},
	"agency_code":     {"agency code", "cgac"},
	"url":             {"url", "link", "additional info link"},
	"amount":          {"amount", "award amount", "award ceiling", "estimated total program funding"},
	"number":          {"opportunity number", "notice id", "sol#", "solicitation number"},
	"location":        {"location", "place of performance", "popcity/state"},
	"contact":         {"contact", "primary contact", "contact info", "primary contact email"},
	"category":        {"category", "category of funding activity", "naics"},
	"type":            {"type", "opportunity type"},
	"applicant_types": {"eligible applicants", "applicant types", "applicant eligibility"},
	"posted":          {"posted date", "open date", "postedate"},
}

type csvHeader map[string]int

func indexHeader(record []string) csvHeader {
	byName := make(map[string]int, len(record))
	for i, col := range record {
		byName[strings.ToLower(cleanText(col))] = i
	}
	h := make(csvHeader, len(csvColumnAliases))
	for field, aliases := range csvColumnAliases {
		for _, alias := range aliases {
			if idx, ok := byName[alias]; ok {
				h[field] = idx
				break
			}
		}
	}
	return h
}

func (h csvHeader) get(record []string, field string) string {
	idx, ok := h[field]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// opportunityNamespace makes ingested IDs deterministic: reloading the
// same export yields the same UUIDs, so saved/passed ids survive a
// re-ingest.
var opportunityNamespace = uuid.MustParse("7f1e3a52-9c41-4b8d-a6f0-2d85c3e9b014")

// LoadCSV reads a grants/contracts export and returns normalized
// opportunities. Rows without a title are skipped; every other field
// degrades to empty rather than failing the load.
func LoadCSV(r io.Reader) ([]models.Opportunity, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headerRow, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	header := indexHeader(headerRow)
	if _, ok := header["title"]; !ok {
		return nil, fmt.Errorf("csv header has no recognizable title column")
	}

	var opps []models.Opportunity
	now := time.Now().UTC()
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed row should not sink the whole export.
			continue
		}

		title := cleanText(header.get(record, "title"))
		if title == "" {
			continue
		}

		opp := models.Opportunity{
			Title:             title,
			Description:       NormalizeDescription(header.get(record, "description")),
			AgencyName:        cleanText(header.get(record, "agency")),
			AgencyCode:        header.get(record, "agency_code"),
			OpportunityNumber: header.get(record, "number"),
			ExternalURL:       header.get(record, "url"),
			Location:          cleanText(header.get(record, "location")),
			ContactInfo:       cleanText(header.get(record, "contact")),
			Category:          cleanText(header.get(record, "category")),
			Type:              normalizeType(header.get(record, "type")),
			AmountRaw:         header.get(record, "amount"),
			CreatedAt:         now,
			UpdatedAt:         now,
		}

		key := opp.OpportunityNumber
		if key == "" {
			key = opp.ExternalURL
		}
		if key == "" {
			key = opp.Title
		}
		opp.ID = uuid.NewSHA1(opportunityNamespace, []byte(key))
		opp.SourceID = key

		if raw := header.get(record, "deadline"); raw != "" {
			opp.CloseDateRaw = raw
			if strings.Contains(strings.ToLower(raw), "rolling") {
				opp.IsRolling = true
			} else if dt, err := ParseDate(raw); err == nil {
				opp.CloseAt = &dt
			}
		}
		if raw := header.get(record, "posted"); raw != "" {
			if dt, err := ParseDate(raw); err == nil {
				opp.OpenAt = &dt
			}
		}
		if opp.AmountRaw != "" {
			min, max, currency := ParseAmount(opp.AmountRaw, "USD")
			opp.AmountMin = min
			opp.AmountMax = max
			opp.Currency = currency
		}
		if raw := header.get(record, "applicant_types"); raw != "" {
			opp.ApplicantTypes = splitAndCleanList(raw)
		}

		opps = append(opps, opp)
	}
	return opps, nil
}

// normalizeType collapses the source's type vocabulary onto grant/rfp.
func normalizeType(raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "grant"):
		return "grant"
	case strings.Contains(lower, "solicitation"), strings.Contains(lower, "rfp"),
		strings.Contains(lower, "contract"), strings.Contains(lower, "combined synopsis"):
		return "rfp"
	case raw == "":
		return "grant"
	default:
		return "grant"
	}
}
