// Package strategy builds the ordered cascade of query formulations tried
// against the record source for one task. Construction is a pure function of
// the entity, timeframe, and field set, so the cascade is identical on every
// call.
package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/medwatch-ai/medwatch/internal/extract"
	"github.com/medwatch-ai/medwatch/internal/models"
)

// FieldSet names the source fields a capability searches. Manufacturer
// entities search ManufacturerFields, regulatory-number entities search
// RegulatoryFields; DateField, when set, receives the timeframe range
// filter.
type FieldSet struct {
	ExactFields        []string
	ManufacturerFields []string
	RegulatoryFields   []string
	DateField          string
}

// maxVariantTerms caps how many variants are OR'ed into the normalized
// variant strategy so formulated queries stay within source limits.
const maxVariantTerms = 4

// Build returns the strategy cascade for an entity, strictly ordered:
// singular form (when the name is a simple plural), exact match, normalized
// variants, and a wildcard formulation for multi-word names. Each strategy
// carries the date filter when a timeframe is set.
func Build(entity models.Entity, tf models.Timeframe, fields FieldSet, now time.Time) []models.SearchStrategy {
	searchFields := fields.ExactFields
	switch {
	case entity.Kind == models.EntityManufacturer && len(fields.ManufacturerFields) > 0:
		searchFields = fields.ManufacturerFields
	case entity.Kind == models.EntityRegulatoryNumber && len(fields.RegulatoryFields) > 0:
		searchFields = fields.RegulatoryFields
	}
	if len(searchFields) == 0 {
		return nil
	}

	dateFilter := dateRangeClause(fields.DateField, tf, now)
	name := strings.ToLower(strings.TrimSpace(entity.Name))
	if entity.Kind == models.EntityRegulatoryNumber {
		// Filing numbers are stored uppercase by the source.
		name = strings.ToUpper(strings.TrimSpace(entity.Name))
	}

	var out []models.SearchStrategy
	seen := make(map[string]bool)
	add := func(s models.SearchStrategy) {
		if s.FormulatedQuery == "" || seen[s.FormulatedQuery] {
			return
		}
		seen[s.FormulatedQuery] = true
		out = append(out, s)
	}

	if singular := extract.Singularize(name); singular != name && entity.Kind != models.EntityRegulatoryNumber {
		add(models.SearchStrategy{
			Name:            "singular",
			FormulatedQuery: withDate(termQuery(searchFields, singular), dateFilter),
			Description:     fmt.Sprintf("singular form %q", singular),
		})
	}

	add(models.SearchStrategy{
		Name:            "exact",
		FormulatedQuery: withDate(termQuery(searchFields, name), dateFilter),
		Description:     fmt.Sprintf("exact match %q", name),
	})

	if variantQ := variantQuery(searchFields, entity.Variants, name); variantQ != "" {
		add(models.SearchStrategy{
			Name:            "variants",
			FormulatedQuery: withDate(variantQ, dateFilter),
			Description:     "normalized variants and synonyms",
		})
	}

	if strings.Contains(name, " ") {
		add(models.SearchStrategy{
			Name:            "wildcard",
			FormulatedQuery: withDate(wildcardQuery(searchFields, name), dateFilter),
			Description:     "multi-word wildcard match",
		})
	}

	return out
}

// termQuery ORs a quoted term across the search fields.
func termQuery(fields []string, term string) string {
	clauses := make([]string, 0, len(fields))
	for _, f := range fields {
		clauses = append(clauses, fmt.Sprintf("%s:%q", f, term))
	}
	return group(clauses, "OR")
}

// variantQuery ORs the normalized variants (beyond the original name) across
// the search fields, capped to keep the query bounded.
func variantQuery(fields []string, variants []string, original string) string {
	var clauses []string
	used := 0
	for _, v := range variants {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || v == strings.ToLower(original) {
			continue
		}
		for _, f := range fields {
			clauses = append(clauses, fmt.Sprintf("%s:%q", f, v))
		}
		used++
		if used == maxVariantTerms {
			break
		}
	}
	return group(clauses, "OR")
}

// wildcardQuery ANDs the words of a multi-word name, with a trailing
// wildcard on the final word to catch suffix variation.
func wildcardQuery(fields []string, name string) string {
	words := strings.Fields(name)
	if len(words) < 2 {
		return ""
	}
	var perField []string
	for _, f := range fields {
		clauses := make([]string, 0, len(words))
		for i, w := range words {
			if i == len(words)-1 {
				clauses = append(clauses, fmt.Sprintf("%s:%s*", f, w))
			} else {
				clauses = append(clauses, fmt.Sprintf("%s:%q", f, w))
			}
		}
		perField = append(perField, group(clauses, "AND"))
	}
	return group(perField, "OR")
}

// dateRangeClause formats the timeframe as a source date-range filter.
// Returns "" when no date field or timeframe applies.
func dateRangeClause(field string, tf models.Timeframe, now time.Time) string {
	if field == "" || tf.IsZero() {
		return ""
	}
	start := now.AddDate(0, -tf.MonthsBack, 0)
	if tf.ExplicitYear > 0 {
		yearStart := time.Date(tf.ExplicitYear, time.January, 1, 0, 0, 0, 0, time.UTC)
		if yearStart.After(start) {
			start = yearStart
		}
	}
	return fmt.Sprintf("%s:[%s TO %s]", field, start.Format("20060102"), now.Format("20060102"))
}

func withDate(query, dateFilter string) string {
	if query == "" {
		return ""
	}
	if dateFilter == "" {
		return query
	}
	return query + " AND " + dateFilter
}

func group(clauses []string, op string) string {
	switch len(clauses) {
	case 0:
		return ""
	case 1:
		return clauses[0]
	default:
		return "(" + strings.Join(clauses, " "+op+" ") + ")"
	}
}
