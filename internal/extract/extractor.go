// Package extract turns a free-text query into normalized entities and an
// optional timeframe. Extraction is deterministic and idempotent: the same
// query string always yields the same output, and no network calls happen
// here.
package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/medwatch-ai/medwatch/internal/models"
)

// deviceVocabulary lists known device terms, longest-match-first so that
// "insulin pump" wins over "pump". Plural forms are matched by the compiled
// patterns.
var deviceVocabulary = []string{
	"implantable cardioverter defibrillator",
	"continuous glucose monitor",
	"left ventricular assist device",
	"artificial hip replacement",
	"hip replacement",
	"knee replacement",
	"hip implant",
	"knee implant",
	"breast implant",
	"insulin pump",
	"infusion pump",
	"surgical mesh",
	"hernia mesh",
	"glucose monitor",
	"hearing aid",
	"contact lens",
	"heart valve",
	"bone screw",
	"spinal cord stimulator",
	"pacemaker",
	"defibrillator",
	"stent",
	"catheter",
	"ventilator",
	"endoscope",
	"nebulizer",
	"thermometer",
	"stethoscope",
	"syringe",
	"scalpel",
	"forceps",
	"respirator",
}

// knownManufacturers is the seed list of firms recognized without any
// "made by" cue. Matching is case-insensitive on word boundaries.
var knownManufacturers = []string{
	"medtronic",
	"abbott",
	"boston scientific",
	"johnson & johnson",
	"johnson and johnson",
	"stryker",
	"baxter",
	"philips",
	"ge healthcare",
	"siemens healthineers",
	"siemens",
	"zimmer biomet",
	"edwards lifesciences",
	"becton dickinson",
	"smith & nephew",
	"olympus",
	"terumo",
	"cook medical",
	"teleflex",
	"intuitive surgical",
	"dexcom",
	"insulet",
}

var (
	regulatoryNumberPattern = regexp.MustCompile(`\b(?:K\d{6}|P\d{6}(?:/S\d{3})?|DEN\d{6})\b`)
	quotedBrandPattern      = regexp.MustCompile(`"([^"]{2,60})"|“([^”]{2,60})”`)
	manufacturerCuePattern  = regexp.MustCompile(`(?i)\b(?:made|manufactured|produced|sold|marketed)\s+by\s+([A-Z][A-Za-z&.-]+(?:\s+[A-Z][A-Za-z&.-]+){0,2})`)
	yearPattern             = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	yearRangePattern        = regexp.MustCompile(`\b(19\d{2}|20\d{2})\s*(?:-|–|to|through)\s*(19\d{2}|20\d{2})\b`)
	relativeSpanPattern     = regexp.MustCompile(`(?i)\b(?:last|past|previous)\s+(\d{1,2})\s+(month|year)s?\b`)
	prepositionPattern      = regexp.MustCompile(`(?i)\b(?:about|for|on|regarding|concerning|with|of)\s+((?:[a-z][a-z-]*\s+){1,3}[a-z][a-z-]*)`)
	tokenPattern            = regexp.MustCompile(`[a-z][a-z-]*`)
)

var devicePatterns = compileVocabulary(deviceVocabulary)
var manufacturerPatterns = compileVocabulary(knownManufacturers)

func compileVocabulary(terms []string) []*regexp.Regexp {
	sorted := make([]string, len(terms))
	copy(sorted, terms)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	out := make([]*regexp.Regexp, 0, len(sorted))
	for _, term := range sorted {
		escaped := regexp.QuoteMeta(term)
		escaped = strings.ReplaceAll(escaped, `\ `, `\s+`)
		out = append(out, regexp.MustCompile(`(?i)\b`+escaped+`(?:e?s)?\b`))
	}
	return out
}

// stopwords excluded from noun-phrase fallback entities.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "this": true, "that": true,
	"these": true, "those": true, "my": true, "your": true, "their": true,
	"last": true, "past": true, "recent": true, "new": true, "latest": true,
	"year": true, "years": true, "month": true, "months": true,
	"safety": true, "issues": true, "problems": true, "recalls": true,
	"events": true, "data": true, "information": true, "records": true,
}

type match struct {
	name string
	kind models.EntityKind
	pos  int
}

// Extract returns the entities found in the query ordered by position of
// first match, and the extracted timeframe. The reference time is used only
// to convert explicit years to months-back.
func Extract(query string, now time.Time) ([]models.Entity, models.Timeframe) {
	matches := collectMatches(query)

	// No device/manufacturer/brand pattern matched: fall back to a noun
	// phrase following a preposition, bounded to 2-4 tokens.
	if !hasSubjectMatch(matches) {
		if m, ok := fallbackNounPhrase(query); ok {
			matches = append(matches, m)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })

	entities := make([]models.Entity, 0, len(matches))
	seen := make(map[string]bool)
	for _, m := range matches {
		key := strings.ToLower(m.name) + "|" + string(m.kind)
		if seen[key] {
			continue
		}
		seen[key] = true
		entities = append(entities, models.Entity{
			Name:           m.name,
			Kind:           m.kind,
			Variants:       BuildVariants(m.name, m.kind),
			SourcePosition: m.pos,
		})
	}

	return entities, ExtractTimeframe(query, now)
}

func collectMatches(query string) []match {
	var matches []match

	for _, loc := range regulatoryNumberPattern.FindAllStringIndex(query, -1) {
		matches = append(matches, match{
			name: query[loc[0]:loc[1]],
			kind: models.EntityRegulatoryNumber,
			pos:  loc[0],
		})
	}

	for _, re := range devicePatterns {
		for _, loc := range re.FindAllStringIndex(query, -1) {
			if covered(matches, loc[0], loc[1]) {
				continue
			}
			matches = append(matches, match{
				name: strings.ToLower(query[loc[0]:loc[1]]),
				kind: models.EntityDevice,
				pos:  loc[0],
			})
		}
	}

	for _, re := range manufacturerPatterns {
		for _, loc := range re.FindAllStringIndex(query, -1) {
			if covered(matches, loc[0], loc[1]) {
				continue
			}
			matches = append(matches, match{
				name: query[loc[0]:loc[1]],
				kind: models.EntityManufacturer,
				pos:  loc[0],
			})
		}
	}

	for _, sub := range manufacturerCuePattern.FindAllStringSubmatchIndex(query, -1) {
		start, end := sub[2], sub[3]
		if start < 0 || covered(matches, start, end) {
			continue
		}
		matches = append(matches, match{
			name: strings.TrimSpace(query[start:end]),
			kind: models.EntityManufacturer,
			pos:  start,
		})
	}

	for _, sub := range quotedBrandPattern.FindAllStringSubmatchIndex(query, -1) {
		start, end := sub[2], sub[3]
		if start < 0 {
			start, end = sub[4], sub[5]
		}
		if start < 0 || covered(matches, start, end) {
			continue
		}
		matches = append(matches, match{
			name: strings.TrimSpace(query[start:end]),
			kind: models.EntityBrand,
			pos:  start,
		})
	}

	return matches
}

func covered(matches []match, start, end int) bool {
	for _, m := range matches {
		if start >= m.pos && end <= m.pos+len(m.name) {
			return true
		}
	}
	return false
}

func hasSubjectMatch(matches []match) bool {
	for _, m := range matches {
		if m.kind != models.EntityRegulatoryNumber {
			return true
		}
	}
	return false
}

func fallbackNounPhrase(query string) (match, bool) {
	sub := prepositionPattern.FindStringSubmatchIndex(strings.ToLower(query))
	if sub == nil {
		return match{}, false
	}
	phraseStart := sub[2]
	raw := strings.ToLower(query[sub[2]:sub[3]])

	tokens := tokenPattern.FindAllString(raw, -1)
	kept := make([]string, 0, 4)
	for _, tok := range tokens {
		if stopwords[tok] {
			continue
		}
		kept = append(kept, tok)
		if len(kept) == 4 {
			break
		}
	}
	if len(kept) == 0 {
		return match{}, false
	}
	return match{name: strings.Join(kept, " "), kind: models.EntityDevice, pos: phraseStart}, true
}

// BuildVariants returns the deterministic variant list for an entity name.
// The original name is always index 0.
func BuildVariants(name string, kind models.EntityKind) []string {
	variants := []string{name}
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		for _, existing := range variants {
			if strings.EqualFold(existing, v) {
				return
			}
		}
		variants = append(variants, v)
	}

	lower := strings.ToLower(name)
	add(lower)

	if kind == models.EntityRegulatoryNumber {
		add(strings.ToUpper(name))
		return variants
	}

	if singular := Singularize(lower); singular != lower {
		add(singular)
	}
	if strings.Contains(lower, " ") {
		add(strings.ReplaceAll(lower, " ", "_"))
	}
	if strings.Contains(lower, "_") {
		add(strings.ReplaceAll(lower, "_", " "))
	}

	for _, syn := range SynonymsFor(lower) {
		add(syn)
		if len(variants) >= maxVariants {
			break
		}
	}
	if singular := Singularize(lower); singular != lower {
		for _, syn := range SynonymsFor(singular) {
			add(syn)
			if len(variants) >= maxVariants {
				break
			}
		}
	}

	if len(variants) > maxVariants {
		variants = variants[:maxVariants]
	}
	return variants
}

// maxVariants bounds the variant list so formulated queries stay small.
const maxVariants = 8

// Singularize maps simple English plurals to their singular form. Words
// ending in "ss" are left alone.
func Singularize(word string) string {
	switch {
	case strings.HasSuffix(word, "ss"):
		return word
	case strings.HasSuffix(word, "ies") && len(word) > 3:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "ches"), strings.HasSuffix(word, "shes"),
		strings.HasSuffix(word, "xes"), strings.HasSuffix(word, "zes"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s") && len(word) > 1:
		return word[:len(word)-1]
	default:
		return word
	}
}

// ExtractTimeframe recognizes relative phrases, explicit years, and explicit
// year ranges. A zero Timeframe means nothing was recognized.
func ExtractTimeframe(query string, now time.Time) models.Timeframe {
	lower := strings.ToLower(query)

	if sub := relativeSpanPattern.FindStringSubmatch(query); sub != nil {
		n, err := strconv.Atoi(sub[1])
		if err == nil && n > 0 {
			months := n
			if strings.EqualFold(sub[2], "year") {
				months = n * 12
			}
			return models.Timeframe{MonthsBack: months}
		}
	}

	if strings.Contains(lower, "past year") || strings.Contains(lower, "last year") ||
		strings.Contains(lower, "previous year") {
		return models.Timeframe{MonthsBack: 12}
	}
	if strings.Contains(lower, "past decade") || strings.Contains(lower, "last decade") {
		return models.Timeframe{MonthsBack: 120}
	}
	if strings.Contains(lower, "past month") || strings.Contains(lower, "last month") {
		return models.Timeframe{MonthsBack: 1}
	}
	if strings.Contains(lower, "recent") || strings.Contains(lower, "lately") {
		return models.Timeframe{MonthsBack: 6}
	}

	if sub := yearRangePattern.FindStringSubmatch(query); sub != nil {
		from, _ := strconv.Atoi(sub[1])
		to, _ := strconv.Atoi(sub[2])
		if to < from {
			from, to = to, from
		}
		return models.Timeframe{
			MonthsBack:   monthsSinceYearStart(from, now),
			ExplicitYear: from,
		}
	}

	if sub := yearPattern.FindStringSubmatch(query); sub != nil {
		year, _ := strconv.Atoi(sub[1])
		if year <= now.Year() {
			return models.Timeframe{
				MonthsBack:   monthsSinceYearStart(year, now),
				ExplicitYear: year,
			}
		}
	}

	return models.Timeframe{}
}

func monthsSinceYearStart(year int, now time.Time) int {
	months := (now.Year()-year)*12 + int(now.Month())
	if months < 1 {
		months = 1
	}
	return months
}
