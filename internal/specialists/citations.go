package specialists

import (
	"fmt"

	"github.com/medwatch-ai/medwatch/internal/models"
)

const (
	// maxCitations caps how many records are offered to the understanding
	// service and to deterministic findings.
	maxCitations = 10
	// maxExcerptLen keeps citation excerpts to a readable size.
	maxExcerptLen = 240
)

// ExtractCitations builds citations from the leading fetched records. Records
// with no resolvable id are skipped rather than cited anonymously; a citation
// with an empty record id is useless to the caller.
func ExtractCitations(p Profile, records []models.RawRecord) []models.Citation {
	citations := make([]models.Citation, 0, maxCitations)
	for _, rec := range records {
		id := firstNonEmpty(rec, p.IDFields)
		if id == "" {
			continue
		}
		c := models.Citation{
			RecordID:   id,
			RecordType: p.RecordType,
			Excerpt:    truncateExcerpt(firstNonEmpty(rec, p.ExcerptFields)),
		}
		if p.DateField != "" {
			c.Date = rec.StringField(p.DateField)
		}
		citations = append(citations, c)
		if len(citations) == maxCitations {
			break
		}
	}
	return citations
}

func firstNonEmpty(rec models.RawRecord, fields []string) string {
	for _, f := range fields {
		if v := rec.StringField(f); v != "" {
			return v
		}
	}
	return ""
}

func truncateExcerpt(s string) string {
	r := []rune(s)
	if len(r) <= maxExcerptLen {
		return s
	}
	return string(r[:maxExcerptLen]) + "..."
}

// describeCitation renders one citation line for the understanding-service
// prompt, indexed so the model can reference it by number.
func describeCitation(i int, c models.Citation) string {
	line := fmt.Sprintf("[%d] %s %s", i, c.RecordType, c.RecordID)
	if c.Date != "" {
		line += " (" + c.Date + ")"
	}
	if c.Excerpt != "" {
		line += ": " + c.Excerpt
	}
	return line
}
