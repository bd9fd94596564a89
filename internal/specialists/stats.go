package specialists

import (
	"sort"
	"time"

	"github.com/medwatch-ai/medwatch/internal/models"
)

// topEntityLimit caps how many rows a top-entities table keeps.
const topEntityLimit = 5

// ComputeStats derives the capability's aggregate statistics from the records
// actually fetched. Everything here is computed locally; the source's
// disclosed total never enters any statistic.
func ComputeStats(p Profile, records []models.RawRecord) models.AggregateStats {
	stats := models.AggregateStats{}

	for _, field := range p.FreqFields {
		if table := frequencyTable(records, field, 0); len(table) > 0 {
			if stats.Frequencies == nil {
				stats.Frequencies = make(map[string][]models.ValueCount)
			}
			stats.Frequencies[field] = table
		}
	}

	for _, field := range p.TopFields {
		if table := frequencyTable(records, field, topEntityLimit); len(table) > 0 {
			if stats.TopEntities == nil {
				stats.TopEntities = make(map[string][]models.ValueCount)
			}
			stats.TopEntities[field] = table
		}
	}

	for _, spec := range p.Distributions {
		if dist, ok := elapsedDays(records, spec); ok {
			if stats.Distributions == nil {
				stats.Distributions = make(map[string]models.DistributionStats)
			}
			stats.Distributions[spec.Name] = dist
		}
	}

	return stats
}

// frequencyTable counts distinct values of a field across the records,
// ordered by descending count with value as the tiebreak so the output is
// deterministic. limit of 0 keeps every row.
func frequencyTable(records []models.RawRecord, field string, limit int) []models.ValueCount {
	counts := make(map[string]int)
	for _, rec := range records {
		v := rec.StringField(field)
		if v == "" {
			continue
		}
		counts[v]++
	}
	if len(counts) == 0 {
		return nil
	}

	table := make([]models.ValueCount, 0, len(counts))
	for v, c := range counts {
		table = append(table, models.ValueCount{Value: v, Count: c})
	}
	sort.Slice(table, func(i, j int) bool {
		if table[i].Count != table[j].Count {
			return table[i].Count > table[j].Count
		}
		return table[i].Value < table[j].Value
	})
	if limit > 0 && len(table) > limit {
		table = table[:limit]
	}
	return table
}

// elapsedDays computes the distribution of whole days between two date fields
// of each record. Records missing either date, or with the end before the
// start, are skipped.
func elapsedDays(records []models.RawRecord, spec DistributionSpec) (models.DistributionStats, bool) {
	var samples []float64
	for _, rec := range records {
		start, ok := parseSourceDate(rec.StringField(spec.StartField))
		if !ok {
			continue
		}
		end, ok := parseSourceDate(rec.StringField(spec.EndField))
		if !ok || end.Before(start) {
			continue
		}
		samples = append(samples, end.Sub(start).Hours()/24)
	}
	if len(samples) == 0 {
		return models.DistributionStats{}, false
	}

	sort.Float64s(samples)
	return models.DistributionStats{
		Count:  len(samples),
		Mean:   mean(samples),
		Median: percentile(samples, 0.5),
		P90:    percentile(samples, 0.9),
		Unit:   "days",
	}, true
}

var sourceDateLayouts = []string{"20060102", "2006-01-02"}

func parseSourceDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range sourceDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func mean(sorted []float64) float64 {
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}

// percentile uses nearest-rank on an already sorted sample.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := int(q*float64(len(sorted))+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
