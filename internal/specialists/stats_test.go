package specialists

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medwatch-ai/medwatch/internal/models"
)

func eventRecord(eventType, manufacturer, eventDate, receivedDate string) models.RawRecord {
	return models.RawRecord{
		"event_type":    eventType,
		"date_of_event": eventDate,
		"date_received": receivedDate,
		"device": []interface{}{
			map[string]interface{}{
				"generic_name":        "pacemaker",
				"manufacturer_d_name": manufacturer,
			},
		},
	}
}

func TestComputeStatsFrequenciesAndTopEntities(t *testing.T) {
	profile, err := ProfileFor(models.CapabilityEvents)
	require.NoError(t, err)

	records := []models.RawRecord{
		eventRecord("Malfunction", "Acme Medical", "", ""),
		eventRecord("Malfunction", "Acme Medical", "", ""),
		eventRecord("Injury", "Beta Devices", "", ""),
	}

	stats := ComputeStats(profile, records)

	freq := stats.Frequencies["event_type"]
	require.Len(t, freq, 2)
	assert.Equal(t, models.ValueCount{Value: "Malfunction", Count: 2}, freq[0])
	assert.Equal(t, models.ValueCount{Value: "Injury", Count: 1}, freq[1])

	top := stats.TopEntities["device.manufacturer_d_name"]
	require.NotEmpty(t, top)
	assert.Equal(t, "Acme Medical", top[0].Value)
	assert.Equal(t, 2, top[0].Count)
}

func TestComputeStatsTieBreaksByValue(t *testing.T) {
	profile, err := ProfileFor(models.CapabilityEvents)
	require.NoError(t, err)

	records := []models.RawRecord{
		eventRecord("Injury", "", "", ""),
		eventRecord("Death", "", "", ""),
	}

	stats := ComputeStats(profile, records)
	freq := stats.Frequencies["event_type"]
	require.Len(t, freq, 2)
	assert.Equal(t, "Death", freq[0].Value)
	assert.Equal(t, "Injury", freq[1].Value)
}

func TestComputeStatsReportingDelayDistribution(t *testing.T) {
	profile, err := ProfileFor(models.CapabilityEvents)
	require.NoError(t, err)

	records := []models.RawRecord{
		eventRecord("Malfunction", "", "20250101", "20250111"), // 10 days
		eventRecord("Malfunction", "", "20250101", "20250121"), // 20 days
		eventRecord("Malfunction", "", "20250101", "20250131"), // 30 days
		eventRecord("Malfunction", "", "", "20250131"),         // missing start, skipped
		eventRecord("Malfunction", "", "20250131", "20250101"), // end before start, skipped
	}

	stats := ComputeStats(profile, records)
	dist, ok := stats.Distributions["reporting_delay_days"]
	require.True(t, ok)
	assert.Equal(t, 3, dist.Count)
	assert.InDelta(t, 20.0, dist.Mean, 0.01)
	assert.InDelta(t, 20.0, dist.Median, 0.01)
	assert.InDelta(t, 30.0, dist.P90, 0.01)
	assert.Equal(t, "days", dist.Unit)
}

func TestComputeStatsEmptyRecordsYieldNothing(t *testing.T) {
	profile, err := ProfileFor(models.CapabilityEvents)
	require.NoError(t, err)

	stats := ComputeStats(profile, nil)
	assert.Empty(t, stats.Frequencies)
	assert.Empty(t, stats.TopEntities)
	assert.Empty(t, stats.Distributions)
}

func TestExtractCitationsSkipsRecordsWithoutID(t *testing.T) {
	profile, err := ProfileFor(models.CapabilityEvents)
	require.NoError(t, err)

	records := []models.RawRecord{
		{"mdr_report_number": "MDR-1", "date_received": "20250110", "event_type": "Injury"},
		{"event_type": "Malfunction"}, // no id, skipped
		{"report_number": "RPT-2", "event_type": "Death"},
	}

	citations := ExtractCitations(profile, records)
	require.Len(t, citations, 2)
	assert.Equal(t, "MDR-1", citations[0].RecordID)
	assert.Equal(t, "adverse_event", citations[0].RecordType)
	assert.Equal(t, "20250110", citations[0].Date)
	assert.Equal(t, "Injury", citations[0].Excerpt)
	assert.Equal(t, "RPT-2", citations[1].RecordID)
}

func TestExtractCitationsCapped(t *testing.T) {
	profile, err := ProfileFor(models.CapabilityClearances)
	require.NoError(t, err)

	var records []models.RawRecord
	for i := 0; i < 25; i++ {
		records = append(records, models.RawRecord{
			"k_number":    "K12345" + string(rune('0'+i%10)),
			"device_name": "infusion pump",
		})
	}

	citations := ExtractCitations(profile, records)
	assert.Len(t, citations, maxCitations)
}

func TestProfileForAllCapabilities(t *testing.T) {
	for _, cap := range models.AllCapabilities() {
		p, err := ProfileFor(cap)
		require.NoError(t, err, "capability %s", cap)
		assert.Equal(t, cap, p.Capability)
		assert.NotEmpty(t, p.Endpoint)
		assert.NotEmpty(t, p.RecordType)
		assert.NotEmpty(t, p.IDFields)
		assert.NotEmpty(t, p.Search.ExactFields)
	}

	_, err := ProfileFor(models.Capability("BOGUS"))
	assert.Error(t, err)
}
