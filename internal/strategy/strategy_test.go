package strategy

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medwatch-ai/medwatch/internal/models"
)

var testNow = time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)

var eventFields = FieldSet{
	ExactFields:        []string{"device.generic_name", "device.brand_name"},
	ManufacturerFields: []string{"device.manufacturer_d_name"},
	DateField:          "date_received",
}

func TestBuildCascadeOrderForPlural(t *testing.T) {
	entity := models.Entity{
		Name:     "pacemakers",
		Kind:     models.EntityDevice,
		Variants: []string{"pacemakers", "pacemaker", "cardiac pacemaker"},
	}

	strategies := Build(entity, models.Timeframe{}, eventFields, testNow)

	require.NotEmpty(t, strategies)
	assert.Equal(t, "singular", strategies[0].Name)
	assert.Contains(t, strategies[0].FormulatedQuery, `"pacemaker"`)
	assert.Equal(t, "exact", strategies[1].Name)
	assert.Contains(t, strategies[1].FormulatedQuery, `"pacemakers"`)
}

func TestBuildNoSingularForNonPlural(t *testing.T) {
	entity := models.Entity{
		Name:     "stent",
		Kind:     models.EntityDevice,
		Variants: []string{"stent", "coronary stent"},
	}

	strategies := Build(entity, models.Timeframe{}, eventFields, testNow)

	require.NotEmpty(t, strategies)
	assert.Equal(t, "exact", strategies[0].Name)
	for _, s := range strategies {
		assert.NotEqual(t, "singular", s.Name)
	}
}

func TestBuildWildcardOnlyForMultiWord(t *testing.T) {
	multi := models.Entity{
		Name:     "insulin pump",
		Kind:     models.EntityDevice,
		Variants: []string{"insulin pump"},
	}
	strategies := Build(multi, models.Timeframe{}, eventFields, testNow)
	var names []string
	for _, s := range strategies {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "wildcard")

	single := models.Entity{Name: "stent", Kind: models.EntityDevice, Variants: []string{"stent"}}
	for _, s := range Build(single, models.Timeframe{}, eventFields, testNow) {
		assert.NotEqual(t, "wildcard", s.Name)
	}
}

func TestBuildDateFilterAppended(t *testing.T) {
	entity := models.Entity{Name: "stent", Kind: models.EntityDevice, Variants: []string{"stent"}}
	tf := models.Timeframe{MonthsBack: 12}

	strategies := Build(entity, tf, eventFields, testNow)

	require.NotEmpty(t, strategies)
	for _, s := range strategies {
		assert.Contains(t, s.FormulatedQuery, "date_received:[20250830 TO 20260830]", "strategy %s", s.Name)
	}
}

func TestBuildManufacturerFieldSet(t *testing.T) {
	entity := models.Entity{
		Name:     "Medtronic",
		Kind:     models.EntityManufacturer,
		Variants: []string{"Medtronic", "medtronic"},
	}

	strategies := Build(entity, models.Timeframe{}, eventFields, testNow)

	require.NotEmpty(t, strategies)
	for _, s := range strategies {
		assert.Contains(t, s.FormulatedQuery, "manufacturer_d_name")
		assert.NotContains(t, s.FormulatedQuery, "generic_name")
	}
}

func TestBuildRegulatoryNumberFieldSet(t *testing.T) {
	entity := models.Entity{
		Name:     "k123456",
		Kind:     models.EntityRegulatoryNumber,
		Variants: []string{"k123456"},
	}
	fields := FieldSet{
		ExactFields:      []string{"device_name"},
		RegulatoryFields: []string{"k_number"},
		DateField:        "decision_date",
	}

	strategies := Build(entity, models.Timeframe{}, fields, testNow)

	require.NotEmpty(t, strategies)
	assert.Equal(t, "exact", strategies[0].Name)
	assert.Contains(t, strategies[0].FormulatedQuery, `k_number:"K123456"`)
	for _, s := range strategies {
		assert.NotEqual(t, "singular", s.Name, "filing numbers are never singularized")
	}
}

func TestBuildVariantCountCapped(t *testing.T) {
	entity := models.Entity{
		Name: "mesh",
		Kind: models.EntityDevice,
		Variants: []string{
			"mesh", "surgical mesh", "hernia mesh", "pelvic mesh",
			"transvaginal mesh", "mesh implant", "polypropylene mesh",
		},
	}

	strategies := Build(entity, models.Timeframe{}, eventFields, testNow)

	var variantStrategy *models.SearchStrategy
	for i := range strategies {
		if strategies[i].Name == "variants" {
			variantStrategy = &strategies[i]
		}
	}
	require.NotNil(t, variantStrategy)
	// 4 variant terms across 2 fields gives at most 8 clauses.
	assert.LessOrEqual(t, strings.Count(variantStrategy.FormulatedQuery, ":"), 8)
}

func TestBuildDeterministic(t *testing.T) {
	entity := models.Entity{
		Name:     "pacemakers",
		Kind:     models.EntityDevice,
		Variants: []string{"pacemakers", "pacemaker", "cardiac pacemaker"},
	}
	a := Build(entity, models.Timeframe{MonthsBack: 6}, eventFields, testNow)
	b := Build(entity, models.Timeframe{MonthsBack: 6}, eventFields, testNow)
	assert.Equal(t, a, b)
}
