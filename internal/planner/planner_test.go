package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medwatch-ai/medwatch/internal/models"
)

var testNow = time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)

func TestBuildDeviceQueryActivatesFourCapabilities(t *testing.T) {
	plan := FromQuery("pacemaker safety issues", testNow)

	assert.Equal(t, models.QueryTypeDevice, plan.QueryType)
	require.Len(t, plan.Tasks, 4)

	caps := make([]models.Capability, 0, 4)
	for _, task := range plan.Tasks {
		caps = append(caps, task.Capability)
		assert.Equal(t, "pacemaker", task.TargetEntity.Name)
		assert.Equal(t, models.TaskPending, task.Status)
		assert.NotEmpty(t, task.ID)
	}
	assert.Equal(t, []models.Capability{
		models.CapabilityEvents,
		models.CapabilityRecalls,
		models.CapabilityClearances,
		models.CapabilityClassifications,
	}, caps)
}

func TestBuildComparisonQueryFansOutPerEntity(t *testing.T) {
	plan := FromQuery("compare pacemaker and defibrillator recalls in the last 2 years", testNow)

	require.Len(t, plan.Tasks, 8)
	byEntity := make(map[string]int)
	for _, task := range plan.Tasks {
		byEntity[task.TargetEntity.Name]++
		assert.Equal(t, 24, task.Params.Timeframe.MonthsBack)
	}
	assert.Equal(t, 4, byEntity["pacemaker"])
	assert.Equal(t, 4, byEntity["defibrillator"])
	assert.Equal(t, models.ComplexityComplex, plan.Intent.Complexity)
}

func TestBuildDefaultsTimeframeToTwelveMonths(t *testing.T) {
	plan := FromQuery("pacemaker safety issues", testNow)
	for _, task := range plan.Tasks {
		assert.Equal(t, 12, task.Params.Timeframe.MonthsBack)
	}
}

func TestBuildSyntheticEntityForGeneralQuery(t *testing.T) {
	query := "what is going on"
	plan := Build(query, nil, models.Timeframe{}, models.Intent{PrimaryGoal: "analyze"}, testNow)

	assert.Equal(t, models.QueryTypeGeneral, plan.QueryType)
	require.NotEmpty(t, plan.Tasks)
	assert.LessOrEqual(t, len(plan.Tasks), 4)
	for _, task := range plan.Tasks {
		assert.Equal(t, query, task.TargetEntity.Name)
	}
}

func TestBuildTaskIDsUnique(t *testing.T) {
	plan := FromQuery("compare pacemaker and defibrillator recalls", testNow)
	seen := make(map[string]bool)
	for _, task := range plan.Tasks {
		assert.False(t, seen[task.ID], "duplicate task id %s", task.ID)
		seen[task.ID] = true
	}
}

func TestBuildCarriesConcernsIntoTasks(t *testing.T) {
	in := models.Intent{PrimaryGoal: "safety", ImplicitConcerns: []string{"recall history"}}
	entities := []models.Entity{{Name: "pacemaker", Kind: models.EntityDevice, Variants: []string{"pacemaker"}}}

	plan := Build("pacemaker issues", entities, models.Timeframe{MonthsBack: 6}, in, testNow)
	for _, task := range plan.Tasks {
		assert.Equal(t, []string{"recall history"}, task.Params.Concerns)
		assert.Equal(t, 6, task.Params.Timeframe.MonthsBack)
	}
}
