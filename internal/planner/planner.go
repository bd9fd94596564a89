// Package planner turns a classified query into the flat execution plan: one
// independent task per (entity, capability) pair. Tasks carry everything
// their specialist needs, so no task ever reads another task's state.
package planner

import (
	"time"

	"github.com/google/uuid"

	"github.com/medwatch-ai/medwatch/internal/extract"
	"github.com/medwatch-ai/medwatch/internal/intent"
	"github.com/medwatch-ai/medwatch/internal/models"
)

// defaultMonthsBack bounds searches when the query names no timeframe.
const defaultMonthsBack = 12

// Build produces the execution plan for a query. Task order is stable:
// entities in extraction order, capabilities in routing-table order.
func Build(query string, entities []models.Entity, tf models.Timeframe, in models.Intent, now time.Time) *models.ExecutionPlan {
	queryType := intent.QueryTypeOf(entities)
	capabilities := intent.Route(queryType)

	if tf.IsZero() {
		tf = models.Timeframe{MonthsBack: defaultMonthsBack}
	}

	targets := entities
	if len(targets) == 0 {
		// A query with no extractable subject still searches broadly.
		targets = []models.Entity{{
			Name:     query,
			Kind:     models.EntityDevice,
			Variants: []string{query},
		}}
	}

	tasks := make([]*models.Task, 0, len(targets)*len(capabilities))
	for _, entity := range targets {
		for _, capability := range capabilities {
			tasks = append(tasks, &models.Task{
				ID:           uuid.NewString(),
				Capability:   capability,
				TargetEntity: entity,
				Params: models.TaskParams{
					Variants:  entity.Variants,
					Timeframe: tf,
					Concerns:  in.ImplicitConcerns,
				},
				Status: models.TaskPending,
			})
		}
	}

	return &models.ExecutionPlan{
		Query:     query,
		QueryType: queryType,
		Intent:    in,
		Tasks:     tasks,
		CreatedAt: now,
	}
}

// FromQuery runs extraction and deterministic classification and builds the
// plan in one step, for callers that do not need service annotation.
func FromQuery(query string, now time.Time) *models.ExecutionPlan {
	entities, tf := extract.Extract(query, now)
	in := models.Intent{
		PrimaryGoal:      "analyze",
		ImplicitConcerns: []string{},
		TimeSensitivity:  "current",
		Complexity:       intent.Classify(query, entities),
	}
	return Build(query, entities, tf, in, now)
}
