package models

import (
	"fmt"
	"strings"
	"time"
)

// EntityKind classifies what a query is talking about.
type EntityKind string

const (
	EntityDevice           EntityKind = "device"
	EntityManufacturer     EntityKind = "manufacturer"
	EntityBrand            EntityKind = "brand"
	EntityRegulatoryNumber EntityKind = "regulatory_number"
)

// Entity is a normalized subject extracted from a query. Variants always
// contains the original name at index 0; the remaining variants are
// normalizations and synonyms in a deterministic order so that strategy
// construction is stable across calls.
type Entity struct {
	Name           string     `json:"name"`
	Kind           EntityKind `json:"kind"`
	Variants       []string   `json:"variants"`
	SourcePosition int        `json:"source_position"`
}

// Timeframe narrows record searches. MonthsBack of zero means unspecified;
// ExplicitYear of zero means no year was named in the query.
type Timeframe struct {
	MonthsBack   int `json:"months_back"`
	ExplicitYear int `json:"explicit_year,omitempty"`
}

// IsZero reports whether no timeframe was extracted.
func (t Timeframe) IsZero() bool { return t.MonthsBack == 0 && t.ExplicitYear == 0 }

// Complexity grades a query. It is computed deterministically from the query
// surface and entity count, and is never downgraded by the understanding
// service.
type Complexity string

const (
	ComplexitySimple   Complexity = "SIMPLE"
	ComplexityModerate Complexity = "MODERATE"
	ComplexityComplex  Complexity = "COMPLEX"
)

// Intent captures what the caller wants from the query.
type Intent struct {
	PrimaryGoal      string     `json:"primary_goal"`
	ImplicitConcerns []string   `json:"implicit_concerns"`
	TimeSensitivity  string     `json:"time_sensitivity"`
	Complexity       Complexity `json:"complexity"`
}

// QueryType is the deterministic classification of which entity kinds were
// found, used as the routing-table key.
type QueryType string

const (
	QueryTypeDevice       QueryType = "device"
	QueryTypeManufacturer QueryType = "manufacturer"
	QueryTypeBrand        QueryType = "brand"
	QueryTypeRegulatory   QueryType = "regulatory"
	QueryTypeGeneral      QueryType = "general"
)

// Capability is a closed enumeration of specialist roles, one per category
// of external record. Dispatch goes through a capability→handler lookup
// table, never inheritance.
type Capability string

const (
	CapabilityEvents          Capability = "EVENTS"
	CapabilityRecalls         Capability = "RECALLS"
	CapabilityClearances      Capability = "CLEARANCES"
	CapabilityClassifications Capability = "CLASSIFICATIONS"
	CapabilityPMA             Capability = "PMA"
	CapabilityDeviceID        Capability = "DEVICE_ID"
)

// AllCapabilities lists every specialist role in a stable order.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityEvents,
		CapabilityRecalls,
		CapabilityClearances,
		CapabilityClassifications,
		CapabilityPMA,
		CapabilityDeviceID,
	}
}

// TaskStatus is the per-task state machine. Terminal states are final; the
// scheduler never re-dispatches a failed task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether the status is completed or failed.
func (s TaskStatus) Terminal() bool { return s == TaskCompleted || s == TaskFailed }

// TaskParams carries everything a specialist needs to run independently of
// its sibling tasks.
type TaskParams struct {
	Variants  []string  `json:"variants"`
	Timeframe Timeframe `json:"timeframe"`
	Concerns  []string  `json:"concerns"`
}

// Task is one independent work unit of an execution plan. A task is owned
// exclusively by the scheduler for its lifetime and is mutated only by the
// single worker executing it.
type Task struct {
	ID           string       `json:"id"`
	Capability   Capability   `json:"capability"`
	TargetEntity Entity       `json:"target_entity"`
	Params       TaskParams   `json:"parameters"`
	Status       TaskStatus   `json:"status"`
	Result       *AgentResult `json:"result,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// SearchStrategy is one candidate query formulation in a cascade.
type SearchStrategy struct {
	Name            string `json:"name"`
	FormulatedQuery string `json:"formulated_query"`
	Description     string `json:"description"`
}

// RawRecord is a single record as returned by the external source.
type RawRecord map[string]interface{}

// FetchResult holds the outcome of one task's fetch. TotalAvailable is the
// source's own disclosed cardinality for the strategy that yielded results,
// never a sum across strategies.
type FetchResult struct {
	StrategyUsed   string      `json:"strategy_used"`
	TotalAvailable int         `json:"total_available"`
	Records        []RawRecord `json:"records"`
}

// Citation points at a specific fetched record backing a finding.
type Citation struct {
	RecordID   string `json:"record_id"`
	RecordType string `json:"record_type"`
	Date       string `json:"date,omitempty"`
	Excerpt    string `json:"excerpt,omitempty"`
}

// Finding is a factual statement backed by at least one citation. Construct
// findings through NewFinding; a finding with zero citations, or a citation
// with an empty record id, is rejected.
type Finding struct {
	Statement string     `json:"statement"`
	Citations []Citation `json:"citations"`
}

// NewFinding validates and builds a Finding.
func NewFinding(statement string, citations []Citation) (Finding, error) {
	if strings.TrimSpace(statement) == "" {
		return Finding{}, fmt.Errorf("finding statement is empty")
	}
	if len(citations) == 0 {
		return Finding{}, fmt.Errorf("finding %q has no citations", truncate(statement, 60))
	}
	for i, c := range citations {
		if strings.TrimSpace(c.RecordID) == "" {
			return Finding{}, fmt.Errorf("finding %q citation %d has empty record id", truncate(statement, 60), i)
		}
	}
	out := Finding{Statement: statement, Citations: make([]Citation, len(citations))}
	copy(out.Citations, citations)
	return out, nil
}

// ValueCount is one row of a frequency table, ordered most frequent first.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// DistributionStats summarizes a numeric distribution with standard order
// statistics.
type DistributionStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	Unit   string  `json:"unit,omitempty"`
}

// AggregateStats holds capability-specific statistics computed over the
// records actually fetched for one task.
type AggregateStats struct {
	Frequencies   map[string][]ValueCount      `json:"frequencies,omitempty"`
	TopEntities   map[string][]ValueCount      `json:"top_entities,omitempty"`
	Distributions map[string]DistributionStats `json:"distributions,omitempty"`
}

// AgentResult is the immutable outcome of one specialist task.
// DataPointCount is always the number of records analyzed, never the
// source's disclosed total.
type AgentResult struct {
	Capability     Capability     `json:"capability"`
	DataPointCount int            `json:"data_point_count"`
	Findings       []Finding      `json:"findings"`
	Stats          AggregateStats `json:"aggregate_stats"`
	RawFetch       FetchResult    `json:"raw_fetch"`
}

// ExecutionPlan is the flat, immutable list of independent tasks derived
// from one resolved query.
type ExecutionPlan struct {
	Query     string    `json:"query"`
	QueryType QueryType `json:"query_type"`
	Intent    Intent    `json:"intent"`
	Tasks     []*Task   `json:"tasks"`
	CreatedAt time.Time `json:"created_at"`
}

// SynthesisResult is the terminal answer returned to the caller.
type SynthesisResult struct {
	Narrative   string    `json:"narrative"`
	GeneratedAt time.Time `json:"generated_at"`
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
