// Package intent classifies queries and routes them to capabilities. The
// classification and the routing table are deterministic; the understanding
// service only annotates goals and concerns, and a fixed fallback stands in
// when it fails.
package intent

import (
	"strings"

	"github.com/medwatch-ai/medwatch/internal/models"
)

// comparisonMarkers force COMPLEX complexity regardless of anything the
// understanding service says.
var comparisonMarkers = []string{
	" vs ", " vs. ", " versus ", "compare ", "compared to", "comparison",
	"difference between", "better than", "worse than",
}

var moderateMarkers = []string{
	"trend", "over time", "why ", "how often", "correlat", "pattern",
}

// Classify grades the query's complexity from its surface and entity count.
// The grade is computed once and never downgraded later in the pipeline.
func Classify(query string, entities []models.Entity) models.Complexity {
	q := " " + strings.ToLower(query) + " "

	for _, m := range comparisonMarkers {
		if strings.Contains(q, m) {
			return models.ComplexityComplex
		}
	}
	if countKind(entities, models.EntityDevice)+countKind(entities, models.EntityBrand) >= 2 {
		return models.ComplexityComplex
	}
	if len(entities) >= 2 {
		return models.ComplexityModerate
	}
	for _, m := range moderateMarkers {
		if strings.Contains(q, m) {
			return models.ComplexityModerate
		}
	}
	return models.ComplexitySimple
}

// QueryTypeOf maps the extracted entity kinds to the routing-table key.
// Regulatory numbers win because they identify a specific filing; devices win
// over manufacturers because device questions are the common case when both
// appear.
func QueryTypeOf(entities []models.Entity) models.QueryType {
	if countKind(entities, models.EntityRegulatoryNumber) > 0 {
		return models.QueryTypeRegulatory
	}
	if countKind(entities, models.EntityDevice) > 0 {
		return models.QueryTypeDevice
	}
	if countKind(entities, models.EntityBrand) > 0 {
		return models.QueryTypeBrand
	}
	if countKind(entities, models.EntityManufacturer) > 0 {
		return models.QueryTypeManufacturer
	}
	return models.QueryTypeGeneral
}

// routingTable is the static query-type→capability mapping. Every row stays
// within four capabilities so one query never fans out across the whole
// specialist set.
var routingTable = map[models.QueryType][]models.Capability{
	models.QueryTypeDevice: {
		models.CapabilityEvents,
		models.CapabilityRecalls,
		models.CapabilityClearances,
		models.CapabilityClassifications,
	},
	models.QueryTypeManufacturer: {
		models.CapabilityEvents,
		models.CapabilityRecalls,
		models.CapabilityClearances,
	},
	models.QueryTypeBrand: {
		models.CapabilityEvents,
		models.CapabilityRecalls,
		models.CapabilityDeviceID,
	},
	models.QueryTypeRegulatory: {
		models.CapabilityClearances,
		models.CapabilityPMA,
		models.CapabilityRecalls,
	},
	models.QueryTypeGeneral: {
		models.CapabilityEvents,
		models.CapabilityRecalls,
	},
}

// Route returns the capabilities to activate for a query type, in the
// table's stable order. The returned slice is a copy.
func Route(qt models.QueryType) []models.Capability {
	caps := routingTable[qt]
	if caps == nil {
		caps = routingTable[models.QueryTypeGeneral]
	}
	out := make([]models.Capability, len(caps))
	copy(out, caps)
	return out
}

func countKind(entities []models.Entity, kind models.EntityKind) int {
	n := 0
	for _, e := range entities {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
