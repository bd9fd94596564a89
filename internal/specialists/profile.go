// Package specialists analyzes fetched records per capability: statistics,
// citation extraction, and understanding-service-assisted findings with a
// deterministic fallback. Dispatch goes through a closed capability→profile
// lookup table.
package specialists

import (
	"fmt"

	"github.com/medwatch-ai/medwatch/internal/models"
	"github.com/medwatch-ai/medwatch/internal/strategy"
)

// DistributionSpec derives an elapsed-days distribution between two date
// fields of each record.
type DistributionSpec struct {
	Name       string
	StartField string
	EndField   string
}

// Profile describes how one capability searches and analyzes its record
// category. Profiles are the capability→handler table; there is exactly one
// per Capability and the set is closed.
type Profile struct {
	Capability    models.Capability
	Endpoint      string
	RecordType    string
	Sort          string
	Search        strategy.FieldSet
	IDFields      []string // first non-empty value becomes the citation record id
	DateField     string   // citation date
	ExcerptFields []string // first non-empty value becomes the citation excerpt
	FreqFields    []string
	TopFields     []string
	Distributions []DistributionSpec
}

var profiles = map[models.Capability]Profile{
	models.CapabilityEvents: {
		Capability: models.CapabilityEvents,
		Endpoint:   "/device/event.json",
		RecordType: "adverse_event",
		Sort:       "date_received:desc",
		Search: strategy.FieldSet{
			ExactFields:        []string{"device.generic_name", "device.brand_name"},
			ManufacturerFields: []string{"device.manufacturer_d_name"},
			DateField:          "date_received",
		},
		IDFields:      []string{"mdr_report_number", "report_number", "event_key"},
		DateField:     "date_received",
		ExcerptFields: []string{"mdr_text.text", "product_problems", "event_type"},
		FreqFields:    []string{"event_type", "device.generic_name"},
		TopFields:     []string{"device.manufacturer_d_name", "device.brand_name"},
		Distributions: []DistributionSpec{
			{Name: "reporting_delay_days", StartField: "date_of_event", EndField: "date_received"},
		},
	},
	models.CapabilityRecalls: {
		Capability: models.CapabilityRecalls,
		Endpoint:   "/device/recall.json",
		RecordType: "recall",
		Sort:       "event_date_initiated:desc",
		Search: strategy.FieldSet{
			ExactFields:        []string{"product_description", "openfda.device_name"},
			ManufacturerFields: []string{"recalling_firm"},
			RegulatoryFields:   []string{"k_numbers", "pma_numbers"},
			DateField:          "event_date_initiated",
		},
		IDFields:      []string{"recall_number", "res_event_number", "cfres_id"},
		DateField:     "event_date_initiated",
		ExcerptFields: []string{"reason_for_recall", "root_cause_description", "product_description"},
		FreqFields:    []string{"root_cause_description", "recall_status"},
		TopFields:     []string{"recalling_firm"},
		Distributions: []DistributionSpec{
			{Name: "posting_delay_days", StartField: "event_date_initiated", EndField: "event_date_posted"},
		},
	},
	models.CapabilityClearances: {
		Capability: models.CapabilityClearances,
		Endpoint:   "/device/510k.json",
		RecordType: "510k_clearance",
		Sort:       "decision_date:desc",
		Search: strategy.FieldSet{
			ExactFields:        []string{"device_name"},
			ManufacturerFields: []string{"applicant"},
			RegulatoryFields:   []string{"k_number"},
			DateField:          "decision_date",
		},
		IDFields:      []string{"k_number"},
		DateField:     "decision_date",
		ExcerptFields: []string{"device_name", "statement_or_summary"},
		FreqFields:    []string{"advisory_committee_description", "decision_description", "clearance_type"},
		TopFields:     []string{"applicant"},
		Distributions: []DistributionSpec{
			{Name: "review_time_days", StartField: "date_received", EndField: "decision_date"},
		},
	},
	models.CapabilityClassifications: {
		Capability: models.CapabilityClassifications,
		Endpoint:   "/device/classification.json",
		RecordType: "classification",
		Search: strategy.FieldSet{
			ExactFields:        []string{"device_name"},
			ManufacturerFields: []string{},
			DateField:          "",
		},
		IDFields:      []string{"product_code"},
		ExcerptFields: []string{"definition", "device_name"},
		FreqFields:    []string{"device_class", "medical_specialty_description"},
		TopFields:     []string{"regulation_number"},
	},
	models.CapabilityPMA: {
		Capability: models.CapabilityPMA,
		Endpoint:   "/device/pma.json",
		RecordType: "pma",
		Sort:       "decision_date:desc",
		Search: strategy.FieldSet{
			ExactFields:        []string{"trade_name", "generic_name"},
			ManufacturerFields: []string{"applicant"},
			RegulatoryFields:   []string{"pma_number"},
			DateField:          "decision_date",
		},
		IDFields:      []string{"pma_number"},
		DateField:     "decision_date",
		ExcerptFields: []string{"trade_name", "ao_statement"},
		FreqFields:    []string{"decision_code", "advisory_committee_description"},
		TopFields:     []string{"applicant"},
		Distributions: []DistributionSpec{
			{Name: "review_time_days", StartField: "date_received", EndField: "decision_date"},
		},
	},
	models.CapabilityDeviceID: {
		Capability: models.CapabilityDeviceID,
		Endpoint:   "/device/udi.json",
		RecordType: "device_identifier",
		Search: strategy.FieldSet{
			ExactFields:        []string{"brand_name", "device_description"},
			ManufacturerFields: []string{"company_name"},
			DateField:          "",
		},
		IDFields:      []string{"public_device_record_key", "identifiers.id"},
		DateField:     "publish_date",
		ExcerptFields: []string{"device_description", "brand_name"},
		FreqFields:    []string{"device_count_in_base_package", "mri_safety"},
		TopFields:     []string{"company_name", "brand_name"},
	},
}

// ProfileFor returns the profile for a capability. Unknown capabilities are
// a programming error.
func ProfileFor(cap models.Capability) (Profile, error) {
	p, ok := profiles[cap]
	if !ok {
		return Profile{}, fmt.Errorf("no specialist profile for capability %q", cap)
	}
	return p, nil
}
