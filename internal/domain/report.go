package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

const DefaultLawyerCost = "Not estimated"

type Issue struct {
	Title          string   `json:"title"`
	Section        string   `json:"section"`
	Severity       Severity `json:"severity"`
	Issue          string   `json:"issue"`
	Recommendation string   `json:"recommendation"`
	LegalNote      string   `json:"legalNote"`
}

type Positive struct {
	Title string `json:"title"`
	Note  string `json:"note"`
}

// RiskReport is the analysis contract as received. Score, level and lawyer
// cost are optional: nil means the field was absent or unusable. Defects
// names every field that could not be used as sent.
type RiskReport struct {
	OverallScore         *int       `json:"overallScore,omitempty"`
	RiskLevel            *RiskLevel `json:"riskLevel,omitempty"`
	ComparisonToStandard string     `json:"comparisonToStandard,omitempty"`
	CriticalIssues       []Issue    `json:"criticalIssues"`
	Warnings             []Issue    `json:"warnings"`
	Positives            []Positive `json:"positives"`
	Recommendations      []string   `json:"recommendations"`
	EstimatedLawyerCost  *string    `json:"estimatedLawyerCost,omitempty"`
	Defects              []string   `json:"defects,omitempty"`
}

// LawyerCost returns the estimate or the fixed placeholder.
func (r RiskReport) LawyerCost() string {
	if r.EstimatedLawyerCost == nil || strings.TrimSpace(*r.EstimatedLawyerCost) == "" {
		return DefaultLawyerCost
	}
	return *r.EstimatedLawyerCost
}

// DecodeRiskReport decodes an analysis payload field by field. Only a body
// that is not a JSON object fails; any single unusable field is dropped and
// recorded in Defects.
func DecodeRiskReport(raw []byte) (RiskReport, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return RiskReport{}, fmt.Errorf("%w: empty analysis body", ErrMalformedResponse)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil || fields == nil {
		return RiskReport{}, fmt.Errorf("%w: analysis body is not a JSON object", ErrMalformedResponse)
	}

	d := &reportDecoder{fields: fields}
	r := RiskReport{
		OverallScore:         d.score("overallScore"),
		RiskLevel:            d.level("riskLevel"),
		ComparisonToStandard: d.optionalString("comparisonToStandard"),
		CriticalIssues:       d.issues("criticalIssues"),
		Warnings:             d.issues("warnings"),
		Positives:            d.positives("positives"),
		Recommendations:      d.stringList("recommendations"),
	}
	if cost := d.optionalString("estimatedLawyerCost"); cost != "" {
		r.EstimatedLawyerCost = &cost
	}
	r.Defects = d.defects
	return r, nil
}

type reportDecoder struct {
	fields  map[string]json.RawMessage
	defects []string
}

func (d *reportDecoder) defect(rule string) {
	d.defects = append(d.defects, "report."+rule)
}

// lookup returns the raw value for key, or nil when the key is absent or null.
func (d *reportDecoder) lookup(key string) json.RawMessage {
	raw, ok := d.fields[key]
	if !ok || isNull(raw) {
		return nil
	}
	return raw
}

func (d *reportDecoder) score(key string) *int {
	raw := d.lookup(key)
	if raw == nil {
		d.defect(key + "_missing")
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		d.defect(key + "_type")
		return nil
	}
	if v != math.Trunc(v) || v < 0 || v > 100 {
		d.defect(key + "_range")
		return nil
	}
	n := int(v)
	return &n
}

func (d *reportDecoder) level(key string) *RiskLevel {
	raw := d.lookup(key)
	if raw == nil {
		d.defect(key + "_missing")
		return nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		d.defect(key + "_type")
		return nil
	}
	level := RiskLevel(strings.TrimSpace(v))
	if level == "" {
		d.defect(key + "_missing")
		return nil
	}
	return &level
}

func (d *reportDecoder) optionalString(key string) string {
	raw := d.lookup(key)
	if raw == nil {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		d.defect(key + "_type")
		return ""
	}
	return v
}

func (d *reportDecoder) elements(key string) []json.RawMessage {
	raw := d.lookup(key)
	if raw == nil {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		d.defect(key + "_type")
		return nil
	}
	return items
}

func (d *reportDecoder) object(key string, i int, raw json.RawMessage) map[string]json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		d.defect(fmt.Sprintf("%s[%d]_type", key, i))
		return nil
	}
	return obj
}

func (d *reportDecoder) issues(key string) []Issue {
	out := make([]Issue, 0)
	for i, raw := range d.elements(key) {
		obj := d.object(key, i, raw)
		if obj == nil {
			continue
		}
		out = append(out, Issue{
			Title:          stringField(obj, "title"),
			Section:        stringField(obj, "section"),
			Severity:       Severity(strings.TrimSpace(stringField(obj, "severity"))),
			Issue:          stringField(obj, "issue"),
			Recommendation: stringField(obj, "recommendation"),
			LegalNote:      stringField(obj, "legalNote"),
		})
	}
	return out
}

func (d *reportDecoder) positives(key string) []Positive {
	out := make([]Positive, 0)
	for i, raw := range d.elements(key) {
		obj := d.object(key, i, raw)
		if obj == nil {
			continue
		}
		out = append(out, Positive{
			Title: stringField(obj, "title"),
			Note:  stringField(obj, "note"),
		})
	}
	return out
}

func (d *reportDecoder) stringList(key string) []string {
	out := make([]string, 0)
	for i, raw := range d.elements(key) {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			d.defect(fmt.Sprintf("%s[%d]_type", key, i))
			continue
		}
		out = append(out, v)
	}
	return out
}

// stringField reads an opaque display string; non-string values render empty.
func stringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
