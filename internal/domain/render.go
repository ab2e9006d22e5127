package domain

import (
	"fmt"
	"strings"
)

// Tone is the visual category a level or severity renders under.
type Tone string

const (
	ToneDanger   Tone = "danger"
	ToneCaution  Tone = "caution"
	TonePositive Tone = "positive"
	ToneInfo     Tone = "info"
	ToneNeutral  Tone = "neutral"
)

const Disclaimer = "This analysis is for informational purposes only and does not constitute legal advice. " +
	"For complex situations, consult a licensed attorney."

const absentMetric = "—"

// RiskLevelTone is total: unknown or empty levels render neutral.
func RiskLevelTone(level string) Tone {
	switch RiskLevel(strings.ToUpper(strings.TrimSpace(level))) {
	case RiskHigh:
		return ToneDanger
	case RiskMedium:
		return ToneCaution
	case RiskLow:
		return TonePositive
	default:
		return ToneNeutral
	}
}

// SeverityTone is total: unknown severities render neutral.
func SeverityTone(severity string) Tone {
	switch Severity(strings.ToLower(strings.TrimSpace(severity))) {
	case SeverityCritical:
		return ToneDanger
	case SeverityWarning:
		return ToneCaution
	case SeverityInfo:
		return ToneInfo
	default:
		return ToneNeutral
	}
}

type Summary struct {
	Critical        int `json:"critical"`
	Warnings        int `json:"warnings"`
	Positives       int `json:"positives"`
	Recommendations int `json:"recommendations"`
}

// Summary is always recomputed from the sequences.
func (r RiskReport) Summary() Summary {
	return Summary{
		Critical:        len(r.CriticalIssues),
		Warnings:        len(r.Warnings),
		Positives:       len(r.Positives),
		Recommendations: len(r.Recommendations),
	}
}

type IssueView struct {
	Issue
	Tone Tone `json:"tone"`
}

type Recommendation struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// View is the render-ready projection of a report.
type View struct {
	Score               *int             `json:"score,omitempty"`
	ScoreLabel          string           `json:"score_label"`
	RiskLevel           string           `json:"risk_level"`
	RiskTone            Tone             `json:"risk_tone"`
	Comparison          string           `json:"comparison,omitempty"`
	CriticalIssues      []IssueView      `json:"critical_issues"`
	Warnings            []IssueView      `json:"warnings"`
	Positives           []Positive       `json:"positives"`
	Recommendations     []Recommendation `json:"recommendations"`
	EstimatedLawyerCost string           `json:"estimated_lawyer_cost"`
	Disclaimer          string           `json:"disclaimer"`
	Summary             Summary          `json:"summary"`
	Defects             []string         `json:"defects,omitempty"`
}

func (r RiskReport) View() View {
	v := View{
		Score:               r.OverallScore,
		ScoreLabel:          absentMetric,
		RiskLevel:           absentMetric,
		RiskTone:            ToneNeutral,
		Comparison:          r.ComparisonToStandard,
		CriticalIssues:      issueViews(r.CriticalIssues),
		Warnings:            issueViews(r.Warnings),
		Positives:           append(make([]Positive, 0, len(r.Positives)), r.Positives...),
		Recommendations:     make([]Recommendation, 0, len(r.Recommendations)),
		EstimatedLawyerCost: r.LawyerCost(),
		Disclaimer:          Disclaimer,
		Summary:             r.Summary(),
		Defects:             r.Defects,
	}
	if r.OverallScore != nil {
		v.ScoreLabel = fmt.Sprintf("%d/100", *r.OverallScore)
	}
	if r.RiskLevel != nil {
		v.RiskLevel = string(*r.RiskLevel)
		v.RiskTone = RiskLevelTone(string(*r.RiskLevel))
	}
	for i, rec := range r.Recommendations {
		v.Recommendations = append(v.Recommendations, Recommendation{Number: i + 1, Text: rec})
	}
	return v
}

func issueViews(issues []Issue) []IssueView {
	out := make([]IssueView, 0, len(issues))
	for _, issue := range issues {
		out = append(out, IssueView{Issue: issue, Tone: SeverityTone(string(issue.Severity))})
	}
	return out
}
