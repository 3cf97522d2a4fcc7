package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	PriorityLow      = "Low"
	PriorityMedium   = "Medium"
	PriorityHigh     = "High"
	PriorityCritical = "Critical"
	PriorityStandard = "Standard"

	DefaultApprovalLevel     = "Unknown"
	DefaultEstimatedReserves = "TBD"
	DefaultTimeline          = "Standard processing"
	DefaultClaimHandler      = "Not assigned"
)

var priorityByCode = map[int64]string{
	1: PriorityLow,
	2: PriorityMedium,
	3: PriorityHigh,
	4: PriorityCritical,
}

var priorityLabels = map[string]struct{}{
	PriorityLow:      {},
	PriorityMedium:   {},
	PriorityHigh:     {},
	PriorityCritical: {},
	PriorityStandard: {},
}

// TriageResponse is the loosely-shaped body returned by the triage agent.
// Every field may be absent, null, or of an unexpected JSON type.
type TriageResponse struct {
	Recommendation    json.RawMessage `json:"recommendation"`
	Priority          json.RawMessage `json:"priority"`
	ApprovalLevel     json.RawMessage `json:"approval_level"`
	EstimatedReserves json.RawMessage `json:"estimated_reserves"`
	Timeline          json.RawMessage `json:"timeline"`
	ClaimHandler      json.RawMessage `json:"claim_handler"`
	Description       json.RawMessage `json:"description"`
}

// TriageResult is the normalized adjuster-facing recommendation set.
type TriageResult struct {
	Priority               string             `json:"priority"`
	ImmediateActions       []string           `json:"immediate_actions"`
	ShortTermActions       []string           `json:"short_term_actions"`
	ApprovalGuidance       map[string]float64 `json:"approval_guidance"`
	ReserveRecommendations map[string]float64 `json:"reserve_recommendations"`
	Recommendations        []string           `json:"recommendations,omitempty"`

	ApprovalLevel     string `json:"approval_level"`
	EstimatedReserves string `json:"estimated_reserves"`
	Timeline          string `json:"timeline"`
	ClaimHandler      string `json:"claim_handler"`
	Summary           string `json:"summary,omitempty"`
}

// NormalizeTriage maps a raw triage response onto TriageResult. It never fails:
// missing or mistyped fields fall back to empty collections or placeholders.
func NormalizeTriage(resp *TriageResponse) TriageResult {
	out := TriageResult{
		Priority:               PriorityStandard,
		ImmediateActions:       []string{},
		ShortTermActions:       []string{},
		ApprovalGuidance:       map[string]float64{},
		ReserveRecommendations: map[string]float64{},
		ApprovalLevel:          DefaultApprovalLevel,
		EstimatedReserves:      DefaultEstimatedReserves,
		Timeline:               DefaultTimeline,
		ClaimHandler:           DefaultClaimHandler,
	}
	if resp == nil {
		return out
	}

	out.Priority = PriorityLabel(decodeLoose(resp.Priority))
	applyRecommendation(decodeLoose(resp.Recommendation), &out)

	out.ApprovalLevel = displayString(resp.ApprovalLevel, DefaultApprovalLevel)
	out.EstimatedReserves = displayString(resp.EstimatedReserves, DefaultEstimatedReserves)
	out.Timeline = displayString(resp.Timeline, DefaultTimeline)
	out.ClaimHandler = displayString(resp.ClaimHandler, DefaultClaimHandler)
	out.Summary = displayString(resp.Description, "")
	return out
}

// PriorityLabel maps integral codes 1-4 to labels and keeps exact label strings.
// Anything else is Standard.
func PriorityLabel(v any) string {
	switch p := v.(type) {
	case int:
		return priorityFromCode(float64(p))
	case int64:
		return priorityFromCode(float64(p))
	case float64:
		return priorityFromCode(p)
	case json.Number:
		f, err := p.Float64()
		if err != nil {
			return PriorityStandard
		}
		return priorityFromCode(f)
	case string:
		if _, ok := priorityLabels[p]; ok {
			return p
		}
	}
	return PriorityStandard
}

func priorityFromCode(code float64) string {
	if math.IsNaN(code) || code < 1 || code > 4 || code != math.Trunc(code) {
		return PriorityStandard
	}
	if label, ok := priorityByCode[int64(code)]; ok {
		return label
	}
	return PriorityStandard
}

func applyRecommendation(v any, out *TriageResult) {
	switch rec := v.(type) {
	case map[string]any:
		out.ImmediateActions = stringList(rec["immediate_actions"])
		out.ShortTermActions = stringList(rec["short_term_actions"])
		out.ApprovalGuidance = thresholds(rec["approval_guidance"])
		out.ReserveRecommendations = thresholds(rec["reserve_recommendations"])
	case []any:
		out.Recommendations = stringList(rec)
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(rec), &parsed); err == nil {
			switch parsed.(type) {
			case map[string]any, []any:
				applyRecommendation(parsed, out)
				return
			}
		}
		out.Recommendations = splitRecommendationText(rec)
	}
}

// splitRecommendationText turns free-form agent output into list items,
// trying newline, bullet and dash separators in that order.
func splitRecommendationText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}
	for _, sep := range []string{"\n", "•", "-"} {
		if !strings.Contains(text, sep) {
			continue
		}
		items := make([]string, 0)
		for _, part := range strings.Split(text, sep) {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		return items
	}
	return []string{text}
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch s := item.(type) {
		case string:
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		case float64:
			out = append(out, strconv.FormatFloat(s, 'f', -1, 64))
		}
	}
	return out
}

func thresholds(v any) map[string]float64 {
	fields, ok := v.(map[string]any)
	if !ok {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(fields))
	for name, raw := range fields {
		switch value := raw.(type) {
		case float64:
			out[name] = value
		case string:
			cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(value))
			if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
				out[name] = f
			}
		}
	}
	return out
}

func displayString(raw json.RawMessage, fallback string) string {
	switch v := decodeLoose(raw).(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fallback
}

func decodeLoose(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
