package domain

import "sort"

const DescriptionPlaceholder = "Generating description..."

type Threshold struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// AdjusterPanel is the adjuster-facing projection of a TriageResult.
type AdjusterPanel struct {
	Priority               string      `json:"priority"`
	ImmediateActions       []string    `json:"immediate_actions"`
	ShortTermActions       []string    `json:"short_term_actions"`
	ApprovalGuidance       []Threshold `json:"approval_guidance,omitempty"`
	ReserveRecommendations []Threshold `json:"reserve_recommendations,omitempty"`
	Recommendations        []string    `json:"recommendations,omitempty"`
	ApprovalLevel          string      `json:"approval_level"`
	EstimatedReserves      string      `json:"estimated_reserves"`
	Timeline               string      `json:"timeline"`
	ClaimHandler           string      `json:"claim_handler"`
	Summary                string      `json:"summary,omitempty"`
}

// ClaimView is the read-only display model consumed by presentation.
type ClaimView struct {
	ClaimID     string       `json:"claim_id,omitempty"`
	Generation  uint64       `json:"generation"`
	Status      IntakeStatus `json:"status"`
	Filename    string       `json:"filename,omitempty"`
	Description string       `json:"description"`
	Generating  bool         `json:"generating"`

	ToastVisible          bool           `json:"toast_visible"`
	AdjusterPanelRevealed bool           `json:"adjuster_panel_revealed"`
	Adjuster              *AdjusterPanel `json:"adjuster,omitempty"`
	Notifications         []Notification `json:"notifications"`

	LastError   string `json:"last_error,omitempty"`
	TriageError string `json:"triage_error,omitempty"`
}

// ProjectView derives the display model from an intake snapshot and the
// notification states armed for the same generation.
func ProjectView(intake ClaimIntake, notifications []Notification) ClaimView {
	view := ClaimView{
		ClaimID:       intake.ClaimID,
		Generation:    intake.Generation,
		Status:        intake.Status,
		Description:   intake.Description,
		Notifications: append([]Notification{}, notifications...),
		LastError:     intake.LastError,
		TriageError:   intake.TriageError,
	}
	if view.Status == "" {
		view.Status = StatusIdle
	}
	if intake.Image != nil {
		view.Filename = intake.Image.Filename
	}
	if intake.Status == StatusSending && intake.Description == "" {
		view.Description = DescriptionPlaceholder
		view.Generating = true
	}

	revealed := make(map[NotificationID]bool, len(notifications))
	for _, n := range notifications {
		revealed[n.ID] = n.Revealed
	}
	view.ToastVisible = revealed[NotifyClaimUnderReview] && !revealed[NotifyUnderReviewDismiss]
	view.AdjusterPanelRevealed = revealed[NotifyAdjusterPanel]

	if intake.Triage != nil {
		view.Adjuster = projectPanel(*intake.Triage)
	}
	return view
}

func projectPanel(t TriageResult) *AdjusterPanel {
	return &AdjusterPanel{
		Priority:               t.Priority,
		ImmediateActions:       append([]string{}, t.ImmediateActions...),
		ShortTermActions:       append([]string{}, t.ShortTermActions...),
		ApprovalGuidance:       presentThresholds(t.ApprovalGuidance),
		ReserveRecommendations: presentThresholds(t.ReserveRecommendations),
		Recommendations:        append([]string(nil), t.Recommendations...),
		ApprovalLevel:          t.ApprovalLevel,
		EstimatedReserves:      t.EstimatedReserves,
		Timeline:               t.Timeline,
		ClaimHandler:           t.ClaimHandler,
		Summary:                t.Summary,
	}
}

// presentThresholds keeps non-zero entries only, ordered by name.
func presentThresholds(values map[string]float64) []Threshold {
	out := make([]Threshold, 0, len(values))
	for name, value := range values {
		if value == 0 {
			continue
		}
		out = append(out, Threshold{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) == 0 {
		return nil
	}
	return out
}
