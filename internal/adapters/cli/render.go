package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

// Renderer prints view changes as they arrive: description text is written
// incrementally and each revealed notification is announced once.
type Renderer struct {
	out io.Writer

	mu           sync.Mutex
	generation   uint64
	printed      string
	revealed     map[domain.NotificationID]bool
	panelPending bool
	settled      chan struct{}
	closed       bool
}

func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{
		out:      out,
		revealed: make(map[domain.NotificationID]bool),
		settled:  make(chan struct{}),
	}
}

// Settled is closed once every notification of the followed submission has
// been revealed.
func (r *Renderer) Settled() <-chan struct{} {
	return r.settled
}

// OnView is registered as the intake view listener.
func (r *Renderer) OnView(view domain.ClaimView) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if view.Generation < r.generation {
		return
	}
	if view.Generation != r.generation {
		r.generation = view.Generation
		r.printed = ""
		r.panelPending = false
		clear(r.revealed)
	}

	if !view.Generating && len(view.Description) > len(r.printed) && strings.HasPrefix(view.Description, r.printed) {
		fmt.Fprint(r.out, view.Description[len(r.printed):])
		r.printed = view.Description
	}

	if r.panelPending && triageSettled(view) {
		r.panelPending = false
		r.showPanel(view)
	}
	if len(view.Notifications) == 0 {
		return
	}
	all := true
	for _, n := range view.Notifications {
		if !n.Revealed {
			all = false
			continue
		}
		if r.revealed[n.ID] {
			continue
		}
		r.revealed[n.ID] = true
		r.announce(n.ID, view)
	}
	if all && !r.panelPending && !r.closed {
		r.closed = true
		close(r.settled)
	}
}

func (r *Renderer) announce(id domain.NotificationID, view domain.ClaimView) {
	switch id {
	case domain.NotifyClaimUnderReview:
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, toastStyle.Render("Claim under review"))
	case domain.NotifyAdjusterPanel:
		if !triageSettled(view) {
			r.panelPending = true
			return
		}
		r.showPanel(view)
	case domain.NotifyUnderReviewDismiss:
		fmt.Fprintln(r.out, mutedStyle.Render("Review notice dismissed"))
	}
}

// showPanel prints the adjuster panel. When triage failed there is no panel,
// only a line naming the failure.
func (r *Renderer) showPanel(view domain.ClaimView) {
	if view.Adjuster == nil {
		fmt.Fprintln(r.out, TriageFailureLine(view))
		return
	}
	fmt.Fprintln(r.out, RenderPanel(view))
}

// triageSettled reports whether the panel has its final content. A panel
// revealed while triage is in flight is printed once the result lands.
func triageSettled(view domain.ClaimView) bool {
	return view.Adjuster != nil || view.TriageError != ""
}

// TriageFailureLine is printed in place of the panel when triage failed.
func TriageFailureLine(view domain.ClaimView) string {
	if view.TriageError == "" {
		return ""
	}
	return errorStyle.Render("Triage failed: " + view.TriageError)
}

// RenderPanel renders the adjuster panel of view. It is empty without a
// recommendation.
func RenderPanel(view domain.ClaimView) string {
	if view.Adjuster == nil {
		return ""
	}
	p := view.Adjuster

	var b strings.Builder
	b.WriteString(titleStyle.Render("Adjuster Recommendations"))
	b.WriteString("\n\n")
	b.WriteString(row("Priority", priorityStyle(p.Priority).Render(p.Priority)))
	b.WriteString(row("Approval level", p.ApprovalLevel))
	b.WriteString(row("Estimated reserves", p.EstimatedReserves))
	b.WriteString(row("Timeline", p.Timeline))
	b.WriteString(row("Claim handler", p.ClaimHandler))

	writeList(&b, "Immediate actions", p.ImmediateActions)
	writeList(&b, "Short-term actions", p.ShortTermActions)
	writeThresholds(&b, "Approval guidance", p.ApprovalGuidance)
	writeThresholds(&b, "Reserve recommendations", p.ReserveRecommendations)
	writeList(&b, "Recommendations", p.Recommendations)
	if p.Summary != "" {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(p.Summary))
		b.WriteString("\n")
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// RenderSummary is the final one-shot rendering printed after a submission.
func RenderSummary(view domain.ClaimView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Claim " + view.ClaimID))
	b.WriteString("\n")
	b.WriteString(row("Status", string(view.Status)))
	if view.Filename != "" {
		b.WriteString(row("Image", view.Filename))
	}
	if view.LastError != "" {
		b.WriteString(row("Error", errorStyle.Render(view.LastError)))
	}
	if view.TriageError != "" {
		b.WriteString(row("Triage error", errorStyle.Render(view.TriageError)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value)) + "\n"
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	for _, item := range items {
		b.WriteString("  • ")
		b.WriteString(item)
		b.WriteString("\n")
	}
}

func writeThresholds(b *strings.Builder, title string, values []domain.Threshold) {
	if len(values) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	for _, v := range values {
		b.WriteString(row("  "+v.Name, strconv.FormatFloat(v.Value, 'f', -1, 64)))
	}
}
