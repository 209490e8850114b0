package domain

import "time"

// EscalationEvent is the snapshot of a critical feedback record carried
// through the escalation queue.
type EscalationEvent struct {
	FeedbackID  string    `json:"feedbackId"`
	Description string    `json:"description"`
	Urgency     Urgency   `json:"urgency"`
	SubmittedAt time.Time `json:"submittedAt"`
	Score       int       `json:"score"`
}

// NewEscalationEvent snapshots f.
func NewEscalationEvent(f Feedback) EscalationEvent {
	return EscalationEvent{
		FeedbackID:  f.ID,
		Description: f.Description,
		Urgency:     f.Urgency,
		SubmittedAt: f.SubmittedAt,
		Score:       f.Score,
	}
}
