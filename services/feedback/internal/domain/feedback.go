package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/FeedbackGo/pkg/errors"
)

// MaxDescriptionLength is the longest description accepted, in characters.
const MaxDescriptionLength = 2000

// Feedback is a single user-submitted feedback record.
type Feedback struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Score       int       `json:"score"`
	SubmittedAt time.Time `json:"submittedAt"`
	Urgency     Urgency   `json:"urgency"`
	Notified    bool      `json:"notified"`
}

// NewFeedback creates a feedback record submitted at now. Urgency is always
// derived from score.
func NewFeedback(description string, score int, now time.Time) Feedback {
	return Feedback{
		ID:          uuid.New().String(),
		Description: strings.TrimSpace(description),
		Score:       score,
		SubmittedAt: now.UTC(),
		Urgency:     Classify(score),
	}
}

// Validate checks the record against the ingestion rules.
func (f Feedback) Validate() error {
	if strings.TrimSpace(f.Description) == "" {
		return apperrors.InvalidInput("description must not be empty")
	}
	if utf8.RuneCountInString(f.Description) > MaxDescriptionLength {
		return apperrors.InvalidInput(fmt.Sprintf("description must be at most %d characters", MaxDescriptionLength))
	}
	if f.Score < MinScore || f.Score > MaxScore {
		return apperrors.InvalidInput(fmt.Sprintf("score must be between %d and %d", MinScore, MaxScore))
	}
	if f.Urgency != Classify(f.Score) {
		return apperrors.InvalidInput(fmt.Sprintf("urgency %s does not match score %d", f.Urgency, f.Score))
	}
	return nil
}

// IsCritical reports whether the record must be escalated.
func (f Feedback) IsCritical() bool {
	return f.Urgency == UrgencyCritical
}
