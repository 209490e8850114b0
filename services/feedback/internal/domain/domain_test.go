package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/FeedbackGo/pkg/errors"
)

// ============================================================================
// Classification Tests
// ============================================================================

func TestClassify_Tiers(t *testing.T) {
	for s := MinScore; s <= MaxScore; s++ {
		got := Classify(s)
		switch {
		case s <= 3:
			assert.Equal(t, UrgencyCritical, got, "score %d", s)
		case s <= 6:
			assert.Equal(t, UrgencyMedium, got, "score %d", s)
		default:
			assert.Equal(t, UrgencyLow, got, "score %d", s)
		}
	}
}

func TestClassify_Boundaries(t *testing.T) {
	assert.Equal(t, UrgencyCritical, Classify(3))
	assert.Equal(t, UrgencyMedium, Classify(4))
	assert.Equal(t, UrgencyMedium, Classify(6))
	assert.Equal(t, UrgencyLow, Classify(7))
}

func TestParseUrgency(t *testing.T) {
	for _, u := range Urgencies() {
		got, err := ParseUrgency(u.String())
		require.NoError(t, err)
		assert.Equal(t, u, got)
	}

	_, err := ParseUrgency("critical")
	assert.Error(t, err)
	assert.False(t, Urgency("").Valid())
}

// ============================================================================
// Feedback Tests
// ============================================================================

func TestNewFeedback(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.FixedZone("EET", 2*3600))
	f := NewFeedback("  late materials  ", 2, now)

	_, err := uuid.Parse(f.ID)
	assert.NoError(t, err)
	assert.Equal(t, "late materials", f.Description)
	assert.Equal(t, UrgencyCritical, f.Urgency)
	assert.False(t, f.Notified)
	assert.True(t, f.IsCritical())
	assert.Equal(t, time.UTC, f.SubmittedAt.Location())
	assert.True(t, now.Equal(f.SubmittedAt))
}

func TestFeedback_Validate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		fb      Feedback
		wantErr bool
	}{
		{"valid", NewFeedback("great course", 9, now), false},
		{"zero score", NewFeedback("bad", 0, now), false},
		{"blank description", NewFeedback("   ", 5, now), true},
		{"score too high", NewFeedback("x", 11, now), true},
		{"score negative", NewFeedback("x", -1, now), true},
		{"description too long", NewFeedback(strings.Repeat("a", MaxDescriptionLength+1), 5, now), true},
		{"max length in runes", NewFeedback(strings.Repeat("ü", MaxDescriptionLength), 5, now), false},
		{"urgency mismatch", Feedback{Description: "x", Score: 9, Urgency: UrgencyCritical}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fb.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
				return
			}
			assert.NoError(t, err)
		})
	}
}

// ============================================================================
// Event Tests
// ============================================================================

func TestEscalationEvent_WireShape(t *testing.T) {
	f := NewFeedback("late materials", 2, time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC))
	ev := NewEscalationEvent(f)

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, f.ID, wire["feedbackId"])
	assert.Equal(t, "late materials", wire["description"])
	assert.Equal(t, "CRITICAL", wire["urgency"])
	assert.Equal(t, "2024-03-04T10:00:00Z", wire["submittedAt"])
	assert.Equal(t, float64(2), wire["score"])
	assert.Len(t, wire, 5)
}

// ============================================================================
// Report Tests
// ============================================================================

func TestQualityLabel(t *testing.T) {
	tests := []struct {
		avg  float64
		want string
	}{
		{10, "excellent"},
		{8, "excellent"},
		{7.99, "good"},
		{6, "good"},
		{4, "fair"},
		{3.75, "critical"},
		{0, "critical"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QualityLabel(tt.avg), "avg %v", tt.avg)
	}
}

func TestReport_LabelAndDailyRate(t *testing.T) {
	r := Report{TotalCount: 14, AverageScore: 6.5}
	assert.Equal(t, "good", r.Label())
	assert.InDelta(t, 2.0, r.DailyRate(), 1e-9)
}

// ============================================================================
// Result Tests
// ============================================================================

func TestResult(t *testing.T) {
	assert.True(t, Success().IsSuccess())
	assert.Equal(t, "success", Success().Error())

	cause := errors.New("smtp down")
	r := Retry(cause)
	assert.False(t, r.IsSuccess())
	assert.Equal(t, OutcomeRetryable, r.Outcome)
	assert.Equal(t, "retryable: smtp down", r.Error())

	assert.Equal(t, OutcomeFatal, Fatal(cause).Outcome)
}
