package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"risehigh-xp-service/internal/domain"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestApplySubmissionRecordsOneEventPerDimension(t *testing.T) {
	l := NewLedger(
		[]domain.StudentProgression{{StudentID: "s1", Level: 1, XP: 90}},
		[]domain.SkillProgression{{StudentID: "s1", SkillID: "go", Level: 1, XP: 0}},
	)
	rec := NewRecorderWithClock(fixedClock)
	sub := domain.Submission{ID: "sub-1", StudentID: "s1", ChallengeID: "c1", Rating: intPtr(10), Position: intPtr(1), Status: domain.SubmissionWinner}

	award, ok, err := ApplySubmission(l, rec, sub, []string{"go", "react", "go"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Award{ProfileXP: 150, SkillXP: 75}, award)

	events := rec.Events()
	require.Len(t, events, 3)

	assert.Equal(t, domain.EventStudentXP, events[0].EventType)
	assert.Equal(t, 150, events[0].XPGained)
	assert.Empty(t, events[0].SkillID)
	require.NotNil(t, events[0].NewLevel)
	assert.Equal(t, 2, *events[0].NewLevel)

	assert.Equal(t, domain.EventSkillXP, events[1].EventType)
	assert.Equal(t, "go", events[1].SkillID)
	assert.Equal(t, 75, events[1].XPGained)

	assert.Equal(t, domain.EventNewSkill, events[2].EventType)
	assert.Equal(t, "react", events[2].SkillID)

	for _, evt := range events {
		assert.Equal(t, "sub-1", evt.SubmissionID)
		assert.Equal(t, "s1", evt.StudentID)
		assert.NotEmpty(t, evt.ID)
		assert.Equal(t, fixedClock(), evt.CreatedAt)
	}
}

func TestApplySubmissionSkipsUnrated(t *testing.T) {
	l := NewLedger(nil, nil)
	rec := NewRecorder()

	_, ok, err := ApplySubmission(l, rec, domain.Submission{ID: "x", StudentID: "s1", Status: domain.SubmissionSubmitted}, []string{"go"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, rec.Len())

	students, skills := l.Changes()
	assert.Empty(t, students)
	assert.Empty(t, skills)
}

func TestApplySubmissionSkipsApplied(t *testing.T) {
	l := NewLedger(nil, nil)
	rec := NewRecorder()

	_, ok, err := ApplySubmission(l, rec, domain.Submission{ID: "x", StudentID: "s1", Rating: intPtr(9), Status: domain.SubmissionApplied}, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, rec.Len())
}

func TestRecorderEventsIsACopy(t *testing.T) {
	rec := NewRecorder()
	rec.RecordStudent(domain.Submission{ID: "a", StudentID: "s1"}, 30, Outcome{Level: 1, XP: 30})

	events := rec.Events()
	events[0].XPGained = 999

	assert.Equal(t, 30, rec.Events()[0].XPGained)
}

func TestRecorderDropsZeroDeltas(t *testing.T) {
	rec := NewRecorder()
	rec.RecordSkill(domain.Submission{ID: "a", StudentID: "s1"}, "go", 0, SkillOutcome{Type: domain.EventSkillXP})
	assert.Zero(t, rec.Len())
}
