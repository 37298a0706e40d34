package progression

import (
	"time"

	"github.com/google/uuid"

	"risehigh-xp-service/internal/domain"
)

// Recorder collects the XP events of one run in insertion order. Events are
// never modified or removed once recorded.
type Recorder struct {
	events []domain.XpEvent
	now    func() time.Time
	newID  func() string
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return NewRecorderWithClock(time.Now)
}

// NewRecorderWithClock allows deterministic timestamps in tests.
func NewRecorderWithClock(now func() time.Time) *Recorder {
	return &Recorder{now: now, newID: uuid.NewString}
}

// RecordStudent records profile XP granted for a submission.
func (r *Recorder) RecordStudent(sub domain.Submission, delta int, out Outcome) {
	r.append(domain.XpEvent{
		StudentID:    sub.StudentID,
		SubmissionID: sub.ID,
		EventType:    domain.EventStudentXP,
		XPGained:     delta,
		NewLevel:     out.LevelUp,
	})
}

// RecordSkill records skill XP granted for a submission.
func (r *Recorder) RecordSkill(sub domain.Submission, skillID string, delta int, out SkillOutcome) {
	r.append(domain.XpEvent{
		StudentID:    sub.StudentID,
		SubmissionID: sub.ID,
		EventType:    out.Type,
		XPGained:     delta,
		SkillID:      skillID,
		NewLevel:     out.LevelUp,
	})
}

func (r *Recorder) append(evt domain.XpEvent) {
	if evt.XPGained <= 0 {
		return
	}
	evt.ID = r.newID()
	evt.CreatedAt = r.now().UTC()
	r.events = append(r.events, evt)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []domain.XpEvent {
	out := make([]domain.XpEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Len reports how many events were recorded.
func (r *Recorder) Len() int {
	return len(r.events)
}
