package domain

import "time"

// ChallengeStatus is the lifecycle state of a challenge.
type ChallengeStatus string

const (
	ChallengeDraft    ChallengeStatus = "draft"
	ChallengeOpen     ChallengeStatus = "open"
	ChallengeClosed   ChallengeStatus = "closed"
	ChallengeArchived ChallengeStatus = "archived"
)

// SubmissionStatus is the state of a student's submission to a challenge.
type SubmissionStatus string

const (
	SubmissionApplied   SubmissionStatus = "applied"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionFinalist  SubmissionStatus = "finalist"
	SubmissionWinner    SubmissionStatus = "winner"
)

// EventType classifies an XP event.
type EventType string

const (
	EventStudentXP EventType = "student_xp"
	EventSkillXP   EventType = "skill_xp"
	EventNewSkill  EventType = "new_skill"
)

// Challenge is the subset of a challenge record the pipeline reads.
type Challenge struct {
	ID     string          `json:"id"`
	Title  string          `json:"title"`
	Status ChallengeStatus `json:"status"`
}

// Submission is a student's entry to a challenge. Rating and Position are nil until judged.
type Submission struct {
	ID          string           `json:"id"`
	StudentID   string           `json:"student_id"`
	ChallengeID string           `json:"challenge_id"`
	Rating      *int             `json:"rating"`
	Position    *int             `json:"position"`
	Status      SubmissionStatus `json:"status"`
}

// Scorable reports whether the submission takes part in XP computation.
func (s Submission) Scorable() bool {
	return s.Status != SubmissionApplied && s.Rating != nil
}

// Placed reports whether the submission finished on the podium.
func (s Submission) Placed() bool {
	return s.Position != nil && *s.Position >= 1 && *s.Position <= 3
}

// StudentProgression is the overall level of a student. XP is the remainder
// left after every completed level-up, never a lifetime total.
type StudentProgression struct {
	StudentID string `json:"student_id"`
	Level     int    `json:"level"`
	XP        int    `json:"xp"`
}

// NewStudentProgression returns the registration default.
func NewStudentProgression(studentID string) StudentProgression {
	return StudentProgression{StudentID: studentID, Level: 1, XP: 0}
}

// SkillProgression is a student's level in one skill. Rows are created
// lazily on the first award touching the skill.
type SkillProgression struct {
	StudentID string `json:"student_id"`
	SkillID   string `json:"skill_id"`
	Level     int    `json:"level"`
	XP        int    `json:"xp"`
}

// SkillKey identifies a SkillProgression.
type SkillKey struct {
	StudentID string
	SkillID   string
}

// Key returns the identity of the progression.
func (p SkillProgression) Key() SkillKey {
	return SkillKey{StudentID: p.StudentID, SkillID: p.SkillID}
}

// XpEvent is an append-only record of XP granted for a submission.
// SkillID is empty for student_xp events; NewLevel is nil unless the award
// caused a level-up.
type XpEvent struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"student_id"`
	SubmissionID string    `json:"submission_id"`
	EventType    EventType `json:"event_type"`
	XPGained     int       `json:"xp_gained"`
	SkillID      string    `json:"skill_id,omitempty"`
	NewLevel     *int      `json:"new_level"`
	CreatedAt    time.Time `json:"created_at"`
}

// Notification is an in-app message for a user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	LinkURL   string    `json:"link_url"`
	CreatedAt time.Time `json:"created_at"`
}

// AwardBatch holds every write produced by one pipeline run.
type AwardBatch struct {
	Students []StudentProgression
	Skills   []SkillProgression
	Events   []XpEvent
}

// Empty reports whether the batch carries no writes.
func (b AwardBatch) Empty() bool {
	return len(b.Students) == 0 && len(b.Skills) == 0 && len(b.Events) == 0
}

// ChallengeEmail is the payload sent to the email service when a challenge closes.
type ChallengeEmail struct {
	Record        Challenge `json:"record"`
	OldRecord     Challenge `json:"old_record"`
	ManualTrigger bool      `json:"manual_trigger"`
}
