package sqlite

import "time"

// ChallengeRow is a challenge record.
type ChallengeRow struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Title     string    `gorm:"size:255"`
	Status    string    `gorm:"size:16;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ChallengeRow) TableName() string { return "challenges" }

// ChallengeSkillRow links a challenge to a skill it exercises.
type ChallengeSkillRow struct {
	ChallengeID string `gorm:"primaryKey;size:64"`
	SkillID     string `gorm:"primaryKey;size:64"`
}

func (ChallengeSkillRow) TableName() string { return "challenge_skills" }

type SubmissionRow struct {
	ID          string    `gorm:"primaryKey;size:64"`
	StudentID   string    `gorm:"size:64;index"`
	ChallengeID string    `gorm:"size:64;index"`
	Rating      *int
	Position    *int
	Status      string    `gorm:"size:16"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (SubmissionRow) TableName() string { return "submissions" }

type StudentProfileRow struct {
	StudentID string    `gorm:"column:user_id;primaryKey;size:64"`
	Level     int       `gorm:"default:1"`
	XP        int       `gorm:"column:xp;default:0"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (StudentProfileRow) TableName() string { return "student_profiles" }

type StudentSkillRow struct {
	StudentID string    `gorm:"primaryKey;size:64"`
	SkillID   string    `gorm:"primaryKey;size:64"`
	Level     int       `gorm:"default:1"`
	XP        int       `gorm:"column:xp;default:0"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (StudentSkillRow) TableName() string { return "student_skills" }

// XpEventRow is one immutable entry of the XP log. SkillID is empty for
// profile events so the award-once index also covers them.
type XpEventRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	StudentID    string `gorm:"size:64;index"`
	SubmissionID string `gorm:"size:64;uniqueIndex:idx_xp_events_award_once"`
	EventType    string `gorm:"size:16;uniqueIndex:idx_xp_events_award_once"`
	XPGained     int    `gorm:"column:xp_gained"`
	SkillID      string `gorm:"size:64;uniqueIndex:idx_xp_events_award_once"`
	NewLevel     *int
	CreatedAt    time.Time
}

func (XpEventRow) TableName() string { return "xp_events" }

type NotificationRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"size:64;index"`
	Message   string
	LinkURL   string    `gorm:"column:link_url"`
	CreatedAt time.Time
}

func (NotificationRow) TableName() string { return "notifications" }

// AllModels lists every table of the embedded store.
func AllModels() []any {
	return []any{
		&ChallengeRow{},
		&ChallengeSkillRow{},
		&SubmissionRow{},
		&StudentProfileRow{},
		&StudentSkillRow{},
		&XpEventRow{},
		&NotificationRow{},
	}
}
