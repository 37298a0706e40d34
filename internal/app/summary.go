package app

import (
	"context"
	"fmt"
	"sort"

	"risehigh-xp-service/internal/domain"
	"risehigh-xp-service/internal/progression"
)

// SkillGain is the skill part of a submission summary.
type SkillGain struct {
	SkillID  string `json:"skill_id"`
	XPGained int    `json:"xp_gained"`
	NewSkill bool   `json:"new_skill"`
	NewLevel *int   `json:"new_level"`
}

// SubmissionSummary condenses the XP events of one submission, e.g.
// "+40 XP, reached level 3, unlocked Go".
type SubmissionSummary struct {
	StudentID    string      `json:"student_id"`
	SubmissionID string      `json:"submission_id"`
	Awarded      bool        `json:"awarded"`
	ProfileXP    int         `json:"profile_xp"`
	NewLevel     *int        `json:"new_level"`
	Skills       []SkillGain `json:"skills"`
}

// SubmissionSummary builds the read-side summary of the XP a student earned
// for a submission from the event log.
func (s *ClosingService) SubmissionSummary(ctx context.Context, studentID, submissionID string) (SubmissionSummary, error) {
	events, err := s.progressions.EventsForSubmission(ctx, submissionID)
	if err != nil {
		return SubmissionSummary{}, fmt.Errorf("load xp events: %w", err)
	}
	return Summarize(studentID, submissionID, events), nil
}

// Summarize folds events into a SubmissionSummary, ignoring events of other students.
func Summarize(studentID, submissionID string, events []domain.XpEvent) SubmissionSummary {
	summary := SubmissionSummary{StudentID: studentID, SubmissionID: submissionID, Skills: []SkillGain{}}
	for _, evt := range events {
		if evt.StudentID != studentID || evt.SubmissionID != submissionID {
			continue
		}
		summary.Awarded = true
		switch evt.EventType {
		case domain.EventStudentXP:
			summary.ProfileXP += evt.XPGained
			if evt.NewLevel != nil {
				summary.NewLevel = evt.NewLevel
			}
		case domain.EventSkillXP, domain.EventNewSkill:
			summary.Skills = append(summary.Skills, SkillGain{
				SkillID:  evt.SkillID,
				XPGained: evt.XPGained,
				NewSkill: evt.EventType == domain.EventNewSkill,
				NewLevel: evt.NewLevel,
			})
		}
	}
	return summary
}

// LevelProgress is a level/xp pair with the distance to the next level.
type LevelProgress struct {
	SkillID  string `json:"skill_id,omitempty"`
	Level    int    `json:"level"`
	XP       int    `json:"xp"`
	XPToNext int    `json:"xp_to_next"`
}

// ProgressionView is a student's profile level plus every unlocked skill.
type ProgressionView struct {
	StudentID string          `json:"student_id"`
	Profile   LevelProgress   `json:"profile"`
	Skills    []LevelProgress `json:"skills"`
}

// Progression returns the current levels of a student.
func (s *ClosingService) Progression(ctx context.Context, studentID string) (ProgressionView, error) {
	students, err := s.progressions.StudentProgressions(ctx, []string{studentID})
	if err != nil {
		return ProgressionView{}, fmt.Errorf("load student progression: %w", err)
	}
	skills, err := s.progressions.SkillProgressions(ctx, []string{studentID})
	if err != nil {
		return ProgressionView{}, fmt.Errorf("load skill progressions: %w", err)
	}

	profile := domain.NewStudentProgression(studentID)
	for _, p := range students {
		if p.StudentID == studentID {
			profile = p
		}
	}

	view := ProgressionView{
		StudentID: studentID,
		Profile: LevelProgress{
			Level:    profile.Level,
			XP:       profile.XP,
			XPToNext: progression.ProfileThreshold(profile.Level) - profile.XP,
		},
		Skills: make([]LevelProgress, 0, len(skills)),
	}
	for _, sk := range skills {
		view.Skills = append(view.Skills, LevelProgress{
			SkillID:  sk.SkillID,
			Level:    sk.Level,
			XP:       sk.XP,
			XPToNext: progression.SkillThreshold(sk.Level) - sk.XP,
		})
	}
	sort.Slice(view.Skills, func(i, j int) bool {
		if view.Skills[i].Level != view.Skills[j].Level {
			return view.Skills[i].Level > view.Skills[j].Level
		}
		return view.Skills[i].SkillID < view.Skills[j].SkillID
	})
	return view, nil
}
