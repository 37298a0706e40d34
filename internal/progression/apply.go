package progression

import "risehigh-xp-service/internal/domain"

// ApplySubmission awards one submission: it computes the deltas, cascades
// the student's profile and every challenge skill through the ledger, and
// records one event per dimension touched. ok is false for unrated
// submissions, which leave the ledger and recorder untouched.
func ApplySubmission(l *Ledger, rec *Recorder, sub domain.Submission, skillIDs []string) (Award, bool, error) {
	if sub.Status == domain.SubmissionApplied {
		return Award{}, false, nil
	}
	award, ok, err := CalculateFor(sub)
	if err != nil || !ok {
		return Award{}, false, err
	}

	out, err := l.ApplyStudent(sub.StudentID, award.ProfileXP)
	if err != nil {
		return Award{}, false, err
	}
	rec.RecordStudent(sub, award.ProfileXP, out)

	for _, skillID := range dedupe(skillIDs) {
		skillOut, err := l.ApplySkill(sub.StudentID, skillID, award.SkillXP)
		if err != nil {
			return Award{}, false, err
		}
		rec.RecordSkill(sub, skillID, award.SkillXP, skillOut)
	}
	return award, true, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
