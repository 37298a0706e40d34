package memory

import (
	"context"
	"sort"
	"sync"

	"risehigh-xp-service/internal/domain"
)

// Store is an in-memory implementation of the app repositories, used for
// tests, demos and single-process runs without a database.
type Store struct {
	mu              sync.RWMutex
	challenges      map[string]domain.Challenge
	challengeSkills map[string][]string
	submissions     map[string]domain.Submission
	submissionOrder []string
	students        map[string]domain.StudentProgression
	skills          map[domain.SkillKey]domain.SkillProgression
	events          []domain.XpEvent
	notifications   []domain.Notification
}

func NewStore() *Store {
	return &Store{
		challenges:      make(map[string]domain.Challenge),
		challengeSkills: make(map[string][]string),
		submissions:     make(map[string]domain.Submission),
		students:        make(map[string]domain.StudentProgression),
		skills:          make(map[domain.SkillKey]domain.SkillProgression),
	}
}

// PutChallenge stores a challenge and the skills it exercises.
func (s *Store) PutChallenge(challenge domain.Challenge, skillIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[challenge.ID] = challenge
	s.challengeSkills[challenge.ID] = append([]string(nil), skillIDs...)
}

func (s *Store) PutSubmission(sub domain.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[sub.ID]; !ok {
		s.submissionOrder = append(s.submissionOrder, sub.ID)
	}
	s.submissions[sub.ID] = sub
}

func (s *Store) PutStudent(p domain.StudentProgression) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[p.StudentID] = p
}

func (s *Store) PutSkill(p domain.SkillProgression) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skills[p.Key()] = p
}

func (s *Store) GetChallenge(_ context.Context, challengeID string) (domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	challenge, ok := s.challenges[challengeID]
	if !ok {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	return challenge, nil
}

func (s *Store) ChallengeSkillIDs(_ context.Context, challengeID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.challengeSkills[challengeID]...), nil
}

func (s *Store) ListForClosing(_ context.Context, challengeID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Submission
	for _, id := range s.submissionOrder {
		sub := s.submissions[id]
		if sub.ChallengeID == challengeID && sub.Status != domain.SubmissionApplied {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *Store) GetSubmission(_ context.Context, submissionID string) (domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[submissionID]
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	return sub, nil
}

func (s *Store) StudentProgressions(_ context.Context, studentIDs []string) ([]domain.StudentProgression, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StudentProgression, 0, len(studentIDs))
	for _, id := range studentIDs {
		if p, ok := s.students[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) SkillProgressions(_ context.Context, studentIDs []string) ([]domain.SkillProgression, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = true
	}
	var out []domain.SkillProgression
	for key, p := range s.skills {
		if wanted[key.StudentID] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].SkillID < out[j].SkillID
	})
	return out, nil
}

func (s *Store) AwardedSubmissions(_ context.Context, submissionIDs []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]bool, len(submissionIDs))
	for _, id := range submissionIDs {
		wanted[id] = true
	}
	awarded := make(map[string]bool)
	for _, evt := range s.events {
		if wanted[evt.SubmissionID] {
			awarded[evt.SubmissionID] = true
		}
	}
	return awarded, nil
}

// SaveAwards applies the whole batch or nothing. Events for a submission
// that already has events are rejected with domain.ErrAlreadyAwarded.
func (s *Store) SaveAwards(_ context.Context, batch domain.AwardBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]bool)
	for _, evt := range s.events {
		existing[evt.SubmissionID] = true
	}
	for _, evt := range batch.Events {
		if existing[evt.SubmissionID] {
			return domain.ErrAlreadyAwarded
		}
	}

	for _, p := range batch.Skills {
		s.skills[p.Key()] = p
	}
	for _, p := range batch.Students {
		s.students[p.StudentID] = p
	}
	s.events = append(s.events, batch.Events...)
	return nil
}

func (s *Store) EventsForSubmission(_ context.Context, submissionID string) ([]domain.XpEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.XpEvent
	for _, evt := range s.events {
		if evt.SubmissionID == submissionID {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (s *Store) CreateNotifications(_ context.Context, notifications []domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, notifications...)
	return nil
}

// Events returns every stored XP event in insertion order.
func (s *Store) Events() []domain.XpEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.XpEvent(nil), s.events...)
}

// Notifications returns every stored notification in insertion order.
func (s *Store) Notifications() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Notification(nil), s.notifications...)
}

// Student returns the stored progression of a student.
func (s *Store) Student(studentID string) (domain.StudentProgression, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.students[studentID]
	return p, ok
}

// Skill returns the stored progression of a student's skill.
func (s *Store) Skill(studentID, skillID string) (domain.SkillProgression, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.skills[domain.SkillKey{StudentID: studentID, SkillID: skillID}]
	return p, ok
}
