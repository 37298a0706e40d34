package app

import (
	"context"

	"risehigh-xp-service/internal/domain"
)

// SubmissionRepository reads challenge submissions.
type SubmissionRepository interface {
	// ListForClosing returns every submission of the challenge whose status is not "applied".
	ListForClosing(ctx context.Context, challengeID string) ([]domain.Submission, error)
	GetSubmission(ctx context.Context, submissionID string) (domain.Submission, error)
}

// ChallengeRepository reads challenge records.
type ChallengeRepository interface {
	GetChallenge(ctx context.Context, challengeID string) (domain.Challenge, error)
}

// SkillSource resolves the skills a challenge exercises (usually through a cache).
type SkillSource interface {
	ChallengeSkillIDs(ctx context.Context, challengeID string) ([]string, error)
}

// SkillInvalidator is implemented by caching skill sources. A close run
// drops the cached entry so skills edited during judging are picked up.
type SkillInvalidator interface {
	Invalidate(ctx context.Context, challengeID string) error
}

// ProgressionRepository reads and writes level/xp state and the XP event log.
type ProgressionRepository interface {
	StudentProgressions(ctx context.Context, studentIDs []string) ([]domain.StudentProgression, error)
	SkillProgressions(ctx context.Context, studentIDs []string) ([]domain.SkillProgression, error)
	// AwardedSubmissions reports which of the given submissions already own XP events.
	AwardedSubmissions(ctx context.Context, submissionIDs []string) (map[string]bool, error)
	SaveAwards(ctx context.Context, batch domain.AwardBatch) error
	EventsForSubmission(ctx context.Context, submissionID string) ([]domain.XpEvent, error)
}

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	CreateNotifications(ctx context.Context, notifications []domain.Notification) error
}

// EmailDispatcher hands the closed challenge to the email service.
type EmailDispatcher interface {
	DispatchChallengeEmail(ctx context.Context, payload domain.ChallengeEmail) error
}

// RunLock serializes pipeline runs on the same key across instances.
type RunLock interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}
