package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"risehigh-xp-service/internal/domain"
	"risehigh-xp-service/internal/metrics"
	"risehigh-xp-service/internal/progression"
)

const (
	triggerStatusChange = "status_change"
	triggerManual       = "manual"
	triggerRated        = "submission_rated"

	defaultEmailTimeout = 10 * time.Second
	defaultLockWait     = 2 * time.Second
	lockRetryInterval   = 50 * time.Millisecond
)

// Dependencies are the collaborators of ClosingService. Email, Lock, Feed
// and Metrics are optional.
type Dependencies struct {
	Challenges    ChallengeRepository
	Skills        SkillSource
	Submissions   SubmissionRepository
	Progressions  ProgressionRepository
	Notifications NotificationRepository
	Email         EmailDispatcher
	Lock          RunLock
	Feed          *Feed
	Metrics       *metrics.Metrics
	Logger        logrus.FieldLogger
}

// ClosingService runs the XP pipeline when a challenge closes or a
// submission is rated.
type ClosingService struct {
	challenges    ChallengeRepository
	skills        SkillSource
	submissions   SubmissionRepository
	progressions  ProgressionRepository
	notifications NotificationRepository
	email         EmailDispatcher
	lock          RunLock
	feed          *Feed
	metrics       *metrics.Metrics
	log           logrus.FieldLogger

	linkBase     string
	emailTimeout time.Duration
	lockWait     time.Duration
	now          func() time.Time

	emails sync.WaitGroup
}

// Option customises a ClosingService.
type Option func(*ClosingService)

// WithLinkBase sets the URL prefix of notification links.
func WithLinkBase(base string) Option {
	return func(s *ClosingService) { s.linkBase = base }
}

// WithEmailTimeout bounds each email dispatch.
func WithEmailTimeout(d time.Duration) Option {
	return func(s *ClosingService) {
		if d > 0 {
			s.emailTimeout = d
		}
	}
}

// WithLockWait bounds how long a rating waits for a run holding its
// challenge lock. Closing runs never wait.
func WithLockWait(d time.Duration) Option {
	return func(s *ClosingService) {
		if d >= 0 {
			s.lockWait = d
		}
	}
}

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ClosingService) { s.now = now }
}

func NewClosingService(deps Dependencies, opts ...Option) *ClosingService {
	s := &ClosingService{
		challenges:    deps.Challenges,
		skills:        deps.Skills,
		submissions:   deps.Submissions,
		progressions:  deps.Progressions,
		notifications: deps.Notifications,
		email:         deps.Email,
		lock:          deps.Lock,
		feed:          deps.Feed,
		metrics:       deps.Metrics,
		log:           deps.Logger,
		linkBase:      "/student/challenges",
		emailTimeout:  defaultEmailTimeout,
		lockWait:      defaultLockWait,
		now:           time.Now,
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StatusChange is the trigger emitted when a challenge record changes status.
type StatusChange struct {
	ChallengeID string
	OldStatus   domain.ChallengeStatus
	NewStatus   domain.ChallengeStatus
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	ChallengeID    string `json:"challenge_id,omitempty"`
	SubmissionID   string `json:"submission_id,omitempty"`
	Ignored        bool   `json:"ignored,omitempty"`
	Deferred       bool   `json:"deferred,omitempty"`
	Processed      int    `json:"processed"`
	Skipped        int    `json:"skipped"`
	AlreadyAwarded int    `json:"already_awarded"`
	Events         int    `json:"events"`
	Notifications  int    `json:"notifications"`
}

// HandleStatusChange runs the closing pipeline on a transition into
// "closed". Every other transition is ignored.
func (s *ClosingService) HandleStatusChange(ctx context.Context, change StatusChange) (RunResult, error) {
	if change.NewStatus != domain.ChallengeClosed || change.OldStatus == domain.ChallengeClosed {
		return RunResult{ChallengeID: change.ChallengeID, Ignored: true}, nil
	}
	return s.closeChallenge(ctx, change.ChallengeID, change.OldStatus, false)
}

// CloseChallenge runs the closing pipeline regardless of the stored status.
// manual marks runs started by a person (finalist selection, CLI) rather
// than by a status webhook.
func (s *ClosingService) CloseChallenge(ctx context.Context, challengeID string, manual bool) (RunResult, error) {
	return s.closeChallenge(ctx, challengeID, "", manual)
}

func (s *ClosingService) closeChallenge(ctx context.Context, challengeID string, oldStatus domain.ChallengeStatus, manual bool) (result RunResult, err error) {
	trigger := triggerStatusChange
	if manual {
		trigger = triggerManual
	}
	log := s.log.WithFields(logrus.Fields{"challenge_id": challengeID, "trigger": trigger})
	defer func() { s.observeRun(log, trigger, result, err) }()

	release, err := s.acquire(ctx, "challenge:"+challengeID, 0)
	if err != nil {
		return RunResult{ChallengeID: challengeID}, err
	}
	defer release()

	if inv, ok := s.skills.(SkillInvalidator); ok {
		if err := inv.Invalidate(ctx, challengeID); err != nil {
			log.WithError(err).Warn("invalidate cached challenge skills")
		}
	}

	challenge, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return RunResult{ChallengeID: challengeID}, fmt.Errorf("%w: challenge %s: %w", domain.ErrUpstreamRead, challengeID, err)
	}
	subs, err := s.submissions.ListForClosing(ctx, challengeID)
	if err != nil {
		return RunResult{ChallengeID: challengeID}, fmt.Errorf("%w: submissions: %w", domain.ErrUpstreamRead, err)
	}

	result = RunResult{ChallengeID: challengeID}
	if len(subs) == 0 {
		return result, nil
	}

	processed, result, err := s.award(ctx, log, challengeID, subs, result)
	if err != nil {
		return result, err
	}

	notifyErr := s.notify(ctx, challenge, processed, closedMessage, &result)

	// Every close trigger emails, including one whose submissions were all
	// awarded earlier by late ratings.
	if oldStatus == "" {
		oldStatus = challenge.Status
	}
	record := challenge
	record.Status = domain.ChallengeClosed
	old := challenge
	old.Status = oldStatus
	s.dispatchEmail(log, domain.ChallengeEmail{Record: record, OldRecord: old, ManualTrigger: manual})

	return result, notifyErr
}

// AwardSubmission awards XP for a single submission that was just rated.
// While the challenge is still open the award is deferred to the close run,
// which knows the final placements.
func (s *ClosingService) AwardSubmission(ctx context.Context, submissionID string) (result RunResult, err error) {
	log := s.log.WithFields(logrus.Fields{"submission_id": submissionID, "trigger": triggerRated})
	defer func() { s.observeRun(log, triggerRated, result, err) }()

	sub, err := s.submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return RunResult{SubmissionID: submissionID}, fmt.Errorf("%w: submission %s: %w", domain.ErrUpstreamRead, submissionID, err)
	}
	result = RunResult{ChallengeID: sub.ChallengeID, SubmissionID: submissionID}
	if !sub.Scorable() {
		result.Skipped = 1
		return result, nil
	}

	challenge, err := s.challenges.GetChallenge(ctx, sub.ChallengeID)
	if err != nil {
		return result, fmt.Errorf("%w: challenge %s: %w", domain.ErrUpstreamRead, sub.ChallengeID, err)
	}
	if challenge.Status == domain.ChallengeDraft || challenge.Status == domain.ChallengeOpen {
		log.WithField("challenge_status", challenge.Status).Debug("rating deferred until challenge closes")
		result.Deferred = true
		return result, nil
	}

	// Shares the challenge lock so a rating and a close cannot award the
	// same submission twice.
	release, err := s.acquire(ctx, "challenge:"+sub.ChallengeID, s.lockWait)
	if err != nil {
		return result, err
	}
	defer release()

	processed, result, err := s.award(ctx, log, sub.ChallengeID, []domain.Submission{sub}, result)
	if err != nil {
		return result, err
	}
	return result, s.notify(ctx, challenge, processed, ratedMessage, &result)
}

// Wait blocks until in-flight email dispatches finish.
func (s *ClosingService) Wait() {
	s.emails.Wait()
}

type runState struct {
	skillIDs []string
	students []domain.StudentProgression
	skills   []domain.SkillProgression
	awarded  map[string]bool
}

// loadState fetches everything the awards depend on in one round of
// batched reads. Any failure aborts the run before a write is attempted.
func (s *ClosingService) loadState(ctx context.Context, challengeID string, subs []domain.Submission) (runState, error) {
	studentIDs, submissionIDs := involved(subs)

	var st runState
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := s.skills.ChallengeSkillIDs(gctx, challengeID)
		if err != nil {
			return fmt.Errorf("challenge skills: %w", err)
		}
		st.skillIDs = ids
		return nil
	})
	g.Go(func() error {
		students, err := s.progressions.StudentProgressions(gctx, studentIDs)
		if err != nil {
			return fmt.Errorf("student progressions: %w", err)
		}
		st.students = students
		return nil
	})
	g.Go(func() error {
		skills, err := s.progressions.SkillProgressions(gctx, studentIDs)
		if err != nil {
			return fmt.Errorf("skill progressions: %w", err)
		}
		st.skills = skills
		return nil
	})
	g.Go(func() error {
		awarded, err := s.progressions.AwardedSubmissions(gctx, submissionIDs)
		if err != nil {
			return fmt.Errorf("awarded submissions: %w", err)
		}
		st.awarded = awarded
		return nil
	})
	if err := g.Wait(); err != nil {
		return runState{}, fmt.Errorf("%w: %w", domain.ErrUpstreamRead, err)
	}
	return st, nil
}

// award computes and persists XP for subs. It returns the submissions that
// were actually awarded.
func (s *ClosingService) award(ctx context.Context, log logrus.FieldLogger, challengeID string, subs []domain.Submission, result RunResult) ([]domain.Submission, RunResult, error) {
	st, err := s.loadState(ctx, challengeID, subs)
	if err != nil {
		return nil, result, err
	}

	ledger := progression.NewLedger(st.students, st.skills)
	recorder := progression.NewRecorderWithClock(s.now)
	processed := make([]domain.Submission, 0, len(subs))

	for _, sub := range subs {
		if st.awarded[sub.ID] {
			result.AlreadyAwarded++
			continue
		}
		_, ok, err := progression.ApplySubmission(ledger, recorder, sub, st.skillIDs)
		if err != nil {
			log.WithError(err).WithField("submission_id", sub.ID).Warn("skipping submission with invalid rating")
			result.Skipped++
			continue
		}
		if !ok {
			result.Skipped++
			continue
		}
		processed = append(processed, sub)
	}

	students, skills := ledger.Changes()
	batch := domain.AwardBatch{Students: students, Skills: skills, Events: recorder.Events()}
	if batch.Empty() {
		return processed, result, nil
	}
	if err := s.progressions.SaveAwards(ctx, batch); err != nil {
		return nil, result, fmt.Errorf("%w: %w", domain.ErrPersist, err)
	}

	result.Processed = len(processed)
	result.Events = len(batch.Events)
	for _, evt := range batch.Events {
		s.metrics.ObserveEvent(string(evt.EventType), evt.XPGained, evt.NewLevel != nil)
	}
	for range processed {
		s.metrics.ObserveSubmission()
	}
	if s.feed != nil {
		s.feed.Publish(batch.Events)
	}
	log.WithFields(logrus.Fields{
		"processed": result.Processed,
		"events":    result.Events,
		"students":  len(batch.Students),
		"skills":    len(batch.Skills),
	}).Info("xp awarded")
	return processed, result, nil
}

func (s *ClosingService) notify(ctx context.Context, challenge domain.Challenge, processed []domain.Submission, message func(domain.Challenge, domain.Submission) string, result *RunResult) error {
	if len(processed) == 0 {
		return nil
	}
	notifications := make([]domain.Notification, 0, len(processed))
	for _, sub := range processed {
		notifications = append(notifications, domain.Notification{
			ID:        uuid.NewString(),
			UserID:    sub.StudentID,
			Message:   message(challenge, sub),
			LinkURL:   s.linkBase + "/" + challenge.ID,
			CreatedAt: s.now().UTC(),
		})
	}
	if err := s.notifications.CreateNotifications(ctx, notifications); err != nil {
		return fmt.Errorf("create notifications: %w", err)
	}
	result.Notifications = len(notifications)
	return nil
}

// dispatchEmail sends the closing email on its own goroutine. Its outcome
// never reaches the caller of the pipeline.
func (s *ClosingService) dispatchEmail(log logrus.FieldLogger, payload domain.ChallengeEmail) {
	if s.email == nil {
		return
	}
	s.emails.Add(1)
	go func() {
		defer s.emails.Done()
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("email dispatch panicked")
				s.metrics.ObserveEmail("failed")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.emailTimeout)
		defer cancel()
		if err := s.email.DispatchChallengeEmail(ctx, payload); err != nil {
			log.WithError(err).Warn("challenge email dispatch failed")
			s.metrics.ObserveEmail("failed")
			return
		}
		s.metrics.ObserveEmail("sent")
	}()
}

// acquire takes the run lock for key, retrying for up to wait while another
// run holds it. The returned func releases it.
func (s *ClosingService) acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	if s.lock == nil {
		return func() {}, nil
	}
	deadline := time.Now().Add(wait)
	for {
		ok, err := s.lock.Acquire(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, domain.ErrClosingInProgress
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
	return func() {
		if err := s.lock.Release(context.Background(), key); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("release run lock")
		}
	}, nil
}

func (s *ClosingService) observeRun(log logrus.FieldLogger, trigger string, result RunResult, err error) {
	switch {
	case err != nil:
		s.metrics.ObserveRun(trigger, "failed")
		log.WithError(err).Error("xp pipeline failed")
	case result.Ignored:
		s.metrics.ObserveRun(trigger, "ignored")
	case result.Deferred:
		s.metrics.ObserveRun(trigger, "deferred")
	default:
		s.metrics.ObserveRun(trigger, "ok")
	}
}

func involved(subs []domain.Submission) (studentIDs, submissionIDs []string) {
	seen := make(map[string]struct{}, len(subs))
	for _, sub := range subs {
		submissionIDs = append(submissionIDs, sub.ID)
		if _, ok := seen[sub.StudentID]; ok {
			continue
		}
		seen[sub.StudentID] = struct{}{}
		studentIDs = append(studentIDs, sub.StudentID)
	}
	sort.Strings(studentIDs)
	return studentIDs, submissionIDs
}

func closedMessage(challenge domain.Challenge, sub domain.Submission) string {
	if sub.Placed() {
		return placedMessage(challenge, sub)
	}
	return fmt.Sprintf("The challenge %q has closed and your solution was rated %d/10.", challenge.Title, *sub.Rating)
}

func ratedMessage(challenge domain.Challenge, sub domain.Submission) string {
	if sub.Placed() {
		return placedMessage(challenge, sub)
	}
	return fmt.Sprintf("Your solution for %q was rated %d/10.", challenge.Title, *sub.Rating)
}

func placedMessage(challenge domain.Challenge, sub domain.Submission) string {
	return fmt.Sprintf("Congratulations! You placed %s in the challenge %q.", ordinal(*sub.Position), challenge.Title)
}

func ordinal(position int) string {
	switch position {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	default:
		return fmt.Sprintf("%dth", position)
	}
}
