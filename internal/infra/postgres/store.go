package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"risehigh-xp-service/internal/domain"
)

const uniqueViolation = "23505"

// Store implements the app repositories on top of a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetChallenge(ctx context.Context, challengeID string) (domain.Challenge, error) {
	var c domain.Challenge
	err := s.pool.QueryRow(ctx, `SELECT id, title, status FROM challenges WHERE id=$1`, challengeID).
		Scan(&c.ID, &c.Title, &c.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("load challenge: %w", err)
	}
	return c, nil
}

func (s *Store) ChallengeSkillIDs(ctx context.Context, challengeID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT skill_id FROM challenge_skills WHERE challenge_id=$1 ORDER BY skill_id`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("load challenge skills: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan challenge skill: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const submissionColumns = `id, student_id, challenge_id, rating, position, status`

func (s *Store) ListForClosing(ctx context.Context, challengeID string) ([]domain.Submission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE challenge_id=$1 AND status <> 'applied'
		 ORDER BY created_at, id`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) GetSubmission(ctx context.Context, submissionID string) (domain.Submission, error) {
	sub, err := scanSubmission(s.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=$1`, submissionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	return sub, err
}

func scanSubmission(row pgx.Row) (domain.Submission, error) {
	var sub domain.Submission
	if err := row.Scan(&sub.ID, &sub.StudentID, &sub.ChallengeID, &sub.Rating, &sub.Position, &sub.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Submission{}, err
		}
		return domain.Submission{}, fmt.Errorf("scan submission: %w", err)
	}
	return sub, nil
}

func (s *Store) StudentProgressions(ctx context.Context, studentIDs []string) ([]domain.StudentProgression, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT user_id, level, xp FROM student_profiles WHERE user_id = ANY($1)`, studentIDs)
	if err != nil {
		return nil, fmt.Errorf("load student profiles: %w", err)
	}
	defer rows.Close()

	var out []domain.StudentProgression
	for rows.Next() {
		var p domain.StudentProgression
		if err := rows.Scan(&p.StudentID, &p.Level, &p.XP); err != nil {
			return nil, fmt.Errorf("scan student profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) SkillProgressions(ctx context.Context, studentIDs []string) ([]domain.SkillProgression, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT student_id, skill_id, level, xp FROM student_skills
		 WHERE student_id = ANY($1) ORDER BY student_id, skill_id`, studentIDs)
	if err != nil {
		return nil, fmt.Errorf("load student skills: %w", err)
	}
	defer rows.Close()

	var out []domain.SkillProgression
	for rows.Next() {
		var p domain.SkillProgression
		if err := rows.Scan(&p.StudentID, &p.SkillID, &p.Level, &p.XP); err != nil {
			return nil, fmt.Errorf("scan student skill: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) AwardedSubmissions(ctx context.Context, submissionIDs []string) (map[string]bool, error) {
	awarded := make(map[string]bool)
	if len(submissionIDs) == 0 {
		return awarded, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT submission_id FROM xp_events WHERE submission_id = ANY($1)`, submissionIDs)
	if err != nil {
		return nil, fmt.Errorf("load awarded submissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan awarded submission: %w", err)
		}
		awarded[id] = true
	}
	return awarded, rows.Err()
}

// SaveAwards writes the progressions and events of one run in a single
// transaction. A racing duplicate award trips the xp_events unique index
// and is reported as domain.ErrAlreadyAwarded.
func (s *Store) SaveAwards(ctx context.Context, batch domain.AwardBatch) error {
	if batch.Empty() {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	b := &pgx.Batch{}
	for _, p := range batch.Students {
		b.Queue(`INSERT INTO student_profiles (user_id, level, xp, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (user_id) DO UPDATE SET level=EXCLUDED.level, xp=EXCLUDED.xp, updated_at=now()`,
			p.StudentID, p.Level, p.XP)
	}
	for _, p := range batch.Skills {
		b.Queue(`INSERT INTO student_skills (student_id, skill_id, level, xp, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (student_id, skill_id) DO UPDATE SET level=EXCLUDED.level, xp=EXCLUDED.xp, updated_at=now()`,
			p.StudentID, p.SkillID, p.Level, p.XP)
	}
	for _, evt := range batch.Events {
		b.Queue(`INSERT INTO xp_events (id, student_id, submission_id, event_type, xp_gained, skill_id, new_level, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			evt.ID, evt.StudentID, evt.SubmissionID, string(evt.EventType), evt.XPGained, nullable(evt.SkillID), evt.NewLevel, evt.CreatedAt)
	}

	results := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return mapWriteError(err)
		}
	}
	if err := results.Close(); err != nil {
		return mapWriteError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *Store) EventsForSubmission(ctx context.Context, submissionID string) ([]domain.XpEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, student_id, submission_id, event_type, xp_gained, skill_id, new_level, created_at
		 FROM xp_events WHERE submission_id=$1
		 ORDER BY seq`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("load xp events: %w", err)
	}
	defer rows.Close()

	var out []domain.XpEvent
	for rows.Next() {
		var (
			evt     domain.XpEvent
			skillID *string
		)
		if err := rows.Scan(&evt.ID, &evt.StudentID, &evt.SubmissionID, &evt.EventType, &evt.XPGained, &skillID, &evt.NewLevel, &evt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan xp event: %w", err)
		}
		if skillID != nil {
			evt.SkillID = *skillID
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (s *Store) CreateNotifications(ctx context.Context, notifications []domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, n := range notifications {
		b.Queue(`INSERT INTO notifications (id, user_id, message, link_url, created_at) VALUES ($1, $2, $3, $4, $5)`,
			n.ID, n.UserID, n.Message, n.LinkURL, n.CreatedAt)
	}
	results := s.pool.SendBatch(ctx, b)
	defer results.Close()
	for i := 0; i < b.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	return nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyAwarded, pgErr.ConstraintName)
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
