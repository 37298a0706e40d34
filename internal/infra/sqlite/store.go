package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"risehigh-xp-service/internal/domain"
)

// Store implements the app repositories on an embedded SQLite database for
// single-node deployments.
type Store struct {
	db *gorm.DB
}

// Open connects to the database at path (":memory:" for a throwaway one)
// and migrates the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	sqlDB.SetMaxOpenConns(1)

	if path != ":memory:" {
		if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertChallenge stores a challenge and replaces its skill set.
func (s *Store) UpsertChallenge(ctx context.Context, challenge domain.Challenge, skillIDs ...string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := ChallengeRow{ID: challenge.ID, Title: challenge.Title, Status: string(challenge.Status)}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "status"}),
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("upsert challenge: %w", err)
		}
		if err := tx.Where("challenge_id = ?", challenge.ID).Delete(&ChallengeSkillRow{}).Error; err != nil {
			return fmt.Errorf("reset challenge skills: %w", err)
		}
		if len(skillIDs) == 0 {
			return nil
		}
		links := make([]ChallengeSkillRow, 0, len(skillIDs))
		for _, id := range skillIDs {
			links = append(links, ChallengeSkillRow{ChallengeID: challenge.ID, SkillID: id})
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error; err != nil {
			return fmt.Errorf("insert challenge skills: %w", err)
		}
		return nil
	})
}

// UpsertSubmission stores a submission as rated by the judges.
func (s *Store) UpsertSubmission(ctx context.Context, sub domain.Submission) error {
	row := SubmissionRow{
		ID:          sub.ID,
		StudentID:   sub.StudentID,
		ChallengeID: sub.ChallengeID,
		Rating:      sub.Rating,
		Position:    sub.Position,
		Status:      string(sub.Status),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "position", "status"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	return nil
}

func (s *Store) GetChallenge(ctx context.Context, challengeID string) (domain.Challenge, error) {
	var row ChallengeRow
	err := s.db.WithContext(ctx).Where("id = ?", challengeID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("load challenge: %w", err)
	}
	return domain.Challenge{ID: row.ID, Title: row.Title, Status: domain.ChallengeStatus(row.Status)}, nil
}

func (s *Store) ChallengeSkillIDs(ctx context.Context, challengeID string) ([]string, error) {
	ids := []string{}
	err := s.db.WithContext(ctx).Model(&ChallengeSkillRow{}).
		Where("challenge_id = ?", challengeID).
		Order("skill_id").
		Pluck("skill_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load challenge skills: %w", err)
	}
	return ids, nil
}

func (s *Store) ListForClosing(ctx context.Context, challengeID string) ([]domain.Submission, error) {
	var rows []SubmissionRow
	err := s.db.WithContext(ctx).
		Where("challenge_id = ? AND status <> ?", challengeID, string(domain.SubmissionApplied)).
		Order("created_at, rowid").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	subs := make([]domain.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.toDomain())
	}
	return subs, nil
}

func (s *Store) GetSubmission(ctx context.Context, submissionID string) (domain.Submission, error) {
	var row SubmissionRow
	err := s.db.WithContext(ctx).Where("id = ?", submissionID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("load submission: %w", err)
	}
	return row.toDomain(), nil
}

func (r SubmissionRow) toDomain() domain.Submission {
	return domain.Submission{
		ID:          r.ID,
		StudentID:   r.StudentID,
		ChallengeID: r.ChallengeID,
		Rating:      r.Rating,
		Position:    r.Position,
		Status:      domain.SubmissionStatus(r.Status),
	}
}

func (s *Store) StudentProgressions(ctx context.Context, studentIDs []string) ([]domain.StudentProgression, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	var rows []StudentProfileRow
	if err := s.db.WithContext(ctx).Where("user_id IN ?", studentIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load student profiles: %w", err)
	}
	out := make([]domain.StudentProgression, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.StudentProgression{StudentID: row.StudentID, Level: row.Level, XP: row.XP})
	}
	return out, nil
}

func (s *Store) SkillProgressions(ctx context.Context, studentIDs []string) ([]domain.SkillProgression, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	var rows []StudentSkillRow
	err := s.db.WithContext(ctx).
		Where("student_id IN ?", studentIDs).
		Order("student_id, skill_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load student skills: %w", err)
	}
	out := make([]domain.SkillProgression, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.SkillProgression{StudentID: row.StudentID, SkillID: row.SkillID, Level: row.Level, XP: row.XP})
	}
	return out, nil
}

func (s *Store) AwardedSubmissions(ctx context.Context, submissionIDs []string) (map[string]bool, error) {
	awarded := make(map[string]bool)
	if len(submissionIDs) == 0 {
		return awarded, nil
	}
	var ids []string
	err := s.db.WithContext(ctx).Model(&XpEventRow{}).
		Where("submission_id IN ?", submissionIDs).
		Pluck("submission_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load awarded submissions: %w", err)
	}
	for _, id := range ids {
		awarded[id] = true
	}
	return awarded, nil
}

// SaveAwards writes one run's progressions and events in a transaction.
func (s *Store) SaveAwards(ctx context.Context, batch domain.AwardBatch) error {
	if batch.Empty() {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(batch.Students) > 0 {
			rows := make([]StudentProfileRow, 0, len(batch.Students))
			for _, p := range batch.Students {
				rows = append(rows, StudentProfileRow{StudentID: p.StudentID, Level: p.Level, XP: p.XP})
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"level", "xp", "updated_at"}),
			}).Create(&rows).Error; err != nil {
				return fmt.Errorf("upsert student profiles: %w", err)
			}
		}
		if len(batch.Skills) > 0 {
			rows := make([]StudentSkillRow, 0, len(batch.Skills))
			for _, p := range batch.Skills {
				rows = append(rows, StudentSkillRow{StudentID: p.StudentID, SkillID: p.SkillID, Level: p.Level, XP: p.XP})
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "student_id"}, {Name: "skill_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"level", "xp", "updated_at"}),
			}).Create(&rows).Error; err != nil {
				return fmt.Errorf("upsert student skills: %w", err)
			}
		}
		if len(batch.Events) > 0 {
			rows := make([]XpEventRow, 0, len(batch.Events))
			for _, evt := range batch.Events {
				rows = append(rows, XpEventRow{
					ID:           evt.ID,
					StudentID:    evt.StudentID,
					SubmissionID: evt.SubmissionID,
					EventType:    string(evt.EventType),
					XPGained:     evt.XPGained,
					SkillID:      evt.SkillID,
					NewLevel:     evt.NewLevel,
					CreatedAt:    evt.CreatedAt,
				})
			}
			if err := tx.Create(&rows).Error; err != nil {
				if isDuplicate(err) {
					return fmt.Errorf("%w: %v", domain.ErrAlreadyAwarded, err)
				}
				return fmt.Errorf("insert xp events: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) EventsForSubmission(ctx context.Context, submissionID string) ([]domain.XpEvent, error) {
	var rows []XpEventRow
	err := s.db.WithContext(ctx).Where("submission_id = ?", submissionID).Order("rowid").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load xp events: %w", err)
	}
	out := make([]domain.XpEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.XpEvent{
			ID:           row.ID,
			StudentID:    row.StudentID,
			SubmissionID: row.SubmissionID,
			EventType:    domain.EventType(row.EventType),
			XPGained:     row.XPGained,
			SkillID:      row.SkillID,
			NewLevel:     row.NewLevel,
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (s *Store) CreateNotifications(ctx context.Context, notifications []domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	rows := make([]NotificationRow, 0, len(notifications))
	for _, n := range notifications {
		rows = append(rows, NotificationRow{ID: n.ID, UserID: n.UserID, Message: n.Message, LinkURL: n.LinkURL, CreatedAt: n.CreatedAt})
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert notifications: %w", err)
	}
	return nil
}

// NotificationsFor lists a user's notifications, newest last.
func (s *Store) NotificationsFor(ctx context.Context, userID string) ([]domain.Notification, error) {
	var rows []NotificationRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("rowid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	out := make([]domain.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Notification{ID: row.ID, UserID: row.UserID, Message: row.Message, LinkURL: row.LinkURL, CreatedAt: row.CreatedAt.UTC()})
	}
	return out, nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}
