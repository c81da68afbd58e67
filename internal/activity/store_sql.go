package activity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) CreateInstance(ctx context.Context, in Instance) (Instance, error) {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	err := s.db.QueryRowContext(ctx, `INSERT INTO jupyter (course,context_id,name,autograded,assignment,created_at)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		in.CourseID, in.ContextID, in.Name, in.Autograded, nullString(in.Assignment), in.CreatedAt.Unix()).
		Scan(&in.ID)
	if err != nil {
		return Instance{}, err
	}
	return in, nil
}

func (s *SQLStore) GetInstance(ctx context.Context, id int64) (Instance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,course,context_id,name,autograded,assignment,created_at FROM jupyter WHERE id=$1`, id)
	var in Instance
	var assignment sql.NullString
	var created int64
	if err := row.Scan(&in.ID, &in.CourseID, &in.ContextID, &in.Name, &in.Autograded, &assignment, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Instance{}, ErrNotFound
		}
		return Instance{}, err
	}
	if assignment.Valid {
		in.Assignment = &assignment.String
	}
	in.CreatedAt = time.Unix(created, 0)
	return in, nil
}

func (s *SQLStore) SetAssignment(ctx context.Context, instanceID, courseID int64, filename *string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jupyter SET assignment=$1 WHERE id=$2 AND course=$3`,
		nullString(filename), instanceID, courseID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) SetQuestions(ctx context.Context, instanceID int64, qs []Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM jupyter_questions WHERE jupyter=$1`, instanceID); err != nil {
		return err
	}
	for _, q := range qs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO jupyter_questions (jupyter,questionnr,maxpoints) VALUES ($1,$2,$3)`,
			instanceID, q.QuestionNr, q.MaxPoints); err != nil {
			return fmt.Errorf("question %d: %w", q.QuestionNr, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) ListQuestions(ctx context.Context, instanceID int64) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT jupyter,questionnr,maxpoints FROM jupyter_questions WHERE jupyter=$1 ORDER BY questionnr`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.InstanceID, &q.QuestionNr, &q.MaxPoints); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetQuestion(ctx context.Context, instanceID int64, nr int) (Question, error) {
	var q Question
	err := s.db.QueryRowContext(ctx, `SELECT jupyter,questionnr,maxpoints FROM jupyter_questions WHERE jupyter=$1 AND questionnr=$2`,
		instanceID, nr).Scan(&q.InstanceID, &q.QuestionNr, &q.MaxPoints)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrNotFound
	}
	return q, err
}

func (s *SQLStore) UpsertPoints(ctx context.Context, instanceID int64, user string, pts []Points) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := time.Now().Unix()
	for _, p := range pts {
		if _, err := tx.ExecContext(ctx, `INSERT INTO jupyter_questions_points (jupyter,userid,questionnr,points,updated_at)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (jupyter,userid,questionnr) DO UPDATE SET points=EXCLUDED.points, updated_at=EXCLUDED.updated_at`,
			instanceID, user, p.QuestionNr, p.Points, now); err != nil {
			return fmt.Errorf("points for question %d: %w", p.QuestionNr, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) ListPoints(ctx context.Context, instanceID int64, user string) ([]Points, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,jupyter,userid,questionnr,points FROM jupyter_questions_points
		WHERE jupyter=$1 AND userid=$2 ORDER BY id`, instanceID, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Points
	for rows.Next() {
		var p Points
		if err := rows.Scan(&p.ID, &p.InstanceID, &p.User, &p.QuestionNr, &p.Points); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
