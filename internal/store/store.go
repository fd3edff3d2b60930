package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/labgrader/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS validations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		lab_id TEXT NOT NULL,
		ex_id TEXT NOT NULL,
		answer_type TEXT NOT NULL DEFAULT '',
		expected TEXT NOT NULL,
		UNIQUE (lab_id, ex_id)
	);

	CREATE TABLE IF NOT EXISTS commits (
		email TEXT PRIMARY KEY,
		correct TEXT NOT NULL DEFAULT '',
		incorrect TEXT NOT NULL DEFAULT '',
		committed_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS submitted_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		hash TEXT NOT NULL,
		content BLOB NOT NULL,
		received_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertValidation stores the expected answer for an exercise.
func (s *Store) UpsertValidation(v model.Validation) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO validations (lab_id, ex_id, answer_type, expected) VALUES (?, ?, ?, ?)
		 ON CONFLICT(lab_id, ex_id) DO UPDATE SET answer_type = ?, expected = ?`,
		v.LabID, v.ExID, v.AnswerType, v.Expected, v.AnswerType, v.Expected,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetValidation returns the answer key for an exercise, or nil if there is none.
func (s *Store) GetValidation(labID, exID string) (*model.Validation, error) {
	var v model.Validation
	err := s.db.QueryRow(
		`SELECT id, lab_id, ex_id, answer_type, expected FROM validations WHERE lab_id = ? AND ex_id = ?`,
		labID, exID,
	).Scan(&v.ID, &v.LabID, &v.ExID, &v.AnswerType, &v.Expected)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListExercises returns every exercise that has an answer key, in insertion order.
func (s *Store) ListExercises() ([]model.Exercise, error) {
	rows, err := s.db.Query(`SELECT lab_id, ex_id FROM validations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exercises []model.Exercise
	for rows.Next() {
		var e model.Exercise
		if err := rows.Scan(&e.LabID, &e.ExID); err != nil {
			return nil, err
		}
		exercises = append(exercises, e)
	}
	return exercises, rows.Err()
}

// ValidationCount returns the number of answer keys.
func (s *Store) ValidationCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM validations`).Scan(&count)
	return count, err
}

// UpsertCommit replaces the committed tally of a participant.
func (s *Store) UpsertCommit(c model.Commit) error {
	correct := strings.Join(c.Correct, ",")
	incorrect := strings.Join(c.Incorrect, ",")
	_, err := s.db.Exec(
		`INSERT INTO commits (email, correct, incorrect, committed_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET correct = ?, incorrect = ?, committed_at = ?`,
		c.Email, correct, incorrect, c.CommittedAt,
		correct, incorrect, c.CommittedAt,
	)
	return err
}

// GetCommit returns the last commit of a participant, or nil.
func (s *Store) GetCommit(email string) (*model.Commit, error) {
	var c model.Commit
	var correct, incorrect string
	err := s.db.QueryRow(
		`SELECT email, correct, incorrect, committed_at FROM commits WHERE email = ?`, email,
	).Scan(&c.Email, &correct, &incorrect, &c.CommittedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Correct = splitList(correct)
	c.Incorrect = splitList(incorrect)
	return &c, nil
}

// ListCommits returns all commits, most recent first.
func (s *Store) ListCommits() ([]model.Commit, error) {
	rows, err := s.db.Query(`SELECT email, correct, incorrect, committed_at FROM commits ORDER BY committed_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var commits []model.Commit
	for rows.Next() {
		var c model.Commit
		var correct, incorrect string
		if err := rows.Scan(&c.Email, &correct, &incorrect, &c.CommittedAt); err != nil {
			return nil, err
		}
		c.Correct = splitList(correct)
		c.Incorrect = splitList(incorrect)
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

// AddFile stores an uploaded source file.
func (s *Store) AddFile(f model.SubmittedFile) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO submitted_files (filename, hash, content, received_at) VALUES (?, ?, ?, ?)`,
		f.Filename, f.Hash, f.Content, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetFile returns an uploaded file by ID.
func (s *Store) GetFile(id int64) (model.SubmittedFile, error) {
	var f model.SubmittedFile
	err := s.db.QueryRow(
		`SELECT id, filename, hash, content, received_at FROM submitted_files WHERE id = ?`, id,
	).Scan(&f.ID, &f.Filename, &f.Hash, &f.Content, &f.ReceivedAt)
	return f, err
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
