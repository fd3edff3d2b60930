package model

import "time"

// Placeholder identity values shipped in the exercise notebooks.
const (
	PlaceholderName  = "First Last"
	PlaceholderEmail = "first.last@domain.com"
)

// Participant identifies the person submitting answers.
type Participant struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SubmissionResult is the outcome of a single answer check.
type SubmissionResult struct {
	Message  string
	Session  string // empty means the server issued no session
	IsUpdate bool
	Correct  bool
	Skipped  bool
}

// Exercise names one lab/exercise pair.
type Exercise struct {
	LabID string `json:"lab_id"`
	ExID  string `json:"ex_id"`
}

// Validation is one answer-key entry served by the development server.
type Validation struct {
	ID         int64  `json:"id"`
	LabID      string `json:"lab_id"`
	ExID       string `json:"ex_id"`
	AnswerType string `json:"answer_type"`
	Expected   string `json:"expected"`
}

// ValidationImport is used for loading answer keys from JSON.
type ValidationImport struct {
	LabID      string `json:"lab_id"`
	ExID       string `json:"ex_id"`
	AnswerType string `json:"answer_type"`
	Expected   any    `json:"expected"`
}

// Commit holds the last committed tally for a participant.
type Commit struct {
	Email       string    `json:"email"`
	Correct     []string  `json:"correct"`
	Incorrect   []string  `json:"incorrect"`
	CommittedAt time.Time `json:"committed_at"`
}

// SubmittedFile is a source file uploaded through /send-file.
type SubmittedFile struct {
	ID         int64     `json:"id"`
	Filename   string    `json:"filename"`
	Hash       string    `json:"hash"`
	Content    []byte    `json:"-"`
	ReceivedAt time.Time `json:"received_at"`
}

// ServerConfig holds runtime parameters of the development server set via CLI flags.
type ServerConfig struct {
	SentinelKey   string
	SentinelValue string
	MaxFileSize   int64 // bytes accepted by /send-file, 0 means unlimited
}
