package model

// Default sentinel advertised by a grading server on GET /.
const (
	DefaultSentinelKey   = "Qiskit Global Summer School"
	DefaultSentinelValue = "2020"
)

// Record field names returned by /commit-answers.
const (
	RecordCorrect   = "Correct answers"
	RecordIncorrect = "Incorrect answers"
)

// Server-side causes the client reacts to.
const (
	CauseOwnerMismatch  = "owner does not match request owner"
	CauseCannotDecipher = "Cannot decipher session"
)

// ValidateRequest is the body of POST /validate-answer.
type ValidateRequest struct {
	Answer           string `json:"answer"`
	AnswerType       string `json:"answer_type"`
	ParticipantName  string `json:"participant_name"`
	ParticipantEmail string `json:"participant_email"`
	LabID            string `json:"lab_id"`
	ExID             string `json:"ex_id"`
	Session          string `json:"session,omitempty"`
}

// ValidateResponse is the body returned by /validate-answer.
type ValidateResponse struct {
	IsValid  bool    `json:"is_valid"`
	IsUpdate *bool   `json:"is_update,omitempty"`
	Cause    *string `json:"cause,omitempty"`
	Session  string  `json:"session,omitempty"`
}

// CommitRequest is the body of POST /commit-answers.
type CommitRequest struct {
	ParticipantEmail string `json:"participant_email"`
	Session          string `json:"session"`
}

// CommitResponse is the body returned by /commit-answers.
type CommitResponse struct {
	IsCommitted bool           `json:"is_committed"`
	Cause       string         `json:"cause,omitempty"`
	Details     *CommitDetails `json:"details,omitempty"`
}

// CommitDetails wraps the record fields the server chose to return.
type CommitDetails struct {
	Fields map[string]any `json:"fields,omitempty"`
}

// SendFileRequest is the body of POST /send-file.
type SendFileRequest struct {
	Filename string `json:"filename"`
	Hash     string `json:"hash"`
	Content  string `json:"content"`
}

// SendFileResponse is the body returned by /send-file.
type SendFileResponse struct {
	IsSent bool   `json:"is_sent"`
	Cause  string `json:"cause,omitempty"`
}
