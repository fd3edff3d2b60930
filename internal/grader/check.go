package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/labgrader/internal/answer"
	appI18n "github.com/pavelanni/labgrader/internal/i18n"
	"github.com/pavelanni/labgrader/internal/model"
)

// maxSessionRetries bounds the fresh-session retries of a single CheckAnswer call.
const maxSessionRetries = 1

// CheckAnswer submits ans for lab/exercise to endpoint.
//
// A nil answer, or a value that is not a Circuit or PulseProgram, is skipped
// without any request. When the server rejects a submission with no cause or
// with an owner mismatch while a session was attached, the submission is
// repeated once without the session. The session echoed by the server is
// returned even when the answer is wrong.
func (c *Client) CheckAnswer(ctx context.Context, ans any, labID, exID string, p model.Participant, endpoint, sess string) (model.SubmissionResult, error) {
	res := model.SubmissionResult{Session: sess}

	if ans == nil {
		res.Skipped = true
		res.Message = c.resultLine(labID, exID, appI18n.T(ctx, "Skip"), appI18n.T(ctx, "SkipNilAnswer"))
		return res, nil
	}
	a, ok := answer.From(ans)
	if !ok {
		res.Skipped = true
		detail := appI18n.Td(ctx, "SkipWrongType", map[string]any{"Type": fmt.Sprintf("%T", ans)})
		res.Message = c.resultLine(labID, exID, appI18n.T(ctx, "Skip"), detail)
		return res, nil
	}

	encoded, err := answer.Encode(a)
	if err != nil {
		return res, err
	}
	req := model.ValidateRequest{
		Answer:           encoded,
		AnswerType:       a.Type(),
		ParticipantName:  p.Name,
		ParticipantEmail: p.Email,
		LabID:            labID,
		ExID:             exID,
	}

	for attempt := 0; ; attempt++ {
		req.Session = sess
		var resp validateReply
		if err := c.SendRequest(ctx, req, endpoint, &resp); err != nil {
			return res, fmt.Errorf("validate answer %s/%s: %w", labID, exID, err)
		}

		res.IsUpdate = resp.isUpdate()
		res.Session = resp.Session

		if resp.IsValid {
			res.Correct = true
			res.Message = c.resultLine(labID, exID, appI18n.T(ctx, "Correct"), "")
			return res, nil
		}

		cause, stale := resp.cause()
		if stale && sess != "" && attempt < maxSessionRetries {
			slog.Info("session rejected, retrying without it", "lab", labID, "exercise", exID, "cause", cause)
			fmt.Fprintln(c.out, strings.TrimSpace(cause+" "+appI18n.T(ctx, "RetryingFreshSession")))
			sess = ""
			continue
		}

		res.Message = c.resultLine(labID, exID, appI18n.T(ctx, "Failed"), cause)
		return res, nil
	}
}

// validateReply is the client's view of a /validate-answer response. Servers
// are not consistent about the types of cause and is_update, so both are kept raw.
type validateReply struct {
	IsValid  bool            `json:"is_valid"`
	IsUpdate json.RawMessage `json:"is_update"`
	Cause    json.RawMessage `json:"cause"`
	Session  string          `json:"session"`
}

// isUpdate is true when the field is absent, false for null, and the
// truthiness of the value otherwise.
func (r validateReply) isUpdate() bool {
	if len(r.IsUpdate) == 0 {
		return true
	}
	var v any
	if err := json.Unmarshal(r.IsUpdate, &v); err != nil {
		return true
	}
	return truthy(v)
}

// cause renders the rejection cause and reports whether it means the server
// did not recognise the session. A missing or null cause counts as stale;
// only a string cause can name an owner mismatch.
func (r validateReply) cause() (string, bool) {
	if len(r.Cause) == 0 || string(r.Cause) == "null" {
		return "", true
	}
	var s string
	if err := json.Unmarshal(r.Cause, &s); err == nil {
		return s, strings.Contains(s, model.CauseOwnerMismatch)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, r.Cause); err != nil {
		return string(r.Cause), false
	}
	return buf.String(), false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func (c *Client) resultLine(labID, exID, status, detail string) string {
	if c.verbose && detail != "" {
		status += ": " + detail
	}
	return fmt.Sprintf("%s/%s - %s", labID, exID, status)
}
