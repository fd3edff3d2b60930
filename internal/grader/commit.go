package grader

import (
	"context"
	"fmt"
	"io"

	appI18n "github.com/pavelanni/labgrader/internal/i18n"
	"github.com/pavelanni/labgrader/internal/model"
	"github.com/pavelanni/labgrader/internal/session"
)

// Commit asks server to finalize the answers accumulated in sess and prints
// the records it returns.
func (c *Client) Commit(ctx context.Context, labID, email, sess, server string) error {
	fmt.Fprintln(c.out, appI18n.Td(ctx, "SubmittingAnswers", map[string]any{"Lab": labID}))

	req := model.CommitRequest{ParticipantEmail: email, Session: sess}
	var resp model.CommitResponse
	if err := c.SendRequest(ctx, req, server+"/commit-answers", &resp); err != nil {
		return fmt.Errorf("commit answers for %s: %w", labID, err)
	}

	if !resp.IsCommitted {
		fmt.Fprintln(c.out, appI18n.Td(ctx, "CommitFailed", map[string]any{"Cause": resp.Cause}))
		return nil
	}
	fmt.Fprintln(c.out, appI18n.T(ctx, "RecordsHeader"))
	printRecord(c.out, resp, model.RecordCorrect)
	printRecord(c.out, resp, model.RecordIncorrect)
	return nil
}

// CommitAnswerFile commits the session stored in answerFile. An empty
// server is resolved with FindServer.
func (c *Client) CommitAnswerFile(ctx context.Context, labID, email, answerFile, server string) error {
	cache, err := c.sessionCache(answerFile)
	if err != nil {
		return err
	}
	sess, err := cache.Load()
	if err != nil {
		return err
	}
	if server == "" {
		var ok bool
		if server, ok = c.FindServer(ctx, "", ""); !ok {
			fmt.Fprintln(c.out, appI18n.T(ctx, "ServersDown"))
			return nil
		}
	}
	return c.Commit(ctx, labID, email, sess, server)
}

// printRecord prints one record field. Absent or empty fields print nothing.
func printRecord(w io.Writer, resp model.CommitResponse, record string) {
	if resp.Details == nil || resp.Details.Fields == nil {
		return
	}
	v, ok := resp.Details.Fields[record]
	if !ok || v == nil || v == "" {
		return
	}
	fmt.Fprintf(w, "%s: %v\n", record, v)
}

func (c *Client) sessionCache(answerFile string) (*session.File, error) {
	if answerFile != "" {
		return session.Open(answerFile, true)
	}
	return session.Open(c.sessionPath, false)
}
