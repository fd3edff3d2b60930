package grader

import (
	"context"
	"fmt"
	"log/slog"

	appI18n "github.com/pavelanni/labgrader/internal/i18n"
	"github.com/pavelanni/labgrader/internal/model"
	"github.com/pavelanni/labgrader/internal/validate"
)

// GradeRequest is one top-level grading run.
type GradeRequest struct {
	Answer      any
	Participant model.Participant
	LabID       string
	ExID        string
	// Server overrides discovery when set.
	Server string
	// AnswerFile overrides the session cache path; it must already exist.
	AnswerFile  string
	ForceCommit bool
}

// Grade runs a full submission: load the cached session, check the identity,
// pick a server, check the answer, store the new session and commit when the
// answer changed the participant's record or a commit was forced.
func (c *Client) Grade(ctx context.Context, r GradeRequest) error {
	cache, err := c.sessionCache(r.AnswerFile)
	if err != nil {
		return err
	}
	sess, err := cache.Load()
	if err != nil {
		return err
	}
	if err := validate.Participant(r.Participant); err != nil {
		return err
	}

	if r.LabID == "" {
		fmt.Fprintln(c.out, appI18n.T(ctx, "MissingLab"))
		return nil
	}
	if r.ExID == "" {
		fmt.Fprintln(c.out, appI18n.T(ctx, "MissingExercise"))
		return nil
	}

	fmt.Fprintln(c.out, appI18n.T(ctx, "Grading"))

	server := r.Server
	if server == "" {
		var ok bool
		if server, ok = c.FindServer(ctx, r.LabID, r.ExID); !ok {
			fmt.Fprintln(c.out, appI18n.T(ctx, "ServersDown"))
			return nil
		}
	}

	res, err := c.CheckAnswer(ctx, r.Answer, r.LabID, r.ExID, r.Participant, server+"/validate-answer", sess)
	if err != nil {
		return err
	}
	if res.Session != "" {
		if err := cache.Save(res.Session); err != nil {
			return err
		}
	}
	fmt.Fprintln(c.out, res.Message)
	slog.Info("graded answer",
		"lab", r.LabID,
		"exercise", r.ExID,
		"correct", res.Correct,
		"skipped", res.Skipped,
		"update", res.IsUpdate,
	)

	force := r.ForceCommit
	if res.IsUpdate {
		force = true
		if res.Correct {
			fmt.Fprintln(c.out, appI18n.T(ctx, "NewCorrectAnswer"))
		}
	}
	if force {
		return c.Commit(ctx, r.LabID, r.Participant.Email, res.Session, server)
	}
	return nil
}
