package handler

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/pavelanni/labgrader/internal/model"
	"github.com/pavelanni/labgrader/internal/store"
	"github.com/pavelanni/labgrader/internal/token"
)

const causeWrongAnswer = "wrong answer"

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	sealer *token.Sealer
	config model.ServerConfig
}

// New creates a new Handler.
func New(s *store.Store, sl *token.Sealer, cfg model.ServerConfig) (*Handler, error) {
	if cfg.SentinelKey == "" {
		cfg.SentinelKey = model.DefaultSentinelKey
		cfg.SentinelValue = model.DefaultSentinelValue
	}
	return &Handler{store: s, sealer: sl, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Post("/validate-answer", h.handleValidate)
		r.Post("/commit-answers", h.handleCommit)
		r.Post("/send-file", h.handleSendFile)
	})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	exercises, err := h.store.ListExercises()
	if err != nil {
		writeError(w, err)
		return
	}
	index := map[string]any{h.config.SentinelKey: h.config.SentinelValue}
	// No answer keys means no restriction list at all.
	if len(exercises) > 0 {
		pairs := make([][2]string, 0, len(exercises))
		for _, e := range exercises {
			pairs = append(pairs, [2]string{e.LabID, e.ExID})
		}
		index["available validations"] = pairs
	}
	writeJSON(w, http.StatusOK, index)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req model.ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	notUpdated := false
	sess, cause := h.openSession(req.Session, req.ParticipantEmail)
	switch cause {
	case "":
	case model.CauseCannotDecipher:
		// Tokens from a previous key can never be opened again; hand out a
		// fresh session so the client replaces its cache.
		h.writeValidate(w, newSession(req.ParticipantEmail), model.ValidateResponse{Cause: &cause, IsUpdate: &notUpdated})
		return
	default:
		writeJSON(w, http.StatusOK, model.ValidateResponse{Cause: &cause, IsUpdate: &notUpdated})
		return
	}

	key, err := h.store.GetValidation(req.LabID, req.ExID)
	if err != nil {
		writeError(w, err)
		return
	}
	if key == nil {
		cause := "no validation available for " + token.Key(req.LabID, req.ExID)
		h.writeValidate(w, sess, model.ValidateResponse{Cause: &cause, IsUpdate: &notUpdated})
		return
	}

	valid := sameAnswer(key, req)
	ex := token.Key(req.LabID, req.ExID)
	prev, seen := sess.Results[ex]
	isUpdate := !seen || prev != valid
	sess.Results[ex] = valid

	slog.Info("validated answer",
		"session", sess.ID,
		"lab", req.LabID,
		"exercise", req.ExID,
		"participant", req.ParticipantEmail,
		"valid", valid,
		"update", isUpdate,
	)

	resp := model.ValidateResponse{IsValid: valid, IsUpdate: &isUpdate}
	if !valid {
		c := causeWrongAnswer
		resp.Cause = &c
	}
	h.writeValidate(w, sess, resp)
}

func (h *Handler) writeValidate(w http.ResponseWriter, sess token.Session, resp model.ValidateResponse) {
	sess.IssuedAt = time.Now()
	tok, err := h.sealer.Seal(sess)
	if err != nil {
		writeError(w, err)
		return
	}
	resp.Session = tok
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req model.CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Session == "" {
		writeJSON(w, http.StatusOK, model.CommitResponse{Cause: "no session to commit"})
		return
	}
	sess, cause := h.openSession(req.Session, req.ParticipantEmail)
	if cause != "" {
		writeJSON(w, http.StatusOK, model.CommitResponse{Cause: cause})
		return
	}

	commit := model.Commit{Email: req.ParticipantEmail, CommittedAt: time.Now()}
	for ex, ok := range sess.Results {
		if ok {
			commit.Correct = append(commit.Correct, ex)
		} else {
			commit.Incorrect = append(commit.Incorrect, ex)
		}
	}
	slices.Sort(commit.Correct)
	slices.Sort(commit.Incorrect)

	if err := h.store.UpsertCommit(commit); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("committed answers", "session", sess.ID, "participant", req.ParticipantEmail,
		"correct", len(commit.Correct), "incorrect", len(commit.Incorrect))

	fields := map[string]any{}
	if len(commit.Correct) > 0 {
		fields[model.RecordCorrect] = strings.Join(commit.Correct, ", ")
	}
	if len(commit.Incorrect) > 0 {
		fields[model.RecordIncorrect] = strings.Join(commit.Incorrect, ", ")
	}
	writeJSON(w, http.StatusOK, model.CommitResponse{
		IsCommitted: true,
		Details:     &model.CommitDetails{Fields: fields},
	})
}

func (h *Handler) handleSendFile(w http.ResponseWriter, r *http.Request) {
	if h.config.MaxFileSize > 0 {
		// base64 inflates by 4/3; leave room for the JSON envelope.
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxFileSize*2+1024)
	}
	var req model.SendFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusOK, model.SendFileResponse{Cause: "file too large"})
			return
		}
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeJSON(w, http.StatusOK, model.SendFileResponse{Cause: "content is not base64"})
		return
	}
	if h.config.MaxFileSize > 0 && int64(len(content)) > h.config.MaxFileSize {
		writeJSON(w, http.StatusOK, model.SendFileResponse{Cause: "file too large"})
		return
	}
	sum := sha1.Sum(content)
	if !strings.EqualFold(hex.EncodeToString(sum[:]), req.Hash) {
		writeJSON(w, http.StatusOK, model.SendFileResponse{Cause: "hash mismatch"})
		return
	}

	id, err := h.store.AddFile(model.SubmittedFile{Filename: req.Filename, Hash: req.Hash, Content: content})
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("received file", "id", id, "filename", req.Filename, "bytes", len(content))
	writeJSON(w, http.StatusOK, model.SendFileResponse{IsSent: true})
}

// openSession returns the session carried by tok, or a fresh one owned by
// email when tok is empty. A non-empty cause means the token was rejected.
func (h *Handler) openSession(tok, email string) (token.Session, string) {
	if tok == "" {
		return newSession(email), ""
	}
	sess, err := h.sealer.Open(tok)
	if err != nil {
		slog.Warn("rejected session token", "error", err)
		return sess, model.CauseCannotDecipher
	}
	if sess.Owner != email {
		slog.Warn("session owner mismatch", "owner", sess.Owner, "participant", email)
		return sess, model.CauseOwnerMismatch
	}
	if sess.Results == nil {
		sess.Results = map[string]bool{}
	}
	return sess, ""
}

func newSession(email string) token.Session {
	return token.Session{ID: uuid.NewString(), Owner: email, Results: map[string]bool{}}
}

// sameAnswer compares the submitted answer with the key structurally, so
// key order and whitespace do not matter.
func sameAnswer(key *model.Validation, req model.ValidateRequest) bool {
	if key.AnswerType != "" && key.AnswerType != req.AnswerType {
		return false
	}
	var got, want any
	if err := json.Unmarshal([]byte(req.Answer), &got); err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(key.Expected), &want); err != nil {
		slog.Error("answer key is not JSON", "lab", key.LabID, "exercise", key.ExID, "error", err)
		return false
	}
	return reflect.DeepEqual(got, want)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"cause": http.StatusText(http.StatusInternalServerError)})
}
