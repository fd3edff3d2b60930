package main

import (
	"bytes"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/labgrader/internal/handler"
	"github.com/pavelanni/labgrader/internal/model"
	"github.com/pavelanni/labgrader/internal/store"
	"github.com/pavelanni/labgrader/internal/token"
)

// gradingServer runs the local grading server with one answer key for lab1/ex1.
func gradingServer(t *testing.T) (*store.Store, string) {
	t.Helper()
	db := newTestStore(t)
	_, err := db.UpsertValidation(model.Validation{LabID: "lab1", ExID: "ex1", AnswerType: "QuantumCircuit", Expected: `{"qobj_id":"bell"}`})
	if err != nil {
		t.Fatalf("UpsertValidation: %v", err)
	}
	sealer, err := token.NewSealerHex("")
	if err != nil {
		t.Fatalf("NewSealerHex: %v", err)
	}
	h, err := handler.New(db, sealer, model.ServerConfig{})
	if err != nil {
		t.Fatalf("handler.New: %v", err)
	}
	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return db, srv.URL
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestGradeAndCommitCommands(t *testing.T) {
	db, url := gradingServer(t)
	dir := t.TempDir()
	answerPath := filepath.Join(dir, "bell.json")
	writeFile(t, answerPath, `{"qobj_id": "bell"}`)
	cache := filepath.Join(dir, "lab1.enc")
	writeFile(t, cache, "")
	defaultCache := filepath.Join(dir, "default.enc")

	gradeArgs := []string{
		"grade",
		"--server", url + "/",
		"--session-file", defaultCache,
		"--answer-file", cache,
		"--answer", answerPath,
		"--kind", "circuit",
		"--name", "Ada Lovelace",
		"--email", "ada@example.org",
		"--lab", "lab1",
		"--exercise", "ex1",
	}

	out, err := runCLI(t, gradeArgs...)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	for _, want := range []string{"lab1/ex1 - 🎉 Correct", "Hurray", "Correct answers: lab1/ex1"} {
		if !strings.Contains(out, want) {
			t.Errorf("grade output %q missing %q", out, want)
		}
	}
	if tok, _ := os.ReadFile(cache); len(tok) == 0 {
		t.Error("session not written to --answer-file")
	}
	if _, err := os.Stat(defaultCache); !os.IsNotExist(err) {
		t.Errorf("--session-file should be untouched when --answer-file is given: %v", err)
	}

	// Same answer again is not an update, so nothing is committed...
	out, err = runCLI(t, gradeArgs...)
	if err != nil {
		t.Fatalf("second grade: %v", err)
	}
	if strings.Contains(out, "Correct answers") {
		t.Errorf("unchanged result should not be committed: %q", out)
	}

	// ...unless forced.
	out, err = runCLI(t, append(gradeArgs, "--force-commit")...)
	if err != nil {
		t.Fatalf("forced grade: %v", err)
	}
	if !strings.Contains(out, "Correct answers: lab1/ex1") {
		t.Errorf("forced grade output = %q", out)
	}

	out, err = runCLI(t, "commit", "--server", url, "--answer-file", cache, "--lab", "lab1", "--email", "ada@example.org")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !strings.Contains(out, "Correct answers: lab1/ex1") {
		t.Errorf("commit output = %q", out)
	}
	c, err := db.GetCommit("ada@example.org")
	if err != nil || c == nil || len(c.Correct) != 1 {
		t.Errorf("stored commit = %+v, %v", c, err)
	}
}

func TestGradeCommandRejectsPlaceholderIdentity(t *testing.T) {
	_, url := gradingServer(t)
	_, err := runCLI(t, "grade",
		"--server", url,
		"--session-file", filepath.Join(t.TempDir(), "s.enc"),
		"--name", "First Last",
		"--email", "ada@example.org",
		"--lab", "lab1",
		"--exercise", "ex1",
	)
	if err == nil || !strings.Contains(err.Error(), "is name set?") {
		t.Errorf("err = %v, want the placeholder name check", err)
	}
}

func TestSendCommand(t *testing.T) {
	db, url := gradingServer(t)
	path := filepath.Join(t.TempDir(), "ex1.py")
	writeFile(t, path, "name = 'Ada'\nanswer = 42\n")

	out, err := runCLI(t, "send", path, "--server", url+"/")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(out, "Sent. Thanks!") {
		t.Errorf("send output = %q", out)
	}
	f, err := db.GetFile(1)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if string(f.Content) != "answer = 42\n" {
		t.Errorf("stored content = %q", f.Content)
	}
}

func TestServersCommand(t *testing.T) {
	_, url := gradingServer(t)
	dead := httptest.NewServer(nil)
	deadURL := dead.URL
	dead.Close()

	out, err := runCLI(t, "servers", "--servers", deadURL+","+url, "--lab", "lab1", "--exercise", "ex1")
	if err != nil {
		t.Fatalf("servers: %v", err)
	}
	for _, want := range []string{
		"✗ " + deadURL,
		"✓ " + url + ": 1 validation available.",
		"Using grading server " + url,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("servers output %q missing %q", out, want)
		}
	}

	out, err = runCLI(t, "servers", "--servers", deadURL, "--lab", "lab1", "--exercise", "ex1")
	if err != nil {
		t.Fatalf("servers: %v", err)
	}
	if !strings.Contains(out, "grading servers are down") {
		t.Errorf("output = %q", out)
	}
}

func TestServersCommandWithoutCandidates(t *testing.T) {
	if _, err := runCLI(t, "servers", "--servers", ""); err == nil {
		t.Error("expected error without candidate servers")
	}
}

func TestValidationCountLogsStoreErrors(t *testing.T) {
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	db.Close()

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	if n := validationCount(db); n != 0 {
		t.Errorf("validationCount() = %d, want 0", n)
	}
	if !strings.Contains(logs.String(), "error counting answer keys") {
		t.Errorf("logs = %q", logs.String())
	}
}
