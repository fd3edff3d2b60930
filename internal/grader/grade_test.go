package grader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pavelanni/labgrader/internal/model"
	"github.com/pavelanni/labgrader/internal/validate"
)

// gradingServer answers the index, validate and commit endpoints and hands
// out a new session on every validation.
type gradingServer struct {
	mu        sync.Mutex
	t         *testing.T
	valid     bool
	isUpdate  bool
	issued    []string
	received  []string
	commits   int
	validates int
}

func (g *gradingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/":
		w.Write([]byte(`{"Qiskit Global Summer School": "2020"}`))
	case "/validate-answer":
		var req model.ValidateRequest
		if err := decodeJSON(r, &req); err != nil {
			g.t.Errorf("decode: %v", err)
		}
		g.validates++
		g.received = append(g.received, req.Session)
		tok := "session-" + string(rune('A'+len(g.issued)))
		g.issued = append(g.issued, tok)
		writeJSON(w, map[string]any{"is_valid": g.valid, "is_update": g.isUpdate, "session": tok, "cause": "wrong answer"})
	case "/commit-answers":
		g.commits++
		writeJSON(w, map[string]any{"is_committed": true})
	default:
		http.NotFound(w, r)
	}
}

func TestGradeSessionRoundTrip(t *testing.T) {
	g := &gradingServer{t: t, valid: true}
	srv := httptest.NewServer(g)
	defer srv.Close()

	c, out := newTestClient(t, srv.URL)
	req := GradeRequest{Answer: circuit(), Participant: ada, LabID: "lab1", ExID: "ex1"}

	for range 3 {
		if err := c.Grade(context.Background(), req); err != nil {
			t.Fatalf("Grade: %v", err)
		}
	}

	want := []string{"", "session-A", "session-B"}
	for i, w := range want {
		if g.received[i] != w {
			t.Errorf("submission %d carried session %q, want %q", i, g.received[i], w)
		}
	}
	stored, err := os.ReadFile(c.sessionPath)
	if err != nil {
		t.Fatalf("read session file: %v", err)
	}
	if string(stored) != "session-C" {
		t.Errorf("stored session = %q, want session-C", stored)
	}
	if g.commits != 0 {
		t.Errorf("commits = %d, want 0 without updates", g.commits)
	}
	if !strings.Contains(out.String(), "lab1/ex1 - 🎉 Correct") {
		t.Errorf("output = %q", out.String())
	}
}

func TestGradeCommitsOnUpdate(t *testing.T) {
	tests := []struct {
		name        string
		valid       bool
		isUpdate    bool
		force       bool
		wantCommits int
		wantHurray  bool
	}{
		{"new correct answer", true, true, false, 1, true},
		{"new wrong answer", false, true, false, 1, false},
		{"unchanged answer", true, false, false, 0, false},
		{"forced commit", false, false, true, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &gradingServer{t: t, valid: tt.valid, isUpdate: tt.isUpdate}
			srv := httptest.NewServer(g)
			defer srv.Close()

			c, out := newTestClient(t)
			err := c.Grade(context.Background(), GradeRequest{
				Answer:      circuit(),
				Participant: ada,
				LabID:       "lab1",
				ExID:        "ex1",
				Server:      srv.URL,
				ForceCommit: tt.force,
			})
			if err != nil {
				t.Fatalf("Grade: %v", err)
			}
			if g.commits != tt.wantCommits {
				t.Errorf("commits = %d, want %d", g.commits, tt.wantCommits)
			}
			if got := strings.Contains(out.String(), "Hurray"); got != tt.wantHurray {
				t.Errorf("hurray printed = %v, want %v", got, tt.wantHurray)
			}
		})
	}
}

func TestGradeStopsBeforeNetwork(t *testing.T) {
	tests := []struct {
		name    string
		req     GradeRequest
		wantOut string
		wantErr bool
	}{
		{"missing lab", GradeRequest{Answer: circuit(), Participant: ada, ExID: "ex1"}, "🚫 In which lab are you?.", false},
		{"missing exercise", GradeRequest{Answer: circuit(), Participant: ada, LabID: "lab1"}, "🚫 In which exercise are you?.", false},
		{"placeholder name", GradeRequest{Answer: circuit(), Participant: model.Participant{Name: model.PlaceholderName, Email: ada.Email}, LabID: "lab1", ExID: "ex1"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &gradingServer{t: t}
			srv := httptest.NewServer(g)
			defer srv.Close()

			c, out := newTestClient(t, srv.URL)
			err := c.Grade(context.Background(), tt.req)
			if tt.wantErr {
				var ce *validate.CheckError
				if !errors.As(err, &ce) {
					t.Fatalf("expected *validate.CheckError, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("Grade: %v", err)
			}
			if strings.TrimSpace(out.String()) != tt.wantOut {
				t.Errorf("output = %q, want %q", out.String(), tt.wantOut)
			}
			if g.validates != 0 {
				t.Errorf("validates = %d, want 0", g.validates)
			}
		})
	}
}

func TestGradeNoServer(t *testing.T) {
	c, out := newTestClient(t, deadServer(t))
	err := c.Grade(context.Background(), GradeRequest{Answer: circuit(), Participant: ada, LabID: "lab1", ExID: "ex1"})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if !strings.Contains(out.String(), "grading servers are down") {
		t.Errorf("output = %q", out.String())
	}
}

func TestGradeAnswerFile(t *testing.T) {
	g := &gradingServer{t: t, valid: true}
	srv := httptest.NewServer(g)
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	path := filepath.Join(t.TempDir(), "mine.enc")

	err := c.Grade(context.Background(), GradeRequest{Answer: circuit(), Participant: ada, LabID: "lab1", ExID: "ex1", AnswerFile: path})
	if err == nil {
		t.Fatal("expected error for a missing answer file")
	}

	if err := os.WriteFile(path, []byte("from-file"), 0o600); err != nil {
		t.Fatal(err)
	}
	err = c.Grade(context.Background(), GradeRequest{Answer: circuit(), Participant: ada, LabID: "lab1", ExID: "ex1", AnswerFile: path})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if g.received[0] != "from-file" {
		t.Errorf("session = %q, want from-file", g.received[0])
	}
	stored, _ := os.ReadFile(path)
	if string(stored) != "session-A" {
		t.Errorf("answer file = %q, want session-A", stored)
	}
}
