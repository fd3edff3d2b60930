// Package grader submits answers to a grading server and keeps the session alive between submissions.
package grader

import (
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/pavelanni/labgrader/internal/model"
	"github.com/pavelanni/labgrader/internal/session"
)

// Config holds the client parameters that used to be process-wide globals.
type Config struct {
	// Servers are probed in order by FindServer.
	Servers       []string
	SentinelKey   string
	SentinelValue string
	// SessionPath is the session cache used when a request names no answer file.
	SessionPath string
	HTTPClient  *http.Client
	// Out receives participant-facing messages.
	Out io.Writer
	// Quiet drops skip reasons and failure causes from result messages.
	Quiet bool
}

// Client talks to grading servers.
type Client struct {
	servers       []string
	sentinelKey   string
	sentinelValue string
	sessionPath   string
	http          *http.Client
	out           io.Writer
	verbose       bool
}

// New creates a client. Zero fields of cfg get defaults.
func New(cfg Config) *Client {
	c := &Client{
		sentinelKey:   cfg.SentinelKey,
		sentinelValue: cfg.SentinelValue,
		sessionPath:   cfg.SessionPath,
		http:          cfg.HTTPClient,
		out:           cfg.Out,
		verbose:       !cfg.Quiet,
	}
	for _, s := range cfg.Servers {
		s = strings.TrimRight(strings.TrimSpace(s), "/")
		if s != "" {
			c.servers = append(c.servers, s)
		}
	}
	if c.sentinelKey == "" {
		c.sentinelKey = model.DefaultSentinelKey
		c.sentinelValue = model.DefaultSentinelValue
	}
	if c.sessionPath == "" {
		c.sessionPath = session.DefaultPath()
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	return c
}

// Servers returns the candidate list in probe order.
func (c *Client) Servers() []string {
	return append([]string(nil), c.servers...)
}
