package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/labgrader/internal/model"
)

const availableValidationsKey = "available validations"

// ServerInfo is what a grading server advertises on GET /.
type ServerInfo struct {
	URL        string
	Identified bool
	// Restricted is false when the server sent no validation list.
	Restricted  bool
	Validations []model.Exercise
}

// Offers reports whether the server validates the given lab/exercise pair.
func (i ServerInfo) Offers(labID, exID string) bool {
	if !i.Restricted {
		return true
	}
	for _, e := range i.Validations {
		if e.LabID == labID && e.ExID == exID {
			return true
		}
	}
	return false
}

// Probe fetches the index of server.
func (c *Client) Probe(ctx context.Context, server string) (ServerInfo, error) {
	info := ServerInfo{URL: server}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/", nil)
	if err != nil {
		return info, fmt.Errorf("build probe: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return info, fmt.Errorf("probe %s: %w", server, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return info, fmt.Errorf("read probe: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return info, &HTTPError{Method: http.MethodGet, URL: server + "/", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var index map[string]json.RawMessage
	if err := json.Unmarshal(raw, &index); err != nil {
		return info, fmt.Errorf("parse probe from %s: %w", server, err)
	}

	var sentinel any
	if v, ok := index[c.sentinelKey]; ok {
		_ = json.Unmarshal(v, &sentinel)
	}
	info.Identified = sentinel == c.sentinelValue

	if v, ok := index[availableValidationsKey]; ok {
		var pairs []any
		if err := json.Unmarshal(v, &pairs); err != nil {
			return info, fmt.Errorf("parse %s from %s: %w", availableValidationsKey, server, err)
		}
		info.Restricted = pairs != nil
		info.Validations = exercisePairs(pairs)
	}
	return info, nil
}

// exercisePairs keeps the well-formed [lab, exercise] entries.
func exercisePairs(pairs []any) []model.Exercise {
	var out []model.Exercise
	for _, p := range pairs {
		pair, ok := p.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		lab, ok1 := pair[0].(string)
		ex, ok2 := pair[1].(string)
		if ok1 && ok2 {
			out = append(out, model.Exercise{LabID: lab, ExID: ex})
		}
	}
	return out
}

// maxParallelProbes bounds ProbeAll.
const maxParallelProbes = 4

// ProbeResult is the outcome of probing one candidate.
type ProbeResult struct {
	Info ServerInfo
	Err  error
}

// ProbeAll probes every candidate concurrently. Results keep the candidate
// order.
func (c *Client) ProbeAll(ctx context.Context) []ProbeResult {
	results := make([]ProbeResult, len(c.servers))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelProbes)
	for i, server := range c.servers {
		g.Go(func() error {
			info, err := c.Probe(ctx, server)
			results[i] = ProbeResult{Info: info, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// FindServer returns the first candidate that identifies itself with the
// sentinel and, when both labID and exID are set, validates that exercise.
// Unreachable candidates are skipped.
func (c *Client) FindServer(ctx context.Context, labID, exID string) (string, bool) {
	for _, server := range c.servers {
		info, err := c.Probe(ctx, server)
		if err != nil {
			slog.Debug("grading server unavailable", "server", server, "error", err)
			continue
		}
		if !info.Identified {
			slog.Debug("grading server not identified", "server", server)
			continue
		}
		if labID != "" && exID != "" && !info.Offers(labID, exID) {
			slog.Debug("grading server does not offer exercise", "server", server, "lab", labID, "exercise", exID)
			continue
		}
		slog.Info("selected grading server", "server", server)
		return server, true
	}
	return "", false
}
