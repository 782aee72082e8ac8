package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joshu-sajeev/promptrelay/common"
)

// Variables are handed to the page agent before its entry point runs.
type Variables struct {
	Prompt     string
	PromptMode string
	// Image is embedded content (a data: URI), never a remote address.
	Image string
}

// Page is the narrow capability a session needs from the remote page agent.
// It is held by one session at a time.
type Page interface {
	Location(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	Inject(ctx context.Context, vars Variables) error
	// Trigger runs the agent entry point. It returns once the agent accepted
	// the work, not when a result exists.
	Trigger(ctx context.Context) error
	// ResultManifest lists the identifiers of every stored result.
	ResultManifest(ctx context.Context) ([]string, error)
	ReadResult(ctx context.Context, key string) (string, error)
	Close() error
}

// Dialer opens the control channel to a page.
type Dialer interface {
	Open(ctx context.Context) (Page, error)
}

type ImageResolver interface {
	Resolve(ctx context.Context, src string) (string, error)
}

// Rotator changes the outbound network identity. Failures are never fatal to
// the session.
type Rotator interface {
	Rotate(ctx context.Context) error
}

// Request is the part of a claimed job a session acts on.
type Request struct {
	JobID           uint
	Prompt          string
	PromptMode      string
	ModelMode       string
	ImageURL        string
	ContinuationURL string
}

// Result is the record the page agent stores for one finished prompt.
type Result struct {
	Prompt    string          `json:"prompt"`
	Response  string          `json:"response"`
	Timestamp string          `json:"timestamp"`
	URL       string          `json:"url"`
	Raw       json.RawMessage `json:"-"`
}

// ParseResult decodes a manifest entry.
func ParseResult(key, content string) (*Result, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("result %q is empty: %w", key, common.ErrMalformedResult)
	}

	var r Result
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return nil, fmt.Errorf("result %q: %v: %w", key, err, common.ErrMalformedResult)
	}
	if r.Response == "" {
		return nil, fmt.Errorf("result %q has no response: %w", key, common.ErrMalformedResult)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(content)); err == nil {
		r.Raw = buf.Bytes()
	}
	return &r, nil
}
