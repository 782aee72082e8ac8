package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/joshu-sajeev/promptrelay/common"
)

// Target is one entry of the debugger's /json listing.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// TargetMatch selects a tab. Index, when not negative, overrides the other
// fields. Filter is a case-insensitive substring of the URL or title.
type TargetMatch struct {
	Index    int
	Filter   string
	ExactURL string
}

// ListTargets fetches the targets exposed by a debugger endpoint such as
// http://localhost:9222.
func ListTargets(ctx context.Context, client *http.Client, endpoint string) ([]Target, error) {
	url := strings.TrimRight(endpoint, "/") + "/json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list targets at %s: %v: %w", endpoint, err, common.ErrTransport)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list targets at %s: status %d: %w", endpoint, resp.StatusCode, common.ErrTransport)
	}

	var targets []Target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, fmt.Errorf("decode target list: %v: %w", err, common.ErrTransport)
	}
	return targets, nil
}

// ChooseTarget applies m to targets. The first match wins.
func ChooseTarget(targets []Target, m TargetMatch) (Target, error) {
	if m.Index >= 0 {
		if m.Index >= len(targets) {
			return Target{}, fmt.Errorf("target index %d out of range (%d targets)", m.Index, len(targets))
		}
		return targets[m.Index], nil
	}

	needle := strings.ToLower(m.Filter)
	for _, t := range targets {
		if needle != "" &&
			!strings.Contains(strings.ToLower(t.URL), needle) &&
			!strings.Contains(strings.ToLower(t.Title), needle) {
			continue
		}
		if m.ExactURL != "" && t.URL != m.ExactURL {
			continue
		}
		return t, nil
	}
	return Target{}, fmt.Errorf("no target matched filter=%q exact_url=%q", m.Filter, m.ExactURL)
}
