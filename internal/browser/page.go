package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/joshu-sajeev/promptrelay/internal/session"
	"github.com/rs/zerolog"
)

// Names the page agent reads and writes.
const (
	promptVar     = "window.__chatgptBookmarkletPrompt"
	promptModeVar = "window.__chatgptBookmarkletPromptMode"
	imageVar      = "window.__chatgptBookmarkletImageUrl"
	manifestKey   = "chatgpt-files"
)

var manifestExpr = `(() => {
  try {
    const v = JSON.parse(localStorage.getItem(` + quote(manifestKey) + `) || '[]');
    return Array.isArray(v) ? v : [];
  } catch (err) {
    return [];
  }
})()`

type caller interface {
	Call(ctx context.Context, method string, params, result any) error
	Close() error
}

// Page drives the page agent over one control channel.
type Page struct {
	conn   caller
	script string
}

var _ session.Page = (*Page)(nil)

func (p *Page) Location(ctx context.Context) (string, error) {
	var href string
	if err := p.eval(ctx, "window.location.href", &href); err != nil {
		return "", err
	}
	return href, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	var ret page.NavigateReturns
	if err := p.conn.Call(ctx, page.CommandNavigate, page.Navigate(url), &ret); err != nil {
		return err
	}
	if ret.ErrorText != "" {
		return fmt.Errorf("navigate to %s: %s", url, ret.ErrorText)
	}
	return nil
}

// Inject sets every agent variable. Empty optional values are removed so a
// reused tab never carries the previous job's mode or image.
func (p *Page) Inject(ctx context.Context, vars session.Variables) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s = %s;\n", promptVar, quote(vars.Prompt))
	assignOrDelete(&b, promptModeVar, vars.PromptMode)
	assignOrDelete(&b, imageVar, vars.Image)
	b.WriteString("true")

	return p.eval(ctx, b.String(), nil)
}

// Trigger starts the agent without awaiting its promise; completion shows up
// in the result manifest.
func (p *Page) Trigger(ctx context.Context) error {
	return p.eval(ctx, p.script, nil)
}

func (p *Page) ResultManifest(ctx context.Context) ([]string, error) {
	var keys []string
	if err := p.eval(ctx, manifestExpr, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (p *Page) ReadResult(ctx context.Context, key string) (string, error) {
	var content *string
	if err := p.eval(ctx, "localStorage.getItem("+quote(key)+")", &content); err != nil {
		return "", err
	}
	if content == nil {
		return "", nil
	}
	return *content, nil
}

func (p *Page) Close() error {
	return p.conn.Close()
}

func (p *Page) eval(ctx context.Context, expr string, out any) error {
	params := runtime.Evaluate(expr).WithReturnByValue(true)

	var ret runtime.EvaluateReturns
	if err := p.conn.Call(ctx, runtime.CommandEvaluate, params, &ret); err != nil {
		return err
	}
	if ret.ExceptionDetails != nil {
		return fmt.Errorf("page exception: %s", exceptionText(ret.ExceptionDetails))
	}
	if out == nil || ret.Result == nil || len(ret.Result.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(ret.Result.Value, out); err != nil {
		return fmt.Errorf("decode evaluation result: %w", err)
	}
	return nil
}

func exceptionText(d *runtime.ExceptionDetails) string {
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}

func assignOrDelete(b *strings.Builder, name, value string) {
	if value == "" {
		fmt.Fprintf(b, "delete %s;\n", name)
		return
	}
	fmt.Fprintf(b, "%s = %s;\n", name, quote(value))
}

func quote(s string) string {
	buf, _ := json.Marshal(s)
	return string(buf)
}

// Dialer finds the configured tab at a debugger endpoint and opens a fresh
// control channel to it for every session.
type Dialer struct {
	endpoint string
	match    TargetMatch
	script   string
	timeout  time.Duration
	client   *http.Client
	log      *zerolog.Logger
}

func NewDialer(endpoint string, match TargetMatch, script string, timeout time.Duration, logger *zerolog.Logger) *Dialer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	l := logger.With().Str("component", "Dialer").Str("endpoint", endpoint).Logger()
	return &Dialer{
		endpoint: endpoint,
		match:    match,
		script:   script,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		log:      &l,
	}
}

var _ session.Dialer = (*Dialer)(nil)

func (d *Dialer) Open(ctx context.Context) (session.Page, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	targets, err := ListTargets(dialCtx, d.client, d.endpoint)
	if err != nil {
		return nil, err
	}
	target, err := ChooseTarget(targets, d.match)
	if err != nil {
		return nil, err
	}
	if target.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("target %s exposes no webSocketDebuggerUrl", target.ID)
	}

	conn, err := Dial(dialCtx, target.WebSocketDebuggerURL, d.log)
	if err != nil {
		return nil, err
	}
	if err := conn.Call(dialCtx, runtime.CommandEnable, nil, nil); err != nil {
		conn.Close()
		return nil, err
	}

	d.log.Debug().Str("target", target.ID).Str("url", target.URL).Msg("control channel open")
	return &Page{conn: conn, script: d.script}, nil
}
