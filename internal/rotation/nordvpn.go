package rotation

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner runs an external program and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

const (
	statusTimeout     = 5 * time.Second
	disconnectTimeout = 5 * time.Second
	connectTimeout    = 15 * time.Second
)

// NordVPN drives the nordvpn command line client.
type NordVPN struct {
	bin string
	run CommandRunner
}

type NordOption func(*NordVPN)

func WithBinary(path string) NordOption {
	return func(n *NordVPN) { n.bin = path }
}

func WithCommandRunner(r CommandRunner) NordOption {
	return func(n *NordVPN) { n.run = r }
}

func NewNordVPN(opts ...NordOption) *NordVPN {
	n := &NordVPN{bin: "nordvpn", run: execRunner}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var _ Capability = (*NordVPN)(nil)

func (n *NordVPN) Disconnect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, disconnectTimeout)
	defer cancel()

	if _, err := n.run(ctx, n.bin, "d"); err != nil {
		return fmt.Errorf("nordvpn disconnect: %w", err)
	}
	return nil
}

func (n *NordVPN) Connect(ctx context.Context, region string) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	args := []string{"c"}
	if region != "" {
		args = append(args, region)
	}
	if _, err := n.run(ctx, n.bin, args...); err != nil {
		return fmt.Errorf("nordvpn connect: %w", err)
	}
	return nil
}

func (n *NordVPN) Status(ctx context.Context) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	out, err := n.run(ctx, n.bin, "status")
	if err != nil {
		return Status{}, fmt.Errorf("nordvpn status: %w", err)
	}
	return ParseStatus(string(out)), nil
}

// ParseStatus reads "Key: Value" lines. Keys are lower-cased with spaces
// replaced by underscores.
func ParseStatus(text string) Status {
	info := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		// the client prints spinner frames such as "\r-\r  \r" before the first key
		k = strings.TrimSpace(strings.TrimLeft(k, "\r-\\|/ "))
		key := strings.ReplaceAll(strings.ToLower(k), " ", "_")
		info[key] = strings.TrimSpace(v)
	}

	st := Status{
		Connected: strings.EqualFold(info["status"], "connected"),
		Endpoint:  firstNonEmpty(info["hostname"], info["current_server"], info["server"]),
		Fields:    info,
	}

	var loc []string
	for _, k := range []string{"city", "country"} {
		if info[k] != "" {
			loc = append(loc, info[k])
		}
	}
	st.Location = strings.Join(loc, ", ")
	return st
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
