package browser

import (
	"fmt"
	"os"
	"strings"
)

// LoadScript reads the page agent source. A bookmarklet "javascript:" prefix
// is dropped.
func LoadScript(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read page script: %w", err)
	}

	code := strings.TrimSpace(string(raw))
	code = strings.TrimPrefix(code, "javascript:")
	if code == "" {
		return "", fmt.Errorf("page script %s is empty", path)
	}
	return code, nil
}
