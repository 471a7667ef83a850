// SPDX-License-Identifier: MPL-2.0

// Package manifest parses the flat text manifests forgeup consumes:
// one token per line, with '#' comment lines and blank lines skipped.
//
// The channel manifest is order-sensitive — registration order
// determines channel priority — so Tokens preserves file order exactly.
// Parsing is a pure function over an io.Reader, independent of the
// filesystem, so priority-ordering behavior is testable without fixtures.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// commentPrefix marks a manifest line as a comment.
const commentPrefix = "#"

// Tokens reads r line by line and returns the ordered sequence of
// non-comment tokens. A line is a comment when its first non-whitespace
// byte is '#'; blank lines are skipped. Surrounding whitespace is
// trimmed from each token. The returned slice preserves file order,
// top to bottom.
func Tokens(r io.Reader) ([]string, error) {
	var tokens []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	return tokens, nil
}

// TokensFromFile opens path and returns its ordered tokens.
func TokensFromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest %s: %w", path, err)
	}
	defer f.Close()

	tokens, err := Tokens(f)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return tokens, nil
}
