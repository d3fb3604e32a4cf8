// SPDX-License-Identifier: Apache-2.0

package pgconn

import (
	"fmt"
	"regexp"
	"strings"
)

// PGError is raised by a CLI wrapper when the child process's stderr
// contains an ERROR or FATAL block.
type PGError struct {
	Cmd    string
	Blocks []string
}

func (e *PGError) Error() string {
	return fmt.Sprintf("%s failed:\n%s", e.Cmd, strings.Join(e.Blocks, "\n---\n"))
}

var leadingEPrefix = regexp.MustCompile(`^E\s+`)
var runsOfWhitespace = regexp.MustCompile(`\s+`)

// ParseErrorBlocks scans stderr line by line. A line starting with
// "ERROR:" or "FATAL:" opens a new block; subsequent lines are appended
// to it as continuations until a "NOTICE:" line closes it. Leading "E "
// prefixes (as emitted by some libpq client builds) and runs of
// whitespace are collapsed.
func ParseErrorBlocks(stderr string) []string {
	var blocks []string
	var current strings.Builder
	inBlock := false

	flush := func() {
		if inBlock && current.Len() > 0 {
			blocks = append(blocks, cleanLine(current.String()))
		}
		current.Reset()
		inBlock = false
	}

	for _, line := range strings.Split(stderr, "\n") {
		trimmed := strings.TrimSpace(leadingEPrefix.ReplaceAllString(strings.TrimSpace(line), ""))
		switch {
		case strings.HasPrefix(trimmed, "ERROR:"), strings.HasPrefix(trimmed, "FATAL:"):
			flush()
			inBlock = true
			current.WriteString(trimmed)
		case strings.HasPrefix(trimmed, "NOTICE:"):
			flush()
		case inBlock:
			current.WriteByte(' ')
			current.WriteString(trimmed)
		}
	}
	flush()

	return blocks
}

func cleanLine(s string) string {
	s = leadingEPrefix.ReplaceAllString(s, "")
	s = runsOfWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CheckStderr parses stderr for ERROR/FATAL blocks and, if any are
// found, returns a *PGError naming cmd and the cleaned block list.
func CheckStderr(cmd, stderr string) error {
	blocks := ParseErrorBlocks(stderr)
	if len(blocks) == 0 {
		return nil
	}
	return &PGError{Cmd: cmd, Blocks: blocks}
}
