// SPDX-License-Identifier: Apache-2.0

package pgconn

import "strings"

// SanitizeDump strips the \restrict / \unrestrict directives emitted by
// pg_dump on PostgreSQL 17.6+ so that two dumps taken on either side of a
// migration round-trip can be byte-compared regardless of whether the
// server embeds a restrict token.
func SanitizeDump(dump string) string {
	lines := strings.Split(dump, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, `\restrict`) || strings.HasPrefix(trimmed, `\unrestrict`) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
