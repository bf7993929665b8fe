// Package protocol implements the text command protocol: line parsing
// and the command registry/dispatcher.  The wire format is one command
// per line, "<token>[ <argument>]", terminated by LF or CRLF.
package protocol

import (
	"strings"
	"unicode"
)

// ParseLine splits a raw command line into its command token and
// optional argument.  The token ends at the first whitespace
// character; the argument starts at the first non-whitespace after
// that and runs to end of line.  Trailing CR/LF is stripped, but the
// argument is otherwise untouched; handlers that need numeric or
// boolean values do their own validation.
func ParseLine(line string) (token, arg string) {
	line = strings.TrimRight(line, "\r\n")

	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return line, ""
	}
	token = line[:i]

	rest := line[i:]
	j := strings.IndexFunc(rest, func(r rune) bool { return !unicode.IsSpace(r) })
	if j < 0 {
		return token, ""
	}
	return token, rest[j:]
}

// SplitChunk splits one read buffer into individual command lines.  A
// buffer holding several newline-terminated commands yields one entry
// per command; a buffer holding only a newline yields a single empty
// line (which dispatches as an unknown command).  Commands split
// across two reads are not reassembled.
func SplitChunk(chunk string) []string {
	trimmed := strings.TrimRight(chunk, "\n")
	if trimmed == "" {
		return []string{""}
	}
	return strings.Split(trimmed, "\n")
}
