package config

import (
	"fmt"
	"strings"
)

// SplitArgs splits an argument string into tokens, honoring single and
// double quotes and backslash escapes.
func SplitArgs(args string) ([]string, error) {
	var out []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	runes := []rune(strings.TrimSpace(args))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				out = append(out, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		out = append(out, current.String())
	}

	if inQuote {
		return nil, fmt.Errorf("unclosed quote in args")
	}

	return out, nil
}
