package config

import (
	"fmt"
	"strings"
)

// ParseEnvironment splits a space separated list of KEY=VALUE pairs. Spaces
// inside single or double quotes do not split, and a value wrapped in a
// matching pair of quotes is unquoted. Order is preserved.
func ParseEnvironment(s string) ([]EnvVar, error) {
	tokens, err := splitQuoted(s)
	if err != nil {
		return nil, err
	}

	vars := make([]EnvVar, 0, len(tokens))
	for _, token := range tokens {
		key, value, found := strings.Cut(token, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("malformed environment variable %q: expected KEY=VALUE", token)
		}
		vars = append(vars, EnvVar{Key: key, Value: Dequote(value)})
	}
	return vars, nil
}

// Dequote removes one pair of matching single or double quotes surrounding
// s. Anything else is returned unchanged.
func Dequote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func splitQuoted(s string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		quote   byte
		inToken bool
	)

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			current.WriteByte(c)
		case c == '"' || c == '\'':
			quote = c
			inToken = true
			current.WriteByte(c)
		case c == ' ' || c == '\t' || c == '\n':
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			inToken = true
			current.WriteByte(c)
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote in environment variables", quote)
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}
