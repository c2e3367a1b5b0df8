// Package targets validates the free-form target text handed to a scan.
// Tokens are checked for shape only: nothing is resolved and no address
// arithmetic is done, so nmap remains the authority on what a target means.
package targets

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/anstrom/nmapdeck/internal/errors"
)

// Kind describes the shape a target token matched.
type Kind int

const (
	Invalid Kind = iota
	IPv4
	IPv6
	Hostname
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	case Hostname:
		return "hostname"
	default:
		return "invalid"
	}
}

var (
	// Octet values are deliberately not range checked.
	ipv4Pattern     = regexp.MustCompile(`^([0-9]{1,3}\.){3}[0-9]{1,3}$`)
	ipv6Pattern     = regexp.MustCompile(`^[0-9a-fA-F:]{3,}$`)
	hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9\-.]+$`)
)

// Classify reports which accepted shape, if any, token matches.
func Classify(token string) Kind {
	switch {
	case ipv4Pattern.MatchString(token):
		return IPv4
	case ipv6Pattern.MatchString(token):
		return IPv6
	case hostnamePattern.MatchString(token):
		return Hostname
	default:
		return Invalid
	}
}

// isSeparator matches commas and Unicode whitespace, including the no-break
// and byte order mark characters that come along with text pasted from web
// pages.
func isSeparator(r rune) bool {
	return r == ',' || r == '\uFEFF' || unicode.IsSpace(r)
}

// Split breaks target text on commas and whitespace, dropping empty tokens.
func Split(text string) []string {
	tokens := strings.FieldsFunc(text, isSeparator)
	if tokens == nil {
		return []string{}
	}
	return tokens
}

// Parse returns the tokens of text that look like an IPv4 address, an IPv6
// address or a hostname, in their original order with duplicates kept.
// Malformed tokens are dropped silently; only an empty result is an error.
// Empty text is MISSING_TARGETS; text made only of separators is
// INVALID_TARGETS like any other text without a usable token.
func Parse(text string) ([]string, error) {
	if text == "" {
		return nil, errors.ErrMissingTargets()
	}

	var valid []string
	for _, token := range Split(text) {
		if Classify(token) != Invalid {
			valid = append(valid, token)
		}
	}

	if len(valid) == 0 {
		return nil, errors.ErrInvalidTargets(text)
	}
	return valid, nil
}
