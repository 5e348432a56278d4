package tools

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/toolscheap/toolscheap/internal/apperror"
)

// RegexRequest asks for a pattern matching a described class of strings.
// TestStrings, when given, are checked against the generated pattern and the
// results returned so the client can show immediate feedback.
type RegexRequest struct {
	Description string   `json:"description"`
	TestStrings []string `json:"testStrings,omitempty"`
}

// RegexResult carries the pattern plus an explanation and per-test-string
// match outcomes.
type RegexResult struct {
	Pattern     string          `json:"pattern"`
	Explanation string          `json:"explanation"`
	Matches     map[string]bool `json:"matches,omitempty"`
}

type regexPreset struct {
	keywords    []string
	pattern     string
	explanation string
}

// Heuristic keyword table. First preset whose keyword appears in the
// description wins; order puts the more specific entries first.
var regexPresets = []regexPreset{
	{
		keywords:    []string{"email", "e-mail", "mail address"},
		pattern:     `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`,
		explanation: "matches an email address: local part, @, domain with a TLD",
	},
	{
		keywords:    []string{"uuid", "guid"},
		pattern:     `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`,
		explanation: "matches a UUID in canonical 8-4-4-4-12 hex form",
	},
	{
		keywords:    []string{"ipv4", "ip address", "ip "},
		pattern:     `^(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)$`,
		explanation: "matches a dotted-quad IPv4 address with octets 0-255",
	},
	{
		keywords:    []string{"url", "link", "website"},
		pattern:     `^https?://[a-zA-Z0-9.-]+(?::\d+)?(?:/[^\s]*)?$`,
		explanation: "matches an http or https URL with optional port and path",
	},
	{
		keywords:    []string{"phone", "telephone"},
		pattern:     `^\+?[0-9][0-9 ().-]{6,}[0-9]$`,
		explanation: "matches an international phone number with optional separators",
	},
	{
		keywords:    []string{"date", "yyyy-mm-dd", "iso 8601"},
		pattern:     `^\d{4}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12][0-9]|3[01])$`,
		explanation: "matches an ISO date YYYY-MM-DD with valid month and day ranges",
	},
	{
		keywords:    []string{"time", "hh:mm"},
		pattern:     `^(?:[01][0-9]|2[0-3]):[0-5][0-9](?::[0-5][0-9])?$`,
		explanation: "matches a 24-hour time HH:MM with optional seconds",
	},
	{
		keywords:    []string{"hex color", "hex colour", "color code"},
		pattern:     `^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`,
		explanation: "matches a 3- or 6-digit hex color code",
	},
	{
		keywords:    []string{"postal", "zip"},
		pattern:     `^\d{5}(?:-\d{4})?$`,
		explanation: "matches a US ZIP code with optional +4 extension",
	},
	{
		keywords:    []string{"integer", "whole number"},
		pattern:     `^-?\d+$`,
		explanation: "matches an optionally signed integer",
	},
	{
		keywords:    []string{"decimal", "float", "number"},
		pattern:     `^-?\d+(?:\.\d+)?$`,
		explanation: "matches an optionally signed number with optional decimal part",
	},
	{
		keywords:    []string{"slug"},
		pattern:     `^[a-z0-9]+(?:-[a-z0-9]+)*$`,
		explanation: "matches a lowercase URL slug with hyphen separators",
	},
	{
		keywords:    []string{"username", "handle"},
		pattern:     `^[a-zA-Z0-9_]{3,20}$`,
		explanation: "matches a 3-20 character username of letters, digits and underscores",
	},
}

// GenerateRegex maps a plain-language description to a pattern from the
// preset table. This is a keyword heuristic, not language understanding;
// descriptions that match no preset are a validation error rather than a
// guess.
func GenerateRegex(req RegexRequest) (*RegexResult, error) {
	desc := strings.ToLower(strings.TrimSpace(req.Description))
	if desc == "" {
		return nil, apperror.WithMessage(apperror.ErrBadRequest, "description is required")
	}

	for _, preset := range regexPresets {
		for _, kw := range preset.keywords {
			if strings.Contains(desc, kw) {
				return buildResult(preset, req.TestStrings)
			}
		}
	}
	return nil, apperror.WithMessage(apperror.ErrBadRequest,
		"could not derive a pattern from that description; try naming a known format like email, URL, UUID or date")
}

func buildResult(preset regexPreset, testStrings []string) (*RegexResult, error) {
	re, err := regexp.Compile(preset.pattern)
	if err != nil {
		return nil, fmt.Errorf("compile preset pattern: %w", err)
	}

	result := &RegexResult{
		Pattern:     preset.pattern,
		Explanation: preset.explanation,
	}
	if len(testStrings) > 0 {
		result.Matches = make(map[string]bool, len(testStrings))
		for _, s := range testStrings {
			result.Matches[s] = re.MatchString(s)
		}
	}
	return result, nil
}
