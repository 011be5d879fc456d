package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	appSecretRegex = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	phoneRegex     = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	codeRegex      = regexp.MustCompile(`^[0-9]{4,8}$`)
)

const minAppID = 10000

// IsValidAppID accepts a purely numeric id of at least five digits.
func IsValidAppID(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && n >= minAppID
}

func IsValidAppSecret(s string) bool {
	return appSecretRegex.MatchString(strings.TrimSpace(s))
}

// IsValidPhone accepts international numbers with or without a leading plus.
// Spaces, dashes and parentheses are ignored.
func IsValidPhone(s string) bool {
	return phoneRegex.MatchString(NormalizePhone(s))
}

func NormalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// IsValidCode accepts a one-time login code. Users often type it with
// separators to avoid the platform invalidating forwarded codes.
func IsValidCode(s string) bool {
	return codeRegex.MatchString(NormalizeCode(s))
}

func NormalizeCode(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

const analysisKeyPrefix = "sk-ant-"

func IsValidAnalysisKey(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, analysisKeyPrefix) && len(s) > len(analysisKeyPrefix)
}

func IsValidEnum(value string, validValues []string) bool {
	for _, v := range validValues {
		if value == v {
			return true
		}
	}
	return false
}
