package util

import (
	"strconv"
	"strings"
)

func NotBlank(value string) bool {
	return strings.TrimSpace(value) != ""
}

// JoinNonBlank joins the non-blank parts with sep.
func JoinNonBlank(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if NotBlank(part) {
			kept = append(kept, strings.TrimSpace(part))
		}
	}
	return strings.Join(kept, sep)
}

// ParseOptionalFloat returns nil for a blank value.
func ParseOptionalFloat(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
