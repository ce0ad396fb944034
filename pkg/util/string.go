package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var slugPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// GenerateSlug creates a URL-friendly slug from title
func GenerateSlug(title string) string {
	slug := strings.ToLower(title)

	// Replace spaces and special characters with hyphens
	slug = slugPattern.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	// Limit length
	if runes := []rune(slug); len(runes) > 50 {
		slug = strings.Trim(string(runes[:50]), "-")
	}

	return slug
}

// ParseIDs parses a comma separated id list such as "3, 5,8" or "[3,5,8]"
func ParseIDs(s string) ([]int64, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return []int64{}, nil
	}

	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}
