package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/butler/internal/rule"
)

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// marshalRating stores a rating as JSON text; placement rows store NULL.
func marshalRating(v *rule.RatingValue) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func unmarshalRating(ns sql.NullString) (*rule.RatingValue, error) {
	if !ns.Valid {
		return nil, nil
	}
	v, err := rule.ParseRatingJSON(ns.String)
	if err != nil {
		return nil, fmt.Errorf("unmarshal rating: %w", err)
	}
	return &v, nil
}

// marshalJSON encodes audit payloads. HTML escaping is disabled so tag
// text is stored as written.
func marshalJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
