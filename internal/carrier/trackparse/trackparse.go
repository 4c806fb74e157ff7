// Package trackparse extracts a status, a status code and the latest activity
// from loosely shaped carrier tracking payloads, and applies a carrier's RTO
// rule table to the result.
package trackparse

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"shiporch/internal/carrier"
)

// Rules describes where one carrier keeps its tracking fields and which
// statuses mean the parcel is returning to origin. Keys are dot paths.
type Rules struct {
	Carrier string

	AWBKeys      []string
	StatusKeys   []string
	CodeKeys     []string
	ActivityKeys []string

	// ActivityListKeys point at an array of scan events; ActivityFields are
	// read from its newest element.
	ActivityListKeys []string
	ActivityFields   []string
	NewestLast       bool

	// RTOCodes match the status code exactly; RTOPhrases match whole words
	// anywhere in the status label. Both are case-insensitive.
	RTOCodes   []string
	RTOPhrases []string
}

// Parse decodes a single tracking object.
func (r Rules) Parse(body []byte) (carrier.TrackingSnapshot, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return carrier.TrackingSnapshot{}, fmt.Errorf("%w: %s: %v", carrier.ErrAdapterData, r.Carrier, err)
	}
	return r.ParseObject(payload, body)
}

// ParseObject parses an already decoded object. raw is kept on the snapshot
// for auditing and may be nil.
func (r Rules) ParseObject(m map[string]any, raw json.RawMessage) (carrier.TrackingSnapshot, error) {
	snap := carrier.TrackingSnapshot{
		AWB:        strings.TrimSpace(getString(m, r.AWBKeys)),
		Status:     strings.TrimSpace(getString(m, r.StatusKeys)),
		StatusCode: strings.TrimSpace(getString(m, r.CodeKeys)),
		Activity:   strings.TrimSpace(getString(m, r.ActivityKeys)),
		FetchedAt:  time.Now().UTC(),
		Raw:        raw,
	}
	if snap.Activity == "" {
		snap.Activity = r.latestActivity(m)
	}
	if snap.Status == "" && snap.StatusCode == "" {
		return snap, fmt.Errorf("%w: %s awb=%q", carrier.ErrTrackingParseAmbiguous, r.Carrier, snap.AWB)
	}
	snap.RTO = r.IsRTO(snap.Status, snap.StatusCode)
	return snap, nil
}

func (r Rules) IsRTO(status, code string) bool {
	code = strings.TrimSpace(code)
	for _, c := range r.RTOCodes {
		if code != "" && strings.EqualFold(code, c) {
			return true
		}
	}
	label := words(status)
	for _, p := range r.RTOPhrases {
		if containsWords(label, words(p)) {
			return true
		}
	}
	return false
}

// words lowercases s and splits it on anything that is not a letter or
// digit.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsWords reports whether phrase occurs in label as a run of whole
// words.
func containsWords(label, phrase []string) bool {
	if len(phrase) == 0 {
		return false
	}
	for i := 0; i+len(phrase) <= len(label); i++ {
		if slices.Equal(label[i:i+len(phrase)], phrase) {
			return true
		}
	}
	return false
}

func (r Rules) latestActivity(m map[string]any) string {
	v := getAny(m, r.ActivityListKeys)
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return ""
	}
	newest := list[0]
	if r.NewestLast {
		newest = list[len(list)-1]
	}
	ev, ok := newest.(map[string]any)
	if !ok {
		return ""
	}
	return strings.TrimSpace(getString(ev, r.ActivityFields))
}

// getString returns the first non-empty string or number from the candidate keys.
func getString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if v := getPath(m, k); v != nil {
			if s, ok := toString(v); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

// getAny returns the first non-nil value from the candidate keys.
func getAny(m map[string]any, keys []string) any {
	for _, k := range keys {
		if v := getPath(m, k); v != nil {
			return v
		}
	}
	return nil
}

// getPath navigates a dot-separated key into nested maps.
func getPath(m map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := mm[p]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

func toString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
