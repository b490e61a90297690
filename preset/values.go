package preset

import (
	"fmt"
	"strconv"
	"strings"
)

// Values is a flat key→value parameter lookup, typically built from
// repeated --set key=value flags. It implements piano.ParamSource.
type Values map[string]string

// ParseValues parses "key=value" pairs. Keys are lower-cased and trimmed.
func ParseValues(pairs []string) (Values, error) {
	v := make(Values, len(pairs))
	for _, pair := range pairs {
		key, val, ok := strings.Cut(pair, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (want key=value)", pair)
		}
		v[key] = strings.TrimSpace(val)
	}
	return v, nil
}

// Float returns the value for key, or def when absent or unparsable.
func (v Values) Float(key string, def float64) float64 {
	s, ok := v[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func (v Values) Int(key string, def int) int {
	s, ok := v[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func (v Values) Bool(key string, def bool) bool {
	s, ok := v[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func (v Values) String(key string, def string) string {
	if s, ok := v[key]; ok {
		return s
	}
	return def
}
