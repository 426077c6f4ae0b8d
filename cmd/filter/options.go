package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parseSize parses an HxW override such as 224x224. Empty means unset.
func parseSize(s string) (h, w int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}
	hs, ws, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("input size %q is not HxW", s)
	}
	if h, err = strconv.Atoi(hs); err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("input size %q: bad height", s)
	}
	if w, err = strconv.Atoi(ws); err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("input size %q: bad width", s)
	}
	return h, w, nil
}

// parseFloats parses a comma separated list of per-channel statistics.
func parseFloats(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []float32
	for part := range strings.SplitSeq(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q in %q", part, s)
		}
		out = append(out, float32(v))
	}
	return out, nil
}

// parseSoftmax maps auto to nil so the task default applies.
func parseSoftmax(s string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("softmax must be auto, true or false, got %q", s)
	}
	return &b, nil
}
