// Package labels maps model output indices to human-readable names.
package labels

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Map resolves output indices to names. Offset is subtracted from an index
// before lookup, for models whose first output is a background class that
// the label list omits.
type Map struct {
	names  map[int]string
	Offset int
}

func New(names []string) *Map {
	m := &Map{names: make(map[int]string, len(names))}
	for i, n := range names {
		m.names[i] = n
	}
	return m
}

// Name returns the label for index, if one is known.
func (m *Map) Name(index int) (string, bool) {
	if m == nil {
		return "", false
	}
	n, ok := m.names[index-m.Offset]
	return n, ok
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.names)
}

type Entry struct {
	Index int
	Name  string
}

// Entries returns every label in index order, before Offset is applied.
func (m *Map) Entries() []Entry {
	if m == nil {
		return nil
	}
	out := make([]Entry, 0, len(m.names))
	for idx, name := range m.names {
		out = append(out, Entry{Index: idx, Name: name})
	}
	slices.SortFunc(out, func(a, b Entry) int { return a.Index - b.Index })
	return out
}

// Load reads a label file. Plain text files hold one label per line;
// .json/.yaml/.yml files hold either a list or an index-to-name mapping.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return parseStructured(data)
	}
	return parseLines(data)
}

func parseLines(data []byte) (*Map, error) {
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("label file has no labels")
	}
	return New(names), nil
}

func parseStructured(data []byte) (*Map, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parsing labels: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, fmt.Errorf("label file has no labels")
	}
	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := root.Decode(&names); err != nil {
			return nil, fmt.Errorf("parsing labels: %w", err)
		}
		return New(names), nil
	case yaml.MappingNode:
		var raw map[string]string
		if err := root.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parsing labels: %w", err)
		}
		m := &Map{names: make(map[int]string, len(raw))}
		for k, v := range raw {
			idx, err := strconv.Atoi(k)
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("label key %q is not a non-negative index", k)
			}
			m.names[idx] = v
		}
		return m, nil
	}
	return nil, fmt.Errorf("labels must be a list or a mapping")
}
