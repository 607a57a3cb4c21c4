package bundle

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Manifest is the module table recovered from artifact files. It mirrors
// what the runtime loader sees.
type Manifest struct {
	Modules map[string]*Record
	// Entry is the id passed to the start call.
	Entry string
}

// Parse reads the register and start calls of artifact files, in load order.
func Parse(files ...[]byte) (*Manifest, error) {
	m := &Manifest{Modules: make(map[string]*Record)}

	for i, content := range files {
		sc := bufio.NewScanner(bytes.NewReader(content))
		sc.Buffer(make([]byte, 0, 64*1024), len(content)+1)
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, registerPrefix) && strings.HasSuffix(line, callSuffix):
				raw := strings.TrimSuffix(strings.TrimPrefix(line, registerPrefix), callSuffix)
				var records map[string]*Record
				if err := json.Unmarshal([]byte(raw), &records); err != nil {
					return nil, fmt.Errorf("file %d: invalid register call: %w", i, err)
				}
				for id, r := range records {
					r.ID = id
					m.Modules[id] = r
				}
			case strings.HasPrefix(line, startPrefix) && strings.HasSuffix(line, callSuffix):
				raw := strings.TrimSuffix(strings.TrimPrefix(line, startPrefix), callSuffix)
				if err := json.Unmarshal([]byte(raw), &m.Entry); err != nil {
					return nil, fmt.Errorf("file %d: invalid start call: %w", i, err)
				}
			}
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("file %d: %w", i, err)
		}
	}

	if m.Entry == "" {
		return nil, fmt.Errorf("no start call found")
	}
	if _, ok := m.Modules[m.Entry]; !ok {
		return nil, fmt.Errorf("entry %s is not registered", m.Entry)
	}
	return m, nil
}

// Require resolves a specifier from a module the way the runtime loader does.
func (m *Manifest) Require(fromID, specifier string) (*Record, error) {
	from, ok := m.Modules[fromID]
	if !ok {
		return nil, fmt.Errorf("unknown module %q", fromID)
	}
	id, ok := from.Deps[specifier]
	if !ok {
		return nil, fmt.Errorf("cannot find module %q from %q", specifier, fromID)
	}
	rec, ok := m.Modules[id]
	if !ok {
		return nil, fmt.Errorf("module %q is not registered", id)
	}
	return rec, nil
}
