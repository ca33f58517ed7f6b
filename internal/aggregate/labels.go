package aggregate

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// LabelMap maps class ids to names. It is read-only after LoadLabels.
type LabelMap struct {
	labels map[int]string
}

// NewLabelMap copies m into a LabelMap
func NewLabelMap(m map[int]string) *LabelMap {
	labels := make(map[int]string, len(m))
	for k, v := range m {
		labels[k] = v
	}
	return &LabelMap{labels: labels}
}

// LoadLabels reads a label file. Lines are either "<id> <label>" or a bare label whose id
// is its position among the bare lines. A missing or unreadable file yields an empty map.
func LoadLabels(path string) *LabelMap {
	lm := &LabelMap{labels: map[int]string{}}
	if path == "" {
		return lm
	}

	f, err := os.Open(path)
	if err != nil {
		return lm
	}
	defer f.Close()

	bare := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if id, label, ok := splitIndexed(line); ok {
			lm.labels[id] = label
			continue
		}
		lm.labels[bare] = line
		bare++
	}
	if scanner.Err() != nil {
		return &LabelMap{labels: map[int]string{}}
	}

	return lm
}

func splitIndexed(line string) (int, string, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, "", false
	}
	head := fields[0]
	for _, r := range head {
		if r < '0' || r > '9' {
			return 0, "", false
		}
	}
	id, err := strconv.Atoi(head)
	if err != nil {
		return 0, "", false
	}
	return id, strings.TrimSpace(line[len(head):]), true
}

// LabelFor returns the label for id, or "id_<id>" when there is none
func (m *LabelMap) LabelFor(id int) string {
	if m != nil {
		if l, ok := m.labels[id]; ok {
			return l
		}
	}
	return "id_" + strconv.Itoa(id)
}

func (m *LabelMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.labels)
}
