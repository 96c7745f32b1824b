// Package sections turns marker-annotated document text into a tree of
// heading sections and cuts that tree into token-bounded chunks.
package sections

import (
	"regexp"
	"strconv"
	"strings"
)

// Markers emitted by the DOCX extractor, one per line.
const (
	TitleMarker      = "<Title>"
	TableStartMarker = "<table>"
	TableEndMarker   = "</table>"
	RowMarker        = "<row>"
)

var headingRe = regexp.MustCompile(`^<Heading(\d+)>`)

// Element is a node of the section tree: a *Section or a *TextElement.
type Element interface {
	Size() int
}

// TextElement is a run of text lines. Each value is kept whole when possible;
// tables store one value per row.
type TextElement struct {
	Values []string
	sizes  []int
	size   int
	closed bool
}

func (t *TextElement) Size() int { return t.size }

type Section struct {
	Level    int
	Parent   *Section
	Elements []Element
	size     int
}

func (s *Section) Size() int { return s.size }

// HasContent reports whether the section holds more than its heading line.
func (s *Section) HasContent() bool {
	if len(s.Elements) == 0 {
		return false
	}
	if len(s.Elements) == 1 {
		if t, ok := s.Elements[0].(*TextElement); ok && len(t.Values) < 2 {
			return false
		}
	}
	return true
}

// Subsections returns the direct child sections.
func (s *Section) Subsections() []*Section {
	out := make([]*Section, 0, len(s.Elements))
	for _, e := range s.Elements {
		if sub, ok := e.(*Section); ok {
			out = append(out, sub)
		}
	}
	return out
}

func (s *Section) newSubSection(level int) *Section {
	sub := &Section{Level: level, Parent: s}
	s.Elements = append(s.Elements, sub)
	return sub
}

// ancestorFor returns the nearest section (starting at s) whose level is
// below level, which is where a new section of that level attaches.
func (s *Section) ancestorFor(level int) *Section {
	cur := s
	for cur.Parent != nil && cur.Level >= level {
		cur = cur.Parent
	}
	return cur
}

func (s *Section) openText() *TextElement {
	if n := len(s.Elements); n > 0 {
		if t, ok := s.Elements[n-1].(*TextElement); ok && !t.closed {
			return t
		}
	}
	t := &TextElement{}
	s.Elements = append(s.Elements, t)
	return t
}

func (s *Section) addText(line string) {
	t := s.openText()
	t.Values = append(t.Values, line)
}

// Parse builds the section tree. The root has level -1, Title is level 0 and
// HeadingN is level N.
func Parse(text string) *Section {
	root := &Section{Level: -1}
	cur := root
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if level, rest, ok := headingLine(line); ok {
			if cur.Level != level || cur.HasContent() {
				cur = cur.ancestorFor(level).newSubSection(level)
			}
			if rest != "" {
				cur.addText(rest)
			}
			continue
		}
		if line == TableStartMarker {
			t := &TextElement{closed: true}
			cur.Elements = append(cur.Elements, t)
			i = readTable(lines, i+1, t)
			continue
		}
		cur.addText(line)
	}
	return root
}

func headingLine(line string) (int, string, bool) {
	if strings.HasPrefix(line, TitleMarker) {
		return 0, strings.TrimSpace(strings.TrimPrefix(line, TitleMarker)), true
	}
	m := headingRe.FindStringSubmatch(line)
	if m == nil {
		return 0, "", false
	}
	level, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return level, strings.TrimSpace(line[len(m[0]):]), true
}

// readTable fills t from the lines after a table start marker and returns the
// index of the closing marker (or the last line).
func readTable(lines []string, i int, t *TextElement) int {
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == TableEndMarker:
			t.Values = compact(t.Values)
			return i
		case line == RowMarker:
			t.Values = append(t.Values, "")
		case line == "":
		default:
			if len(t.Values) == 0 {
				t.Values = append(t.Values, line)
				continue
			}
			last := len(t.Values) - 1
			if t.Values[last] == "" {
				t.Values[last] = line
			} else {
				t.Values[last] += "\n" + line
			}
		}
	}
	t.Values = compact(t.Values)
	return i
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
