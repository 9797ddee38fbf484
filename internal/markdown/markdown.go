// Package markdown extracts sections, list items and key/value pairs from
// loosely structured markdown. Every function is pure and never fails:
// malformed input degrades to empty results.
package markdown

import (
	"regexp"
	"strings"
)

// Heading is an ATX heading found outside fenced code blocks.
type Heading struct {
	Level int
	Text  string
	Line  int // 0-based line index
}

var (
	headingRe  = regexp.MustCompile(`^\s{0,3}(#{1,6})\s*(.*?)\s*#*\s*$`)
	numberedRe = regexp.MustCompile(`^\d+[.)]\s*`)
	prefixRe   = regexp.MustCompile(`^(\d+(\.\d+)*\.?|[ivx]+\.)\s+`)
)

func lines(content string) []string {
	return strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
}

func isFence(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "```") || strings.HasPrefix(t, "~~~")
}

// Headings returns every heading in document order.
func Headings(content string) []Heading {
	var out []Heading
	inFence := false
	for i, line := range lines(content) {
		if isFence(line) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, Heading{Level: len(m[1]), Text: m[2], Line: i})
	}
	return out
}

// CountSections returns the number of headings in content.
func CountSections(content string) int {
	return len(Headings(content))
}

// Normalize lowercases heading text and strips numbering and trailing
// punctuation, so "2. Technical Requirements:" becomes "technical requirements".
func Normalize(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	t = prefixRe.ReplaceAllString(t, "")
	t = strings.Trim(t, " :.-*_`")
	return strings.Join(strings.Fields(t), " ")
}

// Find returns the first heading matching one of names, tried in order.
// A heading matches a name when its normalized text starts with it; failing
// that, when it contains the name's words as whole words.
func Find(content string, names ...string) (Heading, bool) {
	hs := Headings(content)
	for _, contains := range []bool{false, true} {
		for _, name := range names {
			want := Normalize(name)
			if want == "" {
				continue
			}
			for _, h := range hs {
				got := Normalize(h.Text)
				if (!contains && strings.HasPrefix(got, want)) || (contains && containsWords(got, want)) {
					return h, true
				}
			}
		}
	}
	return Heading{}, false
}

// containsWords reports whether the words of want occur in got as a run of
// complete words. Both are normalized, so words are single-space separated.
func containsWords(got, want string) bool {
	return strings.Contains(" "+got+" ", " "+want+" ")
}

// Section returns the trimmed body under the first heading matching one of
// names. The body runs to the next heading of the same or higher level.
func Section(content string, names ...string) string {
	h, ok := Find(content, names...)
	if !ok {
		return ""
	}
	all := lines(content)
	end := len(all)
	for _, next := range Headings(content) {
		if next.Line > h.Line && next.Level <= h.Level {
			end = next.Line
			break
		}
	}
	return strings.TrimSpace(strings.Join(all[h.Line+1:end], "\n"))
}

// HasSection reports whether a heading matching one of names exists.
func HasSection(content string, names ...string) bool {
	_, ok := Find(content, names...)
	return ok
}

// ListItems returns bulleted ("-", "*", "+") and numbered ("1." or "1)")
// entries of body with markers and task checkboxes removed.
func ListItems(body string) []string {
	var out []string
	inFence := false
	for _, line := range lines(body) {
		if isFence(line) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		item, ok := listItem(line)
		if ok && item != "" {
			out = append(out, item)
		}
	}
	return out
}

func listItem(line string) (string, bool) {
	t := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(t, "- "), strings.HasPrefix(t, "* "), strings.HasPrefix(t, "+ "):
		t = strings.TrimSpace(t[2:])
	case numberedRe.MatchString(t):
		t = strings.TrimSpace(numberedRe.ReplaceAllString(t, ""))
	default:
		return "", false
	}
	for _, box := range []string{"[ ] ", "[x] ", "[X] "} {
		t = strings.TrimPrefix(t, box)
	}
	return strings.TrimSpace(t), true
}

// SectionList returns the list items of the section matching names.
func SectionList(content string, names ...string) []string {
	return ListItems(Section(content, names...))
}

// KeyValue splits "key: value" on the first colon. URLs and entries with an
// empty key are not pairs. Bold markers around the key are removed.
func KeyValue(item string) (key, value string, ok bool) {
	idx := strings.Index(item, ":")
	if idx <= 0 {
		return "", "", false
	}
	if strings.HasPrefix(item[idx:], "://") {
		return "", "", false
	}
	key = strings.TrimSpace(strings.Trim(strings.TrimSpace(item[:idx]), "*_`"))
	value = strings.TrimSpace(strings.TrimLeft(item[idx+1:], "*_ "))
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

// Pair is one key/value entry.
type Pair struct {
	Key   string
	Value string
}

// KeyValues returns the key/value entries among the list items of body.
func KeyValues(body string) []Pair {
	var out []Pair
	for _, item := range ListItems(body) {
		if k, v, ok := KeyValue(item); ok {
			out = append(out, Pair{Key: k, Value: v})
		}
	}
	return out
}

// Words splits content into whitespace-separated words.
func Words(content string) []string {
	return strings.Fields(content)
}
