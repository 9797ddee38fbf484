package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const doc = `# Product: Checkout

## Product Vision
Make paying for things boring.

## 2. Success Criteria:
- Checkout under 30 seconds
* 99.9% availability
1. Fewer support tickets

### Notes
- nested note

## Stakeholders
- Finance: approves budget
- **Support**: handles escalations
- https://example.com/wiki

` + "```" + `
## Not A Heading
- not an item
` + "```" + `

## Technical Constraints
- [ ] Must run on ARM
- [x] PCI DSS
`

func TestHeadings(t *testing.T) {
	hs := Headings(doc)
	var texts []string
	for _, h := range hs {
		texts = append(texts, h.Text)
	}
	assert.Equal(t, []string{
		"Product: Checkout", "Product Vision", "2. Success Criteria:", "Notes", "Stakeholders", "Technical Constraints",
	}, texts)
	assert.Equal(t, 3, hs[3].Level)
	assert.Equal(t, 6, CountSections(doc))
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"2. Success Criteria:":        "success criteria",
		"  Technical   Requirements ": "technical requirements",
		"1.2.3 Overview":              "overview",
		"iv. Risks":                   "risks",
		"**Architecture**":            "architecture",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestSection(t *testing.T) {
	assert.Equal(t, "Make paying for things boring.", Section(doc, "Product Vision", "Vision"))
	assert.Equal(t, "Make paying for things boring.", Section(doc, "vision"), "contains match is a fallback")
	assert.Equal(t, "", Section(doc, "Milestones"))
	assert.Equal(t, "", Section("", "Anything"))

	criteria := Section(doc, "Success Criteria")
	assert.Contains(t, criteria, "### Notes", "subsections belong to their parent")
	assert.NotContains(t, criteria, "Stakeholders")
}

func TestSection_AliasOrder(t *testing.T) {
	content := "## Constraints\n- generic\n\n## Technical Constraints\n- specific\n"
	assert.Equal(t, []string{"specific"}, SectionList(content, "Technical Constraints", "Constraints"))
	assert.Equal(t, []string{"generic"}, SectionList(content, "Constraints"))
}

func TestSection_IgnoresFencedHeadings(t *testing.T) {
	assert.False(t, HasSection(doc, "Not A Heading"))
	assert.True(t, HasSection(doc, "stakeholder"))
}

func TestFind_WholeWords(t *testing.T) {
	content := "## Division of Labour\nTeam A owns billing.\n\n## Rapid Prototyping\n- throwaway mockups\n"
	assert.False(t, HasSection(content, "Vision"))
	assert.False(t, HasSection(content, "API"))
	assert.Equal(t, "", Section(content, "Product Vision", "Vision"))

	content = "## Our Product Vision Today\nBoring payments.\n\n## Public API Surface\n- REST\n"
	assert.Equal(t, "Boring payments.", Section(content, "Vision"))
	assert.Equal(t, []string{"REST"}, SectionList(content, "Interfaces", "API"))
}

func TestListItems(t *testing.T) {
	assert.Equal(t,
		[]string{"Checkout under 30 seconds", "99.9% availability", "Fewer support tickets", "nested note"},
		SectionList(doc, "Success Criteria"))
	assert.Equal(t, []string{"Must run on ARM", "PCI DSS"}, SectionList(doc, "Technical Constraints"))
	assert.Nil(t, ListItems("plain prose\nwithout bullets"))
	assert.Equal(t, []string{"two"}, ListItems("-\n- two\n2) "))
}

func TestKeyValue(t *testing.T) {
	tests := []struct {
		in     string
		key    string
		value  string
		isPair bool
	}{
		{"REQ-001: Users can pay", "REQ-001", "Users can pay", true},
		{"**Support**: handles escalations", "Support", "handles escalations", true},
		{"**Timeline:** 3 months", "Timeline", "3 months", true},
		{"https://example.com", "", "", false},
		{": no key", "", "", false},
		{"no colon here", "", "", false},
		{"Beta: ", "Beta", "", true},
	}
	for _, tt := range tests {
		k, v, ok := KeyValue(tt.in)
		assert.Equal(t, tt.isPair, ok, tt.in)
		assert.Equal(t, tt.key, k, tt.in)
		assert.Equal(t, tt.value, v, tt.in)
	}
}

func TestKeyValues(t *testing.T) {
	pairs := KeyValues(Section(doc, "Stakeholders"))
	assert.Equal(t, []Pair{
		{Key: "Finance", Value: "approves budget"},
		{Key: "Support", Value: "handles escalations"},
	}, pairs)
}

func TestWords(t *testing.T) {
	assert.Len(t, Words("one two\nthree\tfour "), 4)
}
