package document

import "strings"

// Prompt is an instruction a run applies to its items. Consolidate marks
// prompts whose output can itself be fed back through the same prompt when
// several results are reduced to one.
type Prompt struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Text        string `json:"text"`
	Consolidate bool   `json:"consolidate"`
}

type initialPrompt struct {
	name, text  string
	consolidate bool
}

var initialPrompts = []initialPrompt{
	{"Summarize", "Provide a summary", true},
	{"Summarize Main Points", "Summarize the main points", true},
	{"Summarize with Insights", "Summarize and give a list of bullet points with key insights and the most important facts", true},
	{"Describe Main Ideas", "Describe the main ideas", true},
	{"Explain Concepts", "Explain the concepts", true},
	{"Explain Importance", "Explain why this is important", true},
	{"What Should We Know", "What should we know about this", true},
	{"Help Understanding", "Help me understand this", true},
	{"List Target Dates", "List deliverables and target dates", false},
	{"Key Challenges", "Describe the key challenges to be addressed", true},
	{"Explain Pirate", "Explain like a pirate", false},
	{"Explain Surfer", "Explain like a surfer", false},
	{"List People", "List the people that are mentioned", false},
	{"List Topics", "List the topics that are mentioned", false},
}

// promptNameLimit bounds generated names for ad-hoc prompts.
const promptNameLimit = 12

// PromptSet is the prompt registry of one document.
type PromptSet []Prompt

func NewPromptSet() PromptSet {
	var ps PromptSet
	for _, p := range initialPrompts {
		ps.add(p.name, p.text, p.consolidate)
	}
	return ps
}

func (ps *PromptSet) add(name, text string, consolidate bool) int {
	id := 0
	for _, p := range *ps {
		if p.ID >= id {
			id = p.ID + 1
		}
	}
	*ps = append(*ps, Prompt{ID: id, Name: name, Text: text, Consolidate: consolidate})
	return id
}

func (ps PromptSet) ByID(id int) (Prompt, bool) {
	for _, p := range ps {
		if p.ID == id {
			return p, true
		}
	}
	return Prompt{}, false
}

func (ps PromptSet) ByName(name string) (Prompt, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p, true
		}
	}
	return Prompt{}, false
}

// Text returns the prompt text for id, or "" when unknown.
func (ps PromptSet) Text(id int) string {
	p, _ := ps.ByID(id)
	return p.Text
}

func (ps PromptSet) Name(id int) string {
	p, _ := ps.ByID(id)
	return p.Name
}

// PromptID finds a prompt by its text, registering a new one when none
// matches. New prompts are named after the start of their text.
func (ps *PromptSet) PromptID(text string) int {
	for _, p := range *ps {
		if p.Text == text {
			return p.ID
		}
	}
	name := strings.TrimSpace(text)
	if r := []rune(name); len(r) > promptNameLimit {
		name = string(r[:promptNameLimit]) + "..."
	}
	return ps.add(name, text, true)
}

// Fixup brings the built-in prompts up to date, adding missing ones and
// updating changed texts. It reports whether anything changed.
func (ps *PromptSet) Fixup() bool {
	changed := false
	for _, ip := range initialPrompts {
		idx := -1
		for i, p := range *ps {
			if p.Name == ip.name {
				idx = i
				break
			}
		}
		if idx < 0 {
			ps.add(ip.name, ip.text, ip.consolidate)
			changed = true
			continue
		}
		if (*ps)[idx].Text != ip.text {
			(*ps)[idx].Text = ip.text
			changed = true
		}
	}
	return changed
}

// DefaultConsolidate reports the consolidate flag of the built-in prompt
// called name. Prompts outside the built-in table consolidate.
func DefaultConsolidate(name string) bool {
	for _, ip := range initialPrompts {
		if ip.name == name {
			return ip.consolidate
		}
	}
	return true
}

// Consolidation lists the prompts suited to multi-pass reduction.
func (ps PromptSet) Consolidation() []Prompt {
	out := make([]Prompt, 0, len(ps))
	for _, p := range ps {
		if p.Consolidate {
			out = append(out, p)
		}
	}
	return out
}
