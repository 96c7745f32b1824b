package document

import (
	"sort"
	"strings"
)

type FamilyEntry struct {
	Depth int
	Item  Item
}

// CompletionFamily walks the inputs of completion id (the run result when id
// is 0) depth first. The completion itself has depth 1; segments are listed
// but never expanded. It returns the deepest depth reached. A missing id or a
// segment id yields (0, nil).
func (r *RunRecord) CompletionFamily(id int) (int, []FamilyEntry) {
	if id == 0 {
		id = r.ResultID
	}
	root := r.Completion(id)
	if root == nil {
		return 0, nil
	}
	maxDepth := 0
	var out []FamilyEntry
	stack := []FamilyEntry{{Depth: 1, Item: root}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, e)
		if e.Depth > maxDepth {
			maxDepth = e.Depth
		}
		c, ok := e.Item.(*Completion)
		if !ok {
			continue
		}
		for i := len(c.InputIDs) - 1; i >= 0; i-- {
			if child := r.Item(c.InputIDs[i]); child != nil {
				stack = append(stack, FamilyEntry{Depth: e.Depth + 1, Item: child})
			}
		}
	}
	return maxDepth, out
}

// OrderedItems lists the final result and the completions beneath it in
// pre-order, then every segment of the run.
func (r *RunRecord) OrderedItems() []Item {
	var out []Item
	if res := r.Result(); res != nil {
		stack := []*Completion{res}
		for len(stack) > 0 {
			c := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			out = append(out, c)
			for i := len(c.InputIDs) - 1; i >= 0; i-- {
				child := r.Completion(c.InputIDs[i])
				if child != nil && !child.IsFinalResult {
					stack = append(stack, child)
				}
			}
		}
	}
	for _, s := range r.Segments {
		out = append(out, s)
	}
	return out
}

// GenItems lists completions in the order they were generated, each preceded
// by the segments it consumed the first time they appear, then the segments
// nobody consumed. It is useful while a run has no result yet.
func (r *RunRecord) GenItems() []Item {
	used := map[int]bool{}
	var out []Item
	for _, c := range r.Completions {
		for _, id := range c.InputIDs {
			if s := r.Segment(id); s != nil && !used[id] {
				used[id] = true
				out = append(out, s)
			}
		}
		out = append(out, c)
	}
	for _, s := range r.Segments {
		if !used[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// Export joins the text of the named items with blank lines, in the order
// given. Unknown names are skipped.
func (r *RunRecord) Export(names []string) string {
	parts := make([]string, 0, len(names))
	for _, name := range names {
		if it := r.ItemByName(name); it != nil {
			parts = append(parts, it.Record().Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// lineage returns c and every completion reachable through its inputs,
// ordered by id so inputs precede the completions built from them.
func (r *RunRecord) lineage(c *Completion) []*Completion {
	seen := map[int]bool{}
	var out []*Completion
	stack := []*Completion{c}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur.ID] {
			continue
		}
		seen[cur.ID] = true
		out = append(out, cur)
		for _, id := range cur.InputIDs {
			if child := r.Completion(id); child != nil && !seen[id] {
				stack = append(stack, child)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
