package models

import (
	"time"

	"docworker/internal/document"
)

type DocumentSummary struct {
	Name      string       `json:"name"`
	Segments  int          `json:"segments"`
	Tokens    int          `json:"tokens"`
	TokenCost int          `json:"token_cost"`
	Runs      []RunSummary `json:"runs"`
}

type RunSummary struct {
	RunID          int        `json:"run_id"`
	Prompt         string     `json:"prompt"`
	Status         string     `json:"status"`
	Running        bool       `json:"running"`
	CompletedSteps int        `json:"completed_steps"`
	ResultID       int        `json:"result_id,omitempty"`
	TokenCost      int        `json:"token_cost"`
	StartTime      time.Time  `json:"start_time"`
	StopTime       *time.Time `json:"stop_time,omitempty"`
}

type ItemView struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	TokenCount int    `json:"token_count"`
	InputIDs   []int  `json:"input_ids,omitempty"`
	Final      bool   `json:"final,omitempty"`
	Text       string `json:"text,omitempty"`
}

type FamilyEntry struct {
	Depth int    `json:"depth"`
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
}

type PromptView struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Text        string `json:"text"`
	Consolidate bool   `json:"consolidate"`
}

const (
	KindSegment    = "segment"
	KindCompletion = "completion"
)

func Summarize(doc *document.Document, now time.Time) DocumentSummary {
	out := DocumentSummary{
		Name:      doc.Name,
		Segments:  len(doc.Segments),
		Tokens:    doc.DocTokens(),
		TokenCost: doc.TokenCost(),
		Runs:      make([]RunSummary, 0, len(doc.Runs)),
	}
	for _, r := range doc.Runs {
		out.Runs = append(out.Runs, Run(doc, r, now))
	}
	return out
}

func Run(doc *document.Document, r *document.RunRecord, now time.Time) RunSummary {
	return RunSummary{
		RunID:          r.RunID,
		Prompt:         doc.Prompts.Name(r.PromptID),
		Status:         r.StatusMessage,
		Running:        doc.IsRunning(r.RunID, now),
		CompletedSteps: r.CompletedSteps,
		ResultID:       r.ResultID,
		TokenCost:      r.TokenCost(),
		StartTime:      r.StartTime,
		StopTime:       r.StopTime,
	}
}

// Item builds the view of it. Text is included only when withText is set.
func Item(it document.Item, withText bool) ItemView {
	rec := it.Record()
	v := ItemView{ID: rec.ID, Name: rec.Name, Kind: KindSegment, TokenCount: rec.TokenCount}
	if c, ok := it.(*document.Completion); ok {
		v.Kind = KindCompletion
		v.InputIDs = c.InputIDs
		v.Final = c.IsFinalResult
	}
	if withText {
		v.Text = rec.Text
	}
	return v
}

func Items(items []document.Item, withText bool) []ItemView {
	out := make([]ItemView, 0, len(items))
	for _, it := range items {
		out = append(out, Item(it, withText))
	}
	return out
}

func Family(entries []document.FamilyEntry) []FamilyEntry {
	out := make([]FamilyEntry, 0, len(entries))
	for _, e := range entries {
		v := Item(e.Item, false)
		out = append(out, FamilyEntry{Depth: e.Depth, ID: v.ID, Name: v.Name, Kind: v.Kind})
	}
	return out
}

func Prompts(ps []document.Prompt) []PromptView {
	out := make([]PromptView, 0, len(ps))
	for _, p := range ps {
		out = append(out, PromptView{ID: p.ID, Name: p.Name, Text: p.Text, Consolidate: p.Consolidate})
	}
	return out
}
