package storage

import (
	"encoding/json"
	"fmt"

	"docworker/internal/document"
	"docworker/internal/util"
)

// CurrentFormatVersion is the version written by EncodeDocument.
const CurrentFormatVersion = 3

type envelope struct {
	FormatVersion int                `json:"format_version"`
	Document      *document.Document `json:"document"`
}

// migration rewrites a decoded document body from version n to n+1.
type migration func(body map[string]any) error

var migrations = map[int]migration{
	1: migrateV1,
	2: migrateV2,
}

func EncodeDocument(doc *document.Document) ([]byte, error) {
	b, err := json.MarshalIndent(envelope{FormatVersion: CurrentFormatVersion, Document: doc}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return b, nil
}

// DecodeDocument reads any known format version, migrating older bodies
// forward, and refreshes the built-in prompts. changed reports whether the
// stored form is out of date and should be rewritten.
func DecodeDocument(data []byte) (doc *document.Document, changed bool, err error) {
	var probe struct {
		FormatVersion *int            `json:"format_version"`
		Document      json.RawMessage `json:"document"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false, fmt.Errorf("decode document: %v: %w", err, util.ErrCorruptFile)
	}

	version := 1
	raw := json.RawMessage(data)
	if probe.FormatVersion != nil {
		version = *probe.FormatVersion
		raw = probe.Document
	}
	if version > CurrentFormatVersion || version < 1 {
		return nil, false, fmt.Errorf("format version %d: %w", version, util.ErrUnknownFormatVersion)
	}
	if len(raw) == 0 {
		return nil, false, fmt.Errorf("decode document: empty body: %w", util.ErrCorruptFile)
	}

	if version < CurrentFormatVersion {
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, false, fmt.Errorf("decode v%d document: %v: %w", version, err, util.ErrCorruptFile)
		}
		for v := version; v < CurrentFormatVersion; v++ {
			if err := migrations[v](body); err != nil {
				return nil, false, fmt.Errorf("migrate v%d document: %w", v, err)
			}
		}
		if raw, err = json.Marshal(body); err != nil {
			return nil, false, fmt.Errorf("encode migrated document: %w", err)
		}
		changed = true
	}

	doc = &document.Document{}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, false, fmt.Errorf("decode document body: %v: %w", err, util.ErrCorruptFile)
	}
	if doc.NextRunID <= 0 {
		doc.NextRunID = 1
		for _, r := range doc.Runs {
			if r.RunID >= doc.NextRunID {
				doc.NextRunID = r.RunID + 1
			}
		}
	}
	if doc.Prompts.Fixup() {
		changed = true
	}
	return doc, changed, nil
}

// migrateV1 converts prompt tuples to objects and renames the per-run step
// counter.
func migrateV1(body map[string]any) error {
	if list, ok := body["prompts"].([]any); ok {
		out := make([]any, 0, len(list))
		for _, p := range list {
			tuple, ok := p.([]any)
			if !ok || len(tuple) != 3 {
				return fmt.Errorf("prompt entry %v: %w", p, util.ErrCorruptFile)
			}
			out = append(out, map[string]any{"id": tuple[0], "name": tuple[1], "text": tuple[2]})
		}
		body["prompts"] = out
	}
	if runs, ok := body["runs"].([]any); ok {
		for _, r := range runs {
			run, ok := r.(map[string]any)
			if !ok {
				continue
			}
			if v, ok := run["complete_steps"]; ok {
				run["completed_steps"] = v
				delete(run, "complete_steps")
			}
		}
	}
	return nil
}

// migrateV2 fills in the consolidate flag prompts gained in v3.
func migrateV2(body map[string]any) error {
	list, ok := body["prompts"].([]any)
	if !ok {
		return nil
	}
	for _, p := range list {
		prompt, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := prompt["consolidate"]; ok {
			continue
		}
		name, _ := prompt["name"].(string)
		prompt["consolidate"] = document.DefaultConsolidate(name)
	}
	return nil
}
