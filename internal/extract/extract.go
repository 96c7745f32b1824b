// Package extract turns uploaded files into text and then into chunks.
package extract

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"docworker/internal/document"
	"docworker/internal/sections"
	"docworker/internal/tokenizer"
	"docworker/internal/util"
)

const (
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimePDF  = "application/pdf"
	MimeText = "text/plain"
)

var extensionTypes = map[string]string{
	".docx": MimeDOCX,
	".pdf":  MimePDF,
	".txt":  MimeText,
	".text": MimeText,
	".md":   MimeText,
}

// MimeType guesses the type of filename from its extension.
func MimeType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	t := mime.TypeByExtension(ext)
	if i := strings.Index(t, ";"); i >= 0 {
		t = t[:i]
	}
	return t
}

// Result is the extracted text of one file. Structured text carries section
// and table markers.
type Result struct {
	Text       string
	Structured bool
}

// Text extracts filename's content. Unknown types fail with
// util.ErrUnsupportedFormat and unreadable files with util.ErrCorruptFile.
func Text(filename string, data []byte) (Result, error) {
	switch t := MimeType(filename); {
	case t == MimeDOCX:
		text, err := DOCX(data)
		if err != nil {
			return Result{}, err
		}
		return Result{Text: text, Structured: true}, nil
	case t == MimePDF:
		text, err := PDF(data)
		if err != nil {
			return Result{}, err
		}
		return Result{Text: text}, nil
	case strings.HasPrefix(t, "text/"):
		if !utf8.Valid(data) {
			return Result{}, fmt.Errorf("%w: text file is not utf-8", util.ErrCorruptFile)
		}
		return Result{Text: util.SanitizeText(string(data))}, nil
	default:
		return Result{}, fmt.Errorf("%w: %s", util.ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// ToChunks extracts filename and cuts it into chunks of at most budget tokens.
// Structured documents go through the section segmenter; plain text is
// chunked directly, with overlap.
func ToChunks(tok tokenizer.Tokenizer, filename string, data []byte, budget int, overlap float64) ([]util.Chunk, error) {
	res, err := Text(filename, data)
	if err != nil {
		return nil, err
	}
	var chunks []util.Chunk
	if res.Structured {
		chunks = sections.Segment(tok, res.Text, budget)
	} else {
		chunks = util.ChunkTokens(tok, res.Text, budget, overlap)
	}
	if len(chunks) == 0 {
		return nil, util.ErrNoExtractableText
	}
	return chunks, nil
}

// Builder returns a storage build function that extracts and chunks uploads
// into new documents.
func Builder(tok tokenizer.Tokenizer, budget int, overlap float64) func(name string, data []byte) (*document.Document, error) {
	return func(name string, data []byte) (*document.Document, error) {
		chunks, err := ToChunks(tok, name, data, budget, overlap)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", name, err)
		}
		return document.FromChunks(name, util.SHA256Hex(data), chunks), nil
	}
}
