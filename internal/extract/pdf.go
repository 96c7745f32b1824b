package extract

import (
	"bytes"
	"fmt"
	"io"

	"docworker/internal/util"

	"github.com/ledongthuc/pdf"
)

// PDF returns the plain text of every page.
func PDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", util.ErrCorruptFile, err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: read pdf text: %v", util.ErrCorruptFile, err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	text := util.SanitizeText(string(b))
	if text == "" {
		return "", util.ErrNoExtractableText
	}
	return text, nil
}
