package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"docworker/internal/sections"
	"docworker/internal/util"
)

// DOCX converts a .docx file into marker-annotated text: heading and title
// paragraphs are preceded by a <StyleName> line and tables are wrapped in
// table markers. Every block is followed by a blank line.
func DOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open docx archive: %v", util.ErrCorruptFile, err)
	}
	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("%w: word/document.xml not found", util.ErrCorruptFile)
	}
	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open document.xml: %v", util.ErrCorruptFile, err)
	}
	defer rc.Close()

	blocks, err := parseBody(xml.NewDecoder(rc))
	if err != nil {
		return "", fmt.Errorf("%w: parse document.xml: %v", util.ErrCorruptFile, err)
	}
	var out strings.Builder
	writeBlocks(&out, blocks)
	return out.String(), nil
}

// block is a paragraph or a table, in document order.
type block struct {
	para  *paragraph
	table *table
}

type paragraph struct {
	style string
	text  string
}

type cell struct {
	blocks []block
	span   int
	vMerge string
	merged bool
}

func (c *cell) text() string {
	parts := make([]string, 0, len(c.blocks))
	for _, b := range c.blocks {
		if b.para != nil {
			parts = append(parts, b.para.text)
		}
		if b.table != nil {
			for _, row := range b.table.rows {
				for _, ci := range row {
					parts = append(parts, b.table.cells[ci].text())
				}
			}
		}
	}
	return strings.Join(parts, "\n")
}

// table keeps cells once; rows hold indexes into cells, so a merged cell
// appears at every grid position it covers.
type table struct {
	cells []*cell
	rows  [][]int
}

func (t *table) columns() int {
	n := 0
	for _, r := range t.rows {
		if len(r) > n {
			n = len(r)
		}
	}
	return n
}

// at returns the cell index at (row, col), or -1 past a short row.
func (t *table) at(row, col int) int {
	if row >= len(t.rows) || col >= len(t.rows[row]) {
		return -1
	}
	return t.rows[row][col]
}

func parseBody(dec *xml.Decoder) ([]block, error) {
	var blocks []block
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return blocks, nil
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "p":
			p, err := parseParagraph(dec)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block{para: p})
		case "tbl":
			t, err := parseTable(dec)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block{table: t})
		}
	}
}

func parseParagraph(dec *xml.Decoder) (*paragraph, error) {
	p := &paragraph{}
	var b strings.Builder
	inText := false
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch x := tok.(type) {
		case xml.StartElement:
			depth++
			switch x.Name.Local {
			case "pStyle":
				p.style = attr(x, "val")
			case "t":
				inText = true
			case "tab":
				b.WriteString("\t")
			case "br", "cr":
				b.WriteString("\n")
			}
		case xml.EndElement:
			if depth == 0 {
				p.text = b.String()
				return p, nil
			}
			depth--
			if x.Name.Local == "t" {
				inText = false
			}
		case xml.CharData:
			if inText {
				b.Write(x)
			}
		}
	}
}

func parseTable(dec *xml.Decoder) (*table, error) {
	t := &table{}
	var cur *cell
	above := map[int]int{}
	col := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch x := tok.(type) {
		case xml.StartElement:
			switch x.Name.Local {
			case "tr":
				t.rows = append(t.rows, nil)
				col = 0
			case "tc":
				cur = &cell{span: 1}
			case "gridSpan":
				if n, err := strconv.Atoi(attr(x, "val")); err == nil && n > 1 && cur != nil {
					cur.span = n
				}
			case "vMerge":
				if cur != nil {
					cur.merged = true
					cur.vMerge = attr(x, "val")
				}
			case "p":
				p, err := parseParagraph(dec)
				if err != nil {
					return nil, err
				}
				if cur != nil {
					cur.blocks = append(cur.blocks, block{para: p})
				}
			case "tbl":
				inner, err := parseTable(dec)
				if err != nil {
					return nil, err
				}
				if cur != nil {
					cur.blocks = append(cur.blocks, block{table: inner})
				}
			}
		case xml.EndElement:
			switch x.Name.Local {
			case "tc":
				if cur == nil || len(t.rows) == 0 {
					continue
				}
				idx := len(t.cells)
				if prev, ok := above[col]; ok && cur.merged && cur.vMerge != "restart" {
					idx = prev
				} else {
					t.cells = append(t.cells, cur)
				}
				row := len(t.rows) - 1
				for i := 0; i < cur.span; i++ {
					t.rows[row] = append(t.rows[row], idx)
					above[col] = idx
					col++
				}
				cur = nil
			case "tbl":
				return t, nil
			}
		}
	}
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func writeBlocks(out *strings.Builder, blocks []block) {
	for _, b := range blocks {
		switch {
		case b.table != nil:
			writeTable(out, b.table)
		case b.para != nil:
			if strings.TrimSpace(b.para.text) == "" {
				continue
			}
			if isHeadingStyle(b.para.style) {
				fmt.Fprintf(out, "<%s>\n", b.para.style)
			}
			out.WriteString(b.para.text)
			out.WriteString("\n")
		}
		out.WriteString("\n")
	}
}

func isHeadingStyle(style string) bool {
	return strings.HasPrefix(style, "Heading") || strings.HasPrefix(style, "Title")
}

// writeTable renders a 1x1 table as its content, a table with fewer than three
// columns as a grid and anything wider as "header: value" records, one record
// per data row, skipping cell combinations already reported through merges.
func writeTable(out *strings.Builder, t *table) {
	rows, cols := len(t.rows), t.columns()
	if rows == 0 || cols == 0 {
		return
	}
	if rows == 1 && cols == 1 {
		writeBlocks(out, t.cells[t.rows[0][0]].blocks)
		return
	}
	if cols < 3 {
		out.WriteString(sections.TableStartMarker + "\n")
		for _, row := range t.rows {
			items := make([]string, 0, len(row))
			for _, ci := range row {
				items = append(items, flatten(t.cells[ci].text()))
			}
			out.WriteString(strings.Join(items, " | ") + "\n")
		}
		out.WriteString(sections.TableEndMarker + "\n")
		return
	}

	type report struct{ row, header, value int }
	seen := map[report]bool{}
	out.WriteString(sections.TableStartMarker + "\n")
	for r := 1; r < rows; r++ {
		out.WriteString(sections.RowMarker + "\n")
		label := t.at(r, 0)
		for c := 0; c < cols; c++ {
			header, value := t.at(0, c), t.at(r, c)
			if value < 0 {
				continue
			}
			content := flatten(t.cells[value].text())
			if content == "" {
				continue
			}
			key := report{row: label, header: header, value: value}
			if seen[key] {
				continue
			}
			seen[key] = true
			headerText := ""
			if header >= 0 {
				headerText = flatten(t.cells[header].text())
			}
			fmt.Fprintf(out, "%s: %s\n", headerText, content)
		}
	}
	out.WriteString(sections.TableEndMarker + "\n")
}

// flatten joins a multi-line cell into one line.
func flatten(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(strings.ReplaceAll(s, "\n", " ")), " "))
}
