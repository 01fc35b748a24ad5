package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrDocumentRead is returned when a document cannot be opened or decoded.
var ErrDocumentRead = errors.New("document could not be read")

// ExtractPagesFromFile reads the PDF at path and returns the text of each page.
func ExtractPagesFromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return ExtractPages(f, info.Size())
}

// ExtractPagesFromBytes decodes an in-memory PDF, such as an upload.
func ExtractPagesFromBytes(data []byte) ([]string, error) {
	return ExtractPages(bytes.NewReader(data), int64(len(data)))
}

// ExtractPages decodes a PDF and returns one entry per page, in page order.
// A page whose text cannot be recovered is returned as "" so page positions
// are preserved. Failure to open the document at all wraps ErrDocumentRead.
func ExtractPages(r io.ReaderAt, size int64) (pages []string, err error) {
	// The pdf library panics on some malformed inputs.
	defer func() {
		if p := recover(); p != nil {
			pages = nil
			err = fmt.Errorf("%w: decoder crashed: %v", ErrDocumentRead, p)
		}
	}()

	reader, openErr := pdf.NewReader(r, size)
	if openErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentRead, openErr)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrDocumentRead)
	}

	pages = make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		pages[i-1] = pageText(reader.Page(i))
	}
	return pages, nil
}

// pageText tries each decoding method in turn and keeps the first that
// yields text.
func pageText(page pdf.Page) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()

	if page.V.IsNull() {
		return ""
	}
	if text = textByRow(page); text != "" {
		return text
	}
	if text = textByContent(page); text != "" {
		return text
	}
	return plainText(page)
}

// textByRow joins the library's row grouping, words separated by spaces.
func textByRow(page pdf.Page) string {
	rows, err := page.GetTextByRow()
	if err != nil {
		return ""
	}

	var lines []string
	for _, row := range rows {
		parts := make([]string, 0, len(row.Content))
		for _, word := range row.Content {
			parts = append(parts, word.S)
		}
		if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// columnGap is the horizontal distance, in points, treated as a column break.
const columnGap = 15

// textByContent rebuilds rows from raw glyph positions. Items are grouped by
// rounded Y (top of page first) and ordered by X within a row.
func textByContent(page pdf.Page) string {
	content := page.Content()
	if len(content.Text) == 0 {
		return ""
	}

	type glyph struct {
		x float64
		s string
	}
	rowMap := make(map[int][]glyph)
	for _, t := range content.Text {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		y := int(math.Round(t.Y))
		rowMap[y] = append(rowMap[y], glyph{x: t.X, s: t.S})
	}

	ys := make([]int, 0, len(rowMap))
	for y := range rowMap {
		ys = append(ys, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ys)))

	var lines []string
	for _, y := range ys {
		items := rowMap[y]
		sort.Slice(items, func(a, b int) bool { return items[a].x < items[b].x })

		var b strings.Builder
		for j, item := range items {
			if j > 0 && item.x-items[j-1].x > columnGap {
				b.WriteString("  ")
			}
			b.WriteString(item.s)
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func plainText(page pdf.Page) string {
	fonts := make(map[string]*pdf.Font)
	for _, name := range page.Fonts() {
		f := page.Font(name)
		fonts[name] = &f
	}

	text, err := page.GetPlainText(fonts)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
