package ocr

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"unicode"

	pdf "github.com/ledongthuc/pdf"

	"exteroid/internal"
)

const pdfConfidence = 100

// PDFTokens reads positioned words from each page of a text PDF. Coordinates
// are flipped so Y grows downwards like image OCR output. Pages the reader
// cannot decode come back empty.
func PDFTokens(content []byte) ([][]internal.TextToken, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}
	pages := make([][]internal.TextToken, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, nil)
			continue
		}
		texts, err := pageTexts(p)
		if err != nil {
			pages = append(pages, nil)
			continue
		}
		pages = append(pages, glyphsToWords(texts))
	}
	return pages, nil
}

func pageTexts(p pdf.Page) (texts []pdf.Text, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf page content: %v", rec)
		}
	}()
	return p.Content().Text, nil
}

// glyphsToWords joins glyphs sharing a baseline into words, splitting on
// whitespace glyphs and on gaps wider than a third of the font size.
func glyphsToWords(texts []pdf.Text) []internal.TextToken {
	top := 0.0
	for _, t := range texts {
		top = math.Max(top, t.Y+t.FontSize)
	}

	var words []internal.TextToken
	var cur *internal.TextToken
	var curBase, curSize float64
	flush := func() {
		if cur != nil && strings.TrimSpace(cur.Text) != "" {
			cur.Text = strings.TrimSpace(cur.Text)
			words = append(words, *cur)
		}
		cur = nil
	}

	for _, t := range texts {
		if strings.TrimFunc(t.S, unicode.IsSpace) == "" {
			flush()
			continue
		}
		size := t.FontSize
		if size <= 0 {
			size = 1
		}
		if cur != nil {
			sameLine := math.Abs(t.Y-curBase) < curSize/2
			gap := t.X - (cur.X + cur.Width)
			if !sameLine || gap > curSize/3 || gap < -curSize {
				flush()
			}
		}
		if cur == nil {
			cur = &internal.TextToken{
				X:          t.X,
				Y:          top - (t.Y + size),
				Height:     size,
				Confidence: pdfConfidence,
			}
			curBase, curSize = t.Y, size
		}
		cur.Text += t.S
		cur.Width = math.Max(cur.Width, t.X+t.W-cur.X)
	}
	flush()
	return words
}

// PDFText is the plain text of every page, one line per row of words.
func PDFText(pages [][]internal.TextToken, rowTol float64) string {
	var lines []string
	for _, tokens := range pages {
		for _, row := range GroupRows(tokens, rowTol) {
			lines = append(lines, rowText(row))
		}
	}
	return strings.Join(lines, "\n")
}
