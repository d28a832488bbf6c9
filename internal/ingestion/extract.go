package ingestion

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// extractor turns raw file bytes into UTF-8 text.
type extractor func(raw []byte) (string, error)

// extractors is keyed by format; every supported format has an entry.
var extractors = map[Format]extractor{
	FormatPDF:  extractPDF,
	FormatDOCX: extractDOCX,
	FormatText: decodeText,
}

// decodeText decodes plain-text bytes. A byte-order mark selects UTF-8 or
// UTF-16; BOM-less input that is valid UTF-8 passes through; anything else
// is treated as Windows-1252, the common legacy encoding for uploads.
func decodeText(raw []byte) (string, error) {
	var out string
	switch {
	case hasBOM(raw):
		dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
		b, _, err := transform.Bytes(dec, raw)
		if err != nil {
			return "", fmt.Errorf("decode bom text: %w", err)
		}
		out = string(b)
	case utf8.Valid(raw):
		out = string(raw)
	default:
		b, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), raw)
		if err != nil {
			return "", fmt.Errorf("decode windows-1252 text: %w", err)
		}
		out = string(b)
	}
	return strings.ReplaceAll(out, "\x00", ""), nil
}

// hasBOM reports whether raw starts with a UTF-8 or UTF-16 byte-order mark.
func hasBOM(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}) ||
		bytes.HasPrefix(raw, []byte{0xFE, 0xFF}) ||
		bytes.HasPrefix(raw, []byte{0xFF, 0xFE})
}

// extractPDF returns the plain text of every page, in page order.
// The PDF parser panics on some malformed inputs; those are reported as errors.
func extractPDF(raw []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(b), nil
}

// extractDOCX reads word/document.xml from the archive and returns one line
// per paragraph, table cells included.
func extractDOCX(raw []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}

		text, err := docxText(content)
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		return text, nil
	}
	return "", errors.New("docx: word/document.xml not found")
}

// wordML is the WordprocessingML main namespace.
const wordML = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// docxText walks document.xml in document order. Every w:p ends a line
// wherever it sits, so table cells keep their text. Tabs and breaks count
// only inside a run; the w:tab elements under w:pPr are tab stops.
func docxText(content []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))

	var sb strings.Builder
	paragraphs, runDepth := 0, 0
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Space != wordML {
				continue
			}
			switch el.Name.Local {
			case "p":
				if paragraphs > 0 {
					sb.WriteByte('\n')
				}
				paragraphs++
			case "r":
				runDepth++
			case "t":
				inText = runDepth > 0
			case "tab":
				if runDepth > 0 {
					sb.WriteByte('\t')
				}
			case "br", "cr":
				if runDepth > 0 {
					sb.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if el.Name.Space != wordML {
				continue
			}
			switch el.Name.Local {
			case "r":
				runDepth--
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				sb.Write(el)
			}
		}
	}
	return sb.String(), nil
}
