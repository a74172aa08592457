package knowledge

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// supportedExtensions lists every extension Extract can handle, in the order
// reported by UnsupportedFormatError.
var supportedExtensions = []string{
	".csv", ".doc", ".docx", ".htm", ".html", ".log", ".md", ".pdf", ".tsv", ".txt",
}

// mediaTypeExtensions maps declared media types to an extension, used when
// the filename extension is missing or unknown.
var mediaTypeExtensions = map[string]string{
	"application/pdf":          ".pdf",
	"application/msword":       ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"text/plain":    ".txt",
	"text/markdown": ".md",
	"text/html":     ".html",
	"text/csv":      ".csv",
	"text/tab-separated-values": ".tsv",
}

// pageMarker prefixes each extracted PDF page so downstream chunking can
// recover page numbers.
const pageMarkerFormat = "[Page %d]"

var pageMarkerRe = regexp.MustCompile(`\[Page (\d+)\]`)

// Extract converts a raw file blob into plain text. Dispatch is on the
// filename extension first, falling back to the declared media type. It is
// pure and stateless; failures are either *UnsupportedFormatError or
// *ExtractionFailedError, neither of which is ever retried.
func Extract(data []byte, filename, mediaType string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !extensionSupported(ext) {
		if mapped, ok := mediaTypeExtensions[normalizeMediaType(mediaType)]; ok {
			ext = mapped
		}
	}

	switch ext {
	case ".txt", ".md", ".log":
		return extractPlain(data), nil
	case ".pdf":
		return extractPDF(data)
	case ".doc", ".docx":
		return extractOffice(data, ext)
	case ".html", ".htm":
		return extractHTML(data)
	case ".csv", ".tsv":
		return extractTabular(data, ext)
	default:
		return "", &UnsupportedFormatError{Ext: ext, Supported: supportedExtensions}
	}
}

func extensionSupported(ext string) bool {
	for _, s := range supportedExtensions {
		if s == ext {
			return true
		}
	}
	return false
}

// normalizeMediaType strips parameters such as "; charset=utf-8".
func normalizeMediaType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// extractPlain decodes text as UTF-8, falling back to Latin-1 when the bytes
// are not valid UTF-8.
func extractPlain(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

// extractPDF extracts text page by page, prefixing every page with a page
// marker.
func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionFailedError{Format: "pdf", Err: err}
	}

	var sb strings.Builder
	total := reader.NumPage()
	for n := 1; n <= total; n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", &ExtractionFailedError{Format: "pdf", Err: fmt.Errorf("page %d: %w", n, err)}
		}
		sb.WriteString(fmt.Sprintf(pageMarkerFormat, n))
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(text))
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// extractOffice converts word-processor documents via docconv, concatenating
// paragraphs.
func extractOffice(data []byte, ext string) (string, error) {
	mimeType := "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	if ext == ".doc" {
		mimeType = "application/msword"
	}
	res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		return "", &ExtractionFailedError{Format: strings.TrimPrefix(ext, "."), Err: err}
	}
	return res.Body, nil
}

// extractHTML strips tags, drops script/style subtrees and normalizes
// whitespace.
func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", &ExtractionFailedError{Format: "html", Err: err}
	}
	doc.Find("script, style, noscript").Remove()

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// extractTabular joins rows with a column separator, placing a rule line
// after the header row.
func extractTabular(data []byte, ext string) (string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	if ext == ".tsv" {
		r.Comma = '\t'
	}

	var sb strings.Builder
	row := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", &ExtractionFailedError{Format: strings.TrimPrefix(ext, "."), Err: err}
		}
		sb.WriteString(strings.Join(record, " | "))
		sb.WriteString("\n")
		if row == 0 {
			sb.WriteString(strings.Repeat("-", 3))
			sb.WriteString("\n")
		}
		row++
	}
	return sb.String(), nil
}
