package extract

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractionError reports a failed PDF→text conversion (corrupt file,
// unsupported encoding, converter failure).
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract pdf: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extract pdf: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor converts a PDF file on disk into plain text.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

// ExtractFile returns the raw text of the PDF at path. It prefers the system
// pdftotext tool (better layout and encoding support) and falls back to the
// Go PDF library.
func (e *Extractor) ExtractFile(path string) (string, error) {
	if text, err := extractWithPdftotext(path); err == nil && text != "" {
		return text, nil
	}
	return extractWithGoLib(path)
}

func extractWithPdftotext(path string) (string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return "", fmt.Errorf("pdftotext not found: %w", err)
	}
	cmd := exec.Command("pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	return string(output), nil
}

func extractWithGoLib(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", &ExtractionError{Reason: "open pdf", Err: err}
	}
	defer file.Close()
	totalPages := reader.NumPage()
	var pages []string
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing entirely.
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", &ExtractionError{Reason: "no text extracted"}
	}
	return strings.Join(pages, "\n\n"), nil
}

// Clean normalizes extracted text: runs of horizontal whitespace collapse to
// a single space, line edges are trimmed, and three or more consecutive
// newlines collapse to exactly two (paragraph breaks survive). Clean is
// idempotent.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text = strings.Join(lines, "\n")

	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}
