package pdfextract

import (
	"bytes"
	"errors"
	"io"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned when the PDF parses but contains no extractable text
// (scanned images, empty pages).
var ErrNoText = errors.New("pdf contains no extractable text")

// ExtractText reads the entire content of r and extracts plain text from the
// PDF, pages concatenated in order.
func ExtractText(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", ErrNoText
	}
	readerAt := bytes.NewReader(b)
	pdfReader, err := pdf.NewReader(readerAt, int64(len(b)))
	if err != nil {
		return "", err
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", err
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return "", ErrNoText
	}
	return string(out), nil
}
