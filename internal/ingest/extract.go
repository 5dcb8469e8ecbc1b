package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html/charset"
)

// ExtractFile extracts plain text from an uploaded document, dispatching
// on the filename extension. Supported: .pdf, .docx, .csv, .txt, .text,
// .md. The reader is consumed up to maxBytes; larger inputs fail with
// ErrDocumentTooLarge before any parsing happens.
func ExtractFile(name string, r io.Reader, maxBytes int64) (string, error) {
	data, err := readCapped(r, maxBytes)
	if err != nil {
		return "", err
	}

	switch strings.ToLower(path.Ext(name)) {
	case ".txt", ".text", ".md":
		return string(data), nil
	case ".csv":
		return extractCSV(data)
	case ".pdf":
		return extractPDF(data)
	case ".docx":
		return extractDOCX(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, path.Ext(name))
	}
}

// ExtractURL fetches a web page and extracts its readable article text.
// The response body is capped at maxBytes.
func ExtractURL(ctx context.Context, client *http.Client, rawURL string, maxBytes int64) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: parse url: %w", ErrIngestionFailed, err)
	}
	if pageURL.Scheme != "http" && pageURL.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported url scheme %q", ErrIngestionFailed, pageURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIngestionFailed, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetch %s: %w", ErrIngestionFailed, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: fetch %s: status %d", ErrIngestionFailed, rawURL, resp.StatusCode)
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("%w: decode charset: %w", ErrIngestionFailed, err)
	}
	data, err := readCapped(body, maxBytes)
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		return "", fmt.Errorf("%w: extract %s: %w", ErrIngestionFailed, rawURL, err)
	}
	return article.TextContent, nil
}

// readCapped reads at most maxBytes from r, failing when the input is
// longer rather than silently truncating.
func readCapped(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read document: %w", ErrIngestionFailed, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrDocumentTooLarge, maxBytes)
	}
	return data, nil
}

// extractCSV renders each record as one line with cells joined by " | ".
func extractCSV(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	var lines []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: parse csv: %w", ErrIngestionFailed, err)
		}
		lines = append(lines, strings.Join(record, " | "))
	}
	return strings.Join(lines, "\n"), nil
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: parse pdf: %w", ErrIngestionFailed, err)
	}
	text, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: extract pdf text: %w", ErrIngestionFailed, err)
	}
	var b strings.Builder
	if _, err := io.Copy(&b, text); err != nil {
		return "", fmt.Errorf("%w: read pdf text: %w", ErrIngestionFailed, err)
	}
	return b.String(), nil
}

// extractDOCX reads word/document.xml from the docx container.
// Paragraphs become blank-line separated blocks; table rows become
// lines with cells joined by " | ".
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open docx: %w", ErrIngestionFailed, err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("%w: docx missing word/document.xml", ErrIngestionFailed)
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open docx body: %w", ErrIngestionFailed, err)
	}
	defer rc.Close()

	text, err := docxText(rc)
	if err != nil {
		return "", fmt.Errorf("%w: parse docx body: %w", ErrIngestionFailed, err)
	}
	return text, nil
}

func docxText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var (
		blocks   []string
		para     strings.Builder
		cells    []string
		inText   bool
		inCell   bool
		tableRow bool
	)
	flushPara := func() {
		if s := strings.TrimSpace(para.String()); s != "" {
			if inCell {
				cells = append(cells, s)
			} else {
				blocks = append(blocks, s)
			}
		}
		para.Reset()
	}

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tc":
				inCell = true
			case "tr":
				tableRow = true
				cells = nil
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flushPara()
			case "tc":
				inCell = false
			case "tr":
				if tableRow && len(cells) > 0 {
					blocks = append(blocks, strings.Join(cells, " | "))
				}
				tableRow = false
				cells = nil
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}
