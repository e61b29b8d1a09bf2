package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/ledongthuc/pdf"
)

// Detected file kinds, stored on the material after ingestion.
const (
	FileTypePDF  = "application/pdf"
	FileTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	FileTypePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	FileTypeHTML = "text/html"
	FileTypeText = "text/plain"
)

// ExtractText determines the true file type from the bytes themselves
// (declared mime types and extensions lie constantly) and extracts plain
// text. Paragraph breaks are preserved as blank lines so the chunker can
// split on document structure.
func ExtractText(originalName, mimeType string, data []byte) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	if len(data) == 0 {
		return "", "", fmt.Errorf("empty file: name=%s mime=%s", originalName, mimeType)
	}

	if isPDF(data) {
		text, err := extractPDF(data)
		return text, FileTypePDF, err
	}
	if isZip(data) {
		kind, err := detectOpenXMLKind(data)
		if err != nil {
			return "", "", fmt.Errorf("zip container detect: %w", err)
		}
		switch kind {
		case "docx":
			text, err := extractDOCX(data)
			return text, FileTypeDOCX, err
		case "pptx":
			text, err := extractPPTX(data)
			return text, FileTypePPTX, err
		default:
			return "", "", fmt.Errorf("unsupported zip container kind=%s name=%s", kind, originalName)
		}
	}
	if looksLikeHTML(data) || mt == FileTypeHTML || ext == ".html" || ext == ".htm" {
		return extractHTML(data), FileTypeHTML, nil
	}
	if isProbablyText(data) || mt == FileTypeText || ext == ".txt" || ext == ".md" || ext == ".markdown" {
		return tidyText(string(data)), FileTypeText, nil
	}

	// The declared type claimed something we sniffed negative for.
	if mt == FileTypePDF || ext == ".pdf" {
		return "", "", fmt.Errorf("file claims pdf but lacks the %%PDF header: name=%s", originalName)
	}
	if mt == FileTypeDOCX || ext == ".docx" {
		return "", "", fmt.Errorf("file claims docx but is not a valid zip container: name=%s", originalName)
	}
	return "", "", fmt.Errorf("unsupported file type: name=%s ext=%s mime=%s head=%x",
		originalName, ext, mimeType, head(data, 16))
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

func looksLikeHTML(b []byte) bool {
	s := strings.ToLower(strings.TrimSpace(string(head(b, 2048))))
	if strings.HasPrefix(s, "<!doctype") || strings.HasPrefix(s, "<html") {
		return true
	}
	// Saved pages sometimes open with comments or whitespace noise.
	return strings.Contains(s, "<html") && strings.Contains(s, "<body")
}

// isProbablyText accepts data with no NUL bytes and a high ratio of
// printable or multi-byte characters.
func isProbablyText(b []byte) bool {
	sample := head(b, 4096)
	good := 0
	for _, c := range sample {
		if c == 0x00 {
			return false
		}
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
			good++
		}
	}
	return float64(good)/float64(len(sample)) > 0.9
}

func head(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return tidyText(string(raw)), nil
}

func detectOpenXMLKind(zipBytes []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	hasWord, hasPpt := false, false
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "word/") {
			hasWord = true
		}
		if strings.HasPrefix(f.Name, "ppt/") {
			hasPpt = true
		}
	}
	switch {
	case hasWord && !hasPpt:
		return "docx", nil
	case hasPpt && !hasWord:
		return "pptx", nil
	default:
		return "unknown", fmt.Errorf("zip does not look like docx or pptx")
	}
}

// extractDOCX reads word/document.xml and joins <w:t> runs, emitting a
// paragraph break at every closing <w:p>.
func extractDOCX(zipBytes []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx missing word/document.xml")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}

	text := tidyText(xmlParagraphText(raw))
	if text == "" {
		return "", fmt.Errorf("no text extracted from docx")
	}
	return text, nil
}

// extractPPTX walks ppt/slides/*.xml; each slide becomes one paragraph.
func extractPPTX(zipBytes []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	var slides []string
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "ppt/slides/") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		if slide := strings.TrimSpace(xmlParagraphText(raw)); slide != "" {
			slides = append(slides, slide)
		}
	}
	text := tidyText(strings.Join(slides, "\n\n"))
	if text == "" {
		return "", fmt.Errorf("no text extracted from pptx")
	}
	return text, nil
}

// xmlParagraphText gathers the character data of <t> elements, inserting a
// paragraph break whenever a <p> element closes.
func xmlParagraphText(raw []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local != "t" {
				continue
			}
			var v string
			if err := dec.DecodeElement(&v, &el); err == nil && v != "" {
				out.WriteString(v)
				out.WriteString(" ")
			}
		case xml.EndElement:
			if el.Name.Local == "p" {
				out.WriteString("\n\n")
			}
		}
	}
	return out.String()
}

// extractHTML renders the document's readable blocks, one paragraph per
// block element. Unparseable input degrades to a crude tag strip.
func extractHTML(data []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return tidyText(string(data))
	}
	doc.Find("script, style, noscript").Remove()

	var blocks []string
	doc.Find("p, li, blockquote, h1, h2, h3, h4, h5, h6, td, pre").Each(func(_ int, sel *goquery.Selection) {
		if s := strings.TrimSpace(sel.Text()); s != "" {
			blocks = append(blocks, s)
		}
	})
	if len(blocks) == 0 {
		return tidyText(doc.Find("body").Text())
	}
	return tidyText(strings.Join(blocks, "\n\n"))
}

// tidyText squeezes horizontal whitespace per line and collapses runs of
// blank lines to a single paragraph break.
func tidyText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var (
		b     strings.Builder
		blank = 0
	)
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank++
			continue
		}
		if b.Len() > 0 {
			if blank > 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteString("\n")
			}
		}
		blank = 0
		b.WriteString(line)
	}
	return b.String()
}
