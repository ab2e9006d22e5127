package api

import (
	"bytes"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var pdfMagic = []byte("%PDF-")

// isSupportedUpload accepts .txt files holding non-empty UTF-8 text and .pdf
// files carrying a PDF header. Extension and content must agree.
func isSupportedUpload(filename string, body []byte) bool {
	if len(bytes.TrimSpace(body)) == 0 {
		return false
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return bytes.HasPrefix(body, pdfMagic)
	case ".txt":
		if !utf8.Valid(body) || bytes.HasPrefix(body, pdfMagic) {
			return false
		}
		return strings.HasPrefix(http.DetectContentType(body), "text/plain")
	default:
		return false
	}
}
