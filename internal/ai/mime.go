package ai

import (
	"path/filepath"
	"strings"
)

const DefaultMIMEType = "application/octet-stream"

var documentMIMETypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// MIMEType returns the document MIME type for the file extension, falling back to DefaultMIMEType.
func MIMEType(path string) string {
	if mime, ok := documentMIMETypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return DefaultMIMEType
}

// SupportedExtension reports whether the extension is a resume format the model accepts.
func SupportedExtension(ext string) bool {
	_, ok := documentMIMETypes[strings.ToLower(ext)]
	return ok
}
