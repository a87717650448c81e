package storage

import (
	"fmt"
	"strings"
)

// unnamedFile stands in for attachments created without a name.
const unnamedFile = "unnamed_file"

// NormalizeFilename lower-cases and trims name, then replaces every rune
// outside [a-z0-9_.-] with an underscore.
func NormalizeFilename(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	return strings.Map(func(r rune) rune {
		if isKeyRune(r) {
			return r
		}
		return '_'
	}, name)
}

// SanitizeName is the case-preserving variant used for migration keys.
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if isKeyRune(r) || (r >= 'A' && r <= 'Z') {
			return r
		}
		return '_'
	}, name)
}

func isKeyRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '.' || r == '-'
}

// GenerateKey derives the object key for content with the given checksum:
// files/<checksum[:2]>/<checksum>/<normalized filename>.
func GenerateKey(checksum, filename string) (string, error) {
	if len(checksum) < 2 {
		return "", fmt.Errorf("%w: checksum %q is too short", ErrValidation, checksum)
	}
	name := NormalizeFilename(filename)
	if name == "" {
		name = unnamedFile
	}
	return "files/" + checksum[:2] + "/" + checksum + "/" + name, nil
}

// FolderKey joins a caller-supplied folder and filename into a flat key.
func FolderKey(folder, filename string) string {
	return strings.TrimSuffix(folder, "/") + "/" + strings.TrimPrefix(filename, "/")
}

var extensionMimetypes = map[string]string{
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"txt":  "text/plain",
	"html": "text/html",
	"htm":  "text/html",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"zip":  "application/zip",
	"csv":  "text/csv",
}

// DefaultMimetype is returned when the extension is unknown.
const DefaultMimetype = "application/octet-stream"

// GuessMimetype looks up the text after the last dot of filename, ignoring
// case. A name without a dot is looked up whole, so "pdf" is a PDF.
func GuessMimetype(filename string) string {
	ext := filename[strings.LastIndex(filename, ".")+1:]
	if mt, ok := extensionMimetypes[strings.ToLower(ext)]; ok {
		return mt
	}
	return DefaultMimetype
}
