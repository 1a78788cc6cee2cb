package constants

import "strings"

// AllowedExtensions holds the file extensions the batch will pick up.
// Boletos and notas fiscais only ever arrive as PDFs.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// UnresolvedDirName is the sentinel bucket for documents without an identifier.
const UnresolvedDirName = "sem_documento"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
