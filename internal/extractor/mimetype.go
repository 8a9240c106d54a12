package extractor

import (
	"path/filepath"
	"strings"
)

// extToMIME maps file extensions to a best-guess MIME type, the same
// basename/extension lookup shape as a language-detection table, retargeted
// at the nie:mimeType property instead of a syntax-highlighting language.
var extToMIME = map[string]string{
	".go":   "text/x-go",
	".ts":   "text/x-typescript",
	".tsx":  "text/x-typescript",
	".js":   "text/javascript",
	".jsx":  "text/javascript",
	".mjs":  "text/javascript",
	".py":   "text/x-python",
	".rs":   "text/x-rust",
	".java": "text/x-java",
	".c":    "text/x-c",
	".h":    "text/x-c",
	".cc":   "text/x-c++",
	".cpp":  "text/x-c++",
	".hpp":  "text/x-c++",
	".cs":   "text/x-csharp",
	".rb":   "text/x-ruby",
	".php":  "text/x-php",
	".sh":   "text/x-shellscript",
	".bash": "text/x-shellscript",
	".sql":  "text/x-sql",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".json": "application/json",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".toml": "application/toml",
	".xml":  "application/xml",
	".md":   "text/markdown",
	".txt":  "text/plain",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
}

var filenameToMIME = map[string]string{
	"Makefile":   "text/x-makefile",
	"Dockerfile": "text/x-dockerfile",
}

// detectMIMEType guesses a file's MIME type from its basename and
// extension, falling back to application/octet-stream.
func detectMIMEType(path string) string {
	base := filepath.Base(path)
	if mime, ok := filenameToMIME[base]; ok {
		return mime
	}
	ext := strings.ToLower(filepath.Ext(path))
	if mime, ok := extToMIME[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}
