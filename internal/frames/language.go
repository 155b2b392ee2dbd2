package frames

import (
	"path/filepath"
	"strings"
)

var languageByExt = map[string]string{
	"py":    "python",
	"js":    "javascript",
	"jsx":   "javascript",
	"mjs":   "javascript",
	"ts":    "typescript",
	"tsx":   "typescript",
	"cs":    "csharp",
	"java":  "java",
	"kt":    "kotlin",
	"go":    "go",
	"rs":    "rust",
	"rb":    "ruby",
	"php":   "php",
	"c":     "c",
	"h":     "c",
	"cpp":   "cpp",
	"cc":    "cpp",
	"hpp":   "cpp",
	"swift": "swift",
	"scala": "scala",
	"sh":    "shell",
	"yaml":  "yaml",
	"yml":   "yaml",
	"json":  "json",
	"toml":  "toml",
	"md":    "markdown",
	"sql":   "sql",
	"tf":    "terraform",
	"dart":  "dart",
}

// DetectLanguage maps a file extension to a language name, "" when unknown.
func DetectLanguage(path string) string {
	if strings.EqualFold(filepath.Base(path), "Dockerfile") {
		return "dockerfile"
	}
	return languageByExt[strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")]
}
