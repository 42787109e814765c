package media

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
)

// Category is the closed set of destination folders a file can be sorted
// into. The zero value is Images; Unrecognized is the catch-all.
type Category int

const (
	Images Category = iota
	Videos
	Documents
	Archives
	Audio
	Unprocessed
	Unrecognized
)

// rule binds a category to its folder name, counter key and extensions.
type rule struct {
	category Category
	folder   string
	key      string
	exts     []string
}

// rules is evaluated in order; the first match wins. Extension sets are
// disjoint, which init enforces.
var rules = []rule{
	{Images, "Imagenes", "imagenes", []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".ico", ".avif"}},
	{Videos, "Videos", "videos", []string{".mp4", ".avi", ".mov", ".mkv", ".wmv", ".flv", ".mpeg", ".mpg"}},
	{Documents, "Documentos", "documentos", []string{".doc", ".docx", ".pdf", ".odt", ".txt", ".md", ".rtf", ".xls", ".xlsx", ".ppt", ".pptx", ".csv"}},
	{Archives, "Rars", "rars", []string{".zip", ".rar", ".7z", ".tar", ".gz", ".bz2", ".iso"}},
	{Audio, "Audio", "audio", []string{".mp3", ".wav", ".flac", ".ogg", ".aac", ".wma", ".m4a"}},
	{Unprocessed, "Sin procesar", "sin_procesar", []string{".webp", ".ts", ".m4s"}},
	{Unrecognized, "Sin reconocer", "sin_reconocer", nil},
}

var byExt = map[string]Category{}

func init() {
	for i, r := range rules {
		if r.category != Category(i) {
			panic(fmt.Sprintf("media: rule %d out of order", i))
		}
		for _, ext := range r.exts {
			if prev, dup := byExt[ext]; dup {
				panic(fmt.Sprintf("media: extension %s claimed by %s and %s", ext, prev, r.category))
			}
			byExt[ext] = r.category
		}
	}
}

// NormalizeExt returns ext case-folded with a leading dot.
func NormalizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	// Casers carry state, so each call gets its own.
	return cases.Fold().String(ext)
}

// Ext returns the normalized extension of path.
func Ext(path string) string {
	return NormalizeExt(filepath.Ext(path))
}

// Classify returns the category for path based on its extension.
func Classify(path string) Category {
	if c, ok := byExt[Ext(path)]; ok {
		return c
	}
	return Unrecognized
}

// Folder is the directory name the category is stored under.
func (c Category) Folder() string {
	if c < 0 || int(c) >= len(rules) {
		return rules[Unrecognized].folder
	}
	return rules[c].folder
}

// Key is the counter name used in stage results.
func (c Category) Key() string {
	if c < 0 || int(c) >= len(rules) {
		return rules[Unrecognized].key
	}
	return rules[c].key
}

func (c Category) String() string { return c.Folder() }

// Extensions returns a copy of the extensions mapped to c.
func (c Category) Extensions() []string {
	if c < 0 || int(c) >= len(rules) {
		return nil
	}
	return append([]string(nil), rules[c].exts...)
}

// Categories lists every category in rule order.
func Categories() []Category {
	out := make([]Category, len(rules))
	for i, r := range rules {
		out[i] = r.category
	}
	return out
}

// Folders lists every category folder name in rule order.
func Folders() []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.folder
	}
	return out
}
