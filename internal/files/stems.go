package files

import (
	"path/filepath"
	"sort"
	"strings"
)

// Stem returns the filename without all of its suffixes:
// "2026-01-01_Article.readability.json" -> "2026-01-01_Article".
// Hidden files keep their leading dot.
func Stem(name string) string {
	name = filepath.Base(name)
	start := 0
	if strings.HasPrefix(name, ".") {
		start = 1
	}
	if i := strings.Index(name[start:], "."); i >= 0 {
		return name[:start+i]
	}
	return name
}

// SuffixChain returns everything after the stem, including the leading dot:
// "a.readability.html" -> ".readability.html".
func SuffixChain(name string) string {
	return strings.TrimPrefix(filepath.Base(name), Stem(name))
}

// suffixRank orders candidate primary paths within a stem group.
// Lower wins. Content-bearing files beat derived variants; derived variants
// beat posters, captions and metadata.
var suffixRank = map[string]int{
	// content
	".html": 10, ".htm": 10,
	".mp4": 10, ".mkv": 10, ".webm": 10, ".flv": 10, ".avi": 10, ".mov": 10, ".ogv": 10,
	".pdf": 10, ".epub": 10, ".zim": 10, ".mobi": 10,
	// derived page variants
	".readability.html": 50,
	".readability.json": 60,
	".readability.txt":  61,
	// video metadata
	".info.json": 60,
	// posters, captions, screenshots
	".png": 70, ".jpg": 70, ".jpeg": 70, ".webp": 70,
	".vtt": 70, ".srt": 70, ".en.vtt": 70, ".en.srt": 70,
}

const unknownSuffixRank = 90

func rankOf(name string) int {
	chain := strings.ToLower(SuffixChain(name))
	if r, ok := suffixRank[chain]; ok {
		return r
	}
	// Fall back to the last suffix so ".en-US.vtt" still ranks as a caption.
	if r, ok := suffixRank[strings.ToLower(filepath.Ext(name))]; ok {
		return r
	}
	return unknownSuffixRank
}

// PickPrimary chooses the primary path from sibling filenames sharing a
// stem. Ties are broken by shortest name, then lexicographically.
func PickPrimary(names []string) string {
	if len(names) == 0 {
		return ""
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Slice(sorted, func(i, j int) bool {
		ri, rj := rankOf(sorted[i]), rankOf(sorted[j])
		if ri != rj {
			return ri < rj
		}
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) < len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	return sorted[0]
}

// GroupByStem buckets filenames (relative, same directory) by stem.
func GroupByStem(names []string) map[string][]string {
	out := make(map[string][]string)
	for _, n := range names {
		s := Stem(n)
		out[s] = append(out[s], n)
	}
	return out
}
