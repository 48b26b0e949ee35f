package archive

import (
	"fmt"
	"path"
	"strings"

	"github.com/LabyrinthianWebsite/fantastic-waddle/media"
)

// InferredSet is a group of archive files that becomes one Set
type InferredSet struct {
	Name  string
	Files []Entry
}

// Structure is the result of InferSets: sets in order of first appearance
// and the non-fatal problems found along the way.
type Structure struct {
	Sets   []InferredSet
	Errors []string
}

// FileCount returns the number of files across all sets
func (s Structure) FileCount() int {
	n := 0
	for _, set := range s.Sets {
		n += len(set.Files)
	}
	return n
}

// isNoise reports OS metadata that zip tools sprinkle into archives
func isNoise(segments []string) bool {
	for _, seg := range segments {
		if seg == "__MACOSX" || strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// pathSegments splits p on "/" and drops empty or blank segments, so
// "a//b.jpg" and "a/ /b.jpg" both mean "a/b.jpg"
func pathSegments(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		out = append(out, seg)
	}
	return out
}

// InferSets groups file entries into sets. A file directly under one folder
// belongs to the set named by that folder; with two or more folders the
// first is treated as a wrapper and the second names the set. The rule is
// applied per file.
func InferSets(entries []Entry) Structure {
	var st Structure
	index := make(map[string]int)

	for _, e := range entries {
		if e.IsDir {
			continue
		}
		p := strings.Trim(e.Path, "/")
		if err := CheckPath(p); err != nil {
			st.Errors = append(st.Errors, fmt.Sprintf("%s: unsafe path", e.Path))
			continue
		}

		segments := pathSegments(p)
		if isNoise(segments) {
			continue
		}
		if len(segments) < 2 {
			st.Errors = append(st.Errors, fmt.Sprintf("%s: not in a set folder", e.Path))
			continue
		}

		name := strings.TrimSpace(segments[0])
		if len(segments) >= 3 {
			name = strings.TrimSpace(segments[1])
		}

		if !media.IsSupportedFile(path.Base(p)) {
			st.Errors = append(st.Errors, fmt.Sprintf("%s: unsupported file type", e.Path))
			continue
		}

		i, ok := index[name]
		if !ok {
			i = len(st.Sets)
			index[name] = i
			st.Sets = append(st.Sets, InferredSet{Name: name})
		}
		st.Sets[i].Files = append(st.Sets[i].Files, e)
	}

	return st
}
