package episodefile

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// maxRangeSpan bounds S01E01-NN expansion. A wider span almost always means
// the trailing number is something else, such as a resolution.
const maxRangeSpan = 50

var (
	// S02E01E02, S02E01-E02, S02E01.E02.E03
	multiPattern = regexp.MustCompile(`(?i)s(\d{1,3})((?:[ ._-]?e\d{1,4}){2,})`)
	// S02E01-02
	rangePattern = regexp.MustCompile(`(?i)s(\d{1,3})e(\d{1,4})-(\d{1,4})(?:[^0-9a-z]|$)`)
	// S02E05
	singlePattern = regexp.MustCompile(`(?i)s(\d{1,3})e(\d{1,4})`)

	episodeTokenPattern = regexp.MustCompile(`(?i)e(\d{1,4})`)
)

// ID identifies one canonical episode.
type ID struct {
	Season  int `json:"season"`
	Episode int `json:"episode"`
}

// Label renders id as S02E01.
func Label(id ID) string {
	return fmt.Sprintf("S%02dE%02d", id.Season, id.Episode)
}

func (id ID) String() string { return Label(id) }

// Resolve expands the file reference into the episodes it contains. Only the
// base name is inspected. When no season/episode token is present the
// metadata pair is returned, so the result is never empty.
func Resolve(fileRef string, season, episode int) []ID {
	name := baseName(fileRef)

	if ids := matchMulti(name); len(ids) > 0 {
		return normalize(ids)
	}
	if ids := matchRange(name); len(ids) > 0 {
		return ids
	}
	if m := singlePattern.FindStringSubmatch(name); m != nil {
		return []ID{{Season: atoi(m[1]), Episode: atoi(m[2])}}
	}
	return []ID{{Season: season, Episode: episode}}
}

func matchMulti(name string) []ID {
	m := multiPattern.FindStringSubmatch(name)
	if m == nil {
		return nil
	}
	season := atoi(m[1])
	tokens := episodeTokenPattern.FindAllStringSubmatch(m[2], -1)
	ids := make([]ID, 0, len(tokens))
	for _, token := range tokens {
		ids = append(ids, ID{Season: season, Episode: atoi(token[1])})
	}
	return ids
}

func matchRange(name string) []ID {
	m := rangePattern.FindStringSubmatch(name)
	if m == nil {
		return nil
	}
	season, first, last := atoi(m[1]), atoi(m[2]), atoi(m[3])
	if last <= first || last-first > maxRangeSpan {
		return nil
	}
	ids := make([]ID, 0, last-first+1)
	for ep := first; ep <= last; ep++ {
		ids = append(ids, ID{Season: season, Episode: ep})
	}
	return ids
}

func normalize(ids []ID) []ID {
	slices.SortFunc(ids, func(a, b ID) int {
		if a.Season != b.Season {
			return a.Season - b.Season
		}
		return a.Episode - b.Episode
	})
	return slices.Compact(ids)
}

func baseName(ref string) string {
	ref = strings.TrimSpace(ref)
	if idx := strings.LastIndexAny(ref, `/\`); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
