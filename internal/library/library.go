package library

import (
	"strconv"
	"strings"
)

// Kind of content a library section holds.
type Kind string

const (
	KindMovies Kind = "movies"
	KindShows  Kind = "shows"
	KindOther  Kind = "other"
)

// Section is one library on a media server.
type Section struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Kind  Kind   `json:"kind"`
}

// ShowRef identifies a show inside a library. Key is the server's own item
// id; ID is the TVDB id, zero when the server has none.
type ShowRef struct {
	Key   string `json:"key"`
	ID    int64  `json:"tvdb_id"`
	Title string `json:"title"`
}

// Match returns the section whose key or title (case-insensitive) equals name.
func Match(sections []Section, name string) (Section, bool) {
	name = strings.TrimSpace(name)
	for _, s := range sections {
		if s.Key == name {
			return s, true
		}
	}
	for _, s := range sections {
		if strings.EqualFold(s.Title, name) {
			return s, true
		}
	}
	return Section{}, false
}

// ParseID reads a positive numeric provider id. Anything else gives zero.
func ParseID(value string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}
