package logging

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

const redacted = "[redacted]"

// credentialKeys are attribute keys and query parameters whose values never
// reach a log file.
var credentialKeys = map[string]struct{}{
	"api_key":      {},
	"apikey":       {},
	"token":        {},
	"x-plex-token": {},
	"pin":          {},
	"password":     {},
}

func isCredentialKey(key string) bool {
	_, ok := credentialKeys[strings.ToLower(key)]
	return ok
}

// redactURL masks credential query parameters in a logged URL. Values that
// do not parse as URLs are returned unchanged.
func redactURL(raw string) string {
	if !strings.Contains(raw, "?") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	query := u.Query()
	changed := false
	for key := range query {
		if isCredentialKey(key) {
			query.Set(key, redacted)
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = query.Encode()
	return u.String()
}

func redactAttr(attr slog.Attr) slog.Attr {
	if isCredentialKey(attr.Key) {
		return slog.String(attr.Key, redacted)
	}
	if attr.Key == "url" && attr.Value.Kind() == slog.KindString {
		attr.Value = slog.StringValue(redactURL(attr.Value.String()))
	}
	return attr
}

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	opts := slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339Nano))
				}
				return attr
			case slog.LevelKey:
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
				return attr
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
				return attr
			}
			return redactAttr(attr)
		},
	}
	return slog.NewJSONHandler(w, &opts)
}
