package feed

import (
	"net/url"
	"sort"
	"strings"
)

// volatileParams are query parameters that vary between requests for the
// same logical resource (signed URL expiry, CDN tokens, analytics tags) and
// must not contribute to resource identity.
var volatileParams = map[string]struct{}{
	"expires":      {},
	"signature":    {},
	"token":        {},
	"x-request-id": {},
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
}

// Key derives the canonical resource key for a media URL.
// The same logical resource always maps to the same key: scheme and host are
// lowercased, default ports and fragments are stripped, and volatile query
// parameters are removed with the remainder sorted.
// Unparseable input is returned verbatim so it still works as an opaque key.
func Key(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	query := u.Query()
	kept := url.Values{}
	for name, values := range query {
		if _, volatile := volatileParams[strings.ToLower(name)]; volatile {
			continue
		}
		kept[name] = values
	}

	names := make([]string, 0, len(kept))
	for name := range kept {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		for _, value := range kept[name] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(name))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(value))
		}
	}
	u.RawQuery = b.String()

	return u.String()
}
