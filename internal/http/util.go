package httpx

import (
	"net/url"
	"strconv"
)

// Page is a limit/offset window over an admin listing.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// PageFromQuery reads limit and offset, ignoring unparsable values. Limit is kept
// within [1, maxLimit] and offset is never negative.
func PageFromQuery(q url.Values, defLimit, maxLimit int) Page {
	p := Page{Limit: defLimit}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil {
		p.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		p.Offset = n
	}
	p.Limit = min(max(p.Limit, 1), max(maxLimit, 1))
	return p
}
