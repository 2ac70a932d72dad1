package storage

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// documentExt is the extension of every stored object.
const documentExt = ".pdf"

// KeyConfig holds configuration for object key generation.
type KeyConfig struct {
	// Prefix is prepended to every key (e.g., "prod/").
	Prefix string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// ObjectKey generates the key for a new object.
//
// Example:
//
//	prefix: "prod/", org: "org-1", document: "c-42", kind: "daily"
//	result: "prod/contracts/org-1/c-42/daily-1767225600000000000.pdf"
func (c KeyConfig) ObjectKey(organizationID, documentID, kind string) string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return fmt.Sprintf("%s%s-%d%s",
		c.DocumentPrefix(organizationID, documentID),
		encodeSegment(kind), uniqueNanos(now()), documentExt)
}

// OrganizationPrefix returns the key prefix shared by all objects of an organization.
func (c KeyConfig) OrganizationPrefix(organizationID string) string {
	return c.Prefix + "contracts/" + encodeSegment(organizationID) + "/"
}

// DocumentPrefix returns the key prefix shared by all objects of a document.
func (c KeyConfig) DocumentPrefix(organizationID, documentID string) string {
	return c.OrganizationPrefix(organizationID) + encodeSegment(documentID) + "/"
}

// ObjectKeyParts is the parsed form of an object key.
type ObjectKeyParts struct {
	OrganizationID string
	DocumentID     string
	Kind           string
	CreatedAt      time.Time
}

// ParseObjectKey inverts ObjectKey. Keys not produced by ObjectKey return false.
func (c KeyConfig) ParseObjectKey(key string) (ObjectKeyParts, bool) {
	rest, ok := strings.CutPrefix(key, c.Prefix+"contracts/")
	if !ok {
		return ObjectKeyParts{}, false
	}
	segments := strings.Split(rest, "/")
	if len(segments) != 3 || segments[0] == "" || segments[1] == "" {
		return ObjectKeyParts{}, false
	}

	name, ok := strings.CutSuffix(segments[2], documentExt)
	if !ok {
		return ObjectKeyParts{}, false
	}
	idx := strings.LastIndex(name, "-")
	if idx <= 0 {
		return ObjectKeyParts{}, false
	}
	nanos, err := strconv.ParseInt(name[idx+1:], 10, 64)
	if err != nil {
		return ObjectKeyParts{}, false
	}

	org, ok1 := decodeSegment(segments[0])
	doc, ok2 := decodeSegment(segments[1])
	kind, ok3 := decodeSegment(name[:idx])
	if !ok1 || !ok2 || !ok3 {
		return ObjectKeyParts{}, false
	}

	return ObjectKeyParts{
		OrganizationID: org,
		DocumentID:     doc,
		Kind:           kind,
		CreatedAt:      time.Unix(0, nanos).UTC(),
	}, true
}

// lastNanos is the most recent timestamp handed out by uniqueNanos.
var lastNanos atomic.Int64

// uniqueNanos returns t in nanoseconds, bumped past any value already issued
// in this process so two uploads never share a name.
func uniqueNanos(t time.Time) int64 {
	for {
		n := t.UnixNano()
		last := lastNanos.Load()
		if n <= last {
			n = last + 1
		}
		if lastNanos.CompareAndSwap(last, n) {
			return n
		}
	}
}

// encodeSegment escapes s into a single key segment, one-to-one.
// [A-Za-z0-9._-] pass through and every other byte becomes %XX. The dot
// segments are escaped whole and the empty string is written as "%".
func encodeSegment(s string) string {
	switch s {
	case "":
		return "%"
	case ".", "..":
		return strings.Repeat("%2E", len(s))
	}

	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0F])
		}
	}
	return b.String()
}

// decodeSegment inverts encodeSegment.
func decodeSegment(s string) (string, bool) {
	if s == "%" {
		return "", true
	}
	out, err := url.PathUnescape(s)
	if err != nil {
		return "", false
	}
	return out, true
}
