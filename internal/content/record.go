package content

import (
	"errors"
	"strings"
	"time"
)

// ErrDuplicateCode is returned when a record with the same code already
// exists, deleted or not.
var ErrDuplicateCode = errors.New("content code already exists")

type PayloadKind string

const (
	KindPhoto     PayloadKind = "photo"
	KindVideo     PayloadKind = "video"
	KindDocument  PayloadKind = "document"
	KindAnimation PayloadKind = "animation"
)

// Valid reports whether k is a kind a stored record may carry.
func (k PayloadKind) Valid() bool {
	switch k {
	case KindPhoto, KindVideo, KindDocument:
		return true
	}
	return false
}

type Record struct {
	Code        string
	Title       string
	Category    string
	Description string
	PayloadRef  string
	PayloadKind PayloadKind
	IsDeleted   bool
	CreatedAt   time.Time
}

// NewRecord builds a record for a freshly parsed caption.
func NewRecord(f Fragment, payloadRef string, kind PayloadKind) Record {
	return Record{
		Code:        f.Code,
		Title:       f.Title,
		Category:    f.Category,
		Description: f.Description,
		PayloadRef:  payloadRef,
		PayloadKind: kind,
	}
}

const unknownCategory = "Unknown"

// Caption renders the text shown under the asset when a record is sent.
func (r Record) Caption() string {
	cat := r.Category
	if cat == "" {
		cat = unknownCategory
	}
	var b strings.Builder
	b.WriteString("🎬 " + r.Title + "\n")
	b.WriteString("🏷 " + cat + "\n")
	b.WriteString(r.Description)
	return strings.TrimRight(b.String(), "\n")
}

// NormalizeCode accepts "12" or "#12" (surrounding spaces allowed) and
// returns the bare digits.
func NormalizeCode(s string) (string, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if s == "" {
		return "", false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", false
		}
	}
	return s, true
}
