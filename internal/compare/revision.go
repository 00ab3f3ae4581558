package compare

import (
	"fmt"
	"strconv"
	"strings"
)

// RevisionKind selects how a Revision is interpreted
type RevisionKind int

const (
	RevUnspecified RevisionKind = iota
	RevNumber
	RevHead
	RevBase
	RevWorking
)

// Revision is either a revision number or one of the symbolic revisions
type Revision struct {
	Kind   RevisionKind
	Number int64
}

var (
	Head    = Revision{Kind: RevHead}
	Base    = Revision{Kind: RevBase}
	Working = Revision{Kind: RevWorking}
)

// Rev returns a numbered revision
func Rev(n int64) Revision {
	return Revision{Kind: RevNumber, Number: n}
}

// IsNumber returns true for a valid numbered revision
func (r Revision) IsNumber() bool {
	return r.Kind == RevNumber && r.Number >= 0
}

func (r Revision) String() string {
	switch r.Kind {
	case RevNumber:
		return strconv.FormatInt(r.Number, 10)
	case RevHead:
		return "HEAD"
	case RevBase:
		return "BASE"
	case RevWorking:
		return "WORKING"
	default:
		return ""
	}
}

func (r Revision) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Revision) UnmarshalText(text []byte) error {
	rev, err := ParseRevision(string(text))
	if err != nil {
		return err
	}
	*r = rev
	return nil
}

// ParseRevision parses HEAD, BASE, WORKING, a number or an r-prefixed number.
// An empty string yields an unspecified revision.
func ParseRevision(s string) (Revision, error) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "":
		return Revision{}, nil
	case "HEAD":
		return Head, nil
	case "BASE":
		return Base, nil
	case "WORKING":
		return Working, nil
	}

	n, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(s), "r"), 10, 64)
	if err != nil || n < 0 {
		return Revision{}, fmt.Errorf("invalid revision %q", s)
	}
	return Rev(n), nil
}

// Ref is a repository (or working copy) location with its peg and operative revision.
// The repository backend resolves Location at the operative revision and does
// not trace history through the peg, so a location that was renamed (deleted
// and copied) between the peg and the operative revision is not followed.
type Ref struct {
	Location string   `json:"location" yaml:"location"`
	Peg      Revision `json:"peg" yaml:"peg"`
	Revision Revision `json:"revision" yaml:"revision"`
}

// Valid returns false for the invalid ancestor marker
func (r Ref) Valid() bool {
	return r.Location != ""
}

func (r Ref) String() string {
	if !r.Valid() {
		return "<invalid>"
	}
	s := r.Location
	if r.Peg.Kind != RevUnspecified {
		s += "@" + r.Peg.String()
	}
	if r.Revision != r.Peg && r.Revision.Kind != RevUnspecified {
		s += " -r " + r.Revision.String()
	}
	return s
}
