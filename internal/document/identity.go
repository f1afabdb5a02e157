// Package document defines the identity of virtual process documents.
//
// An Identity is keyed by scheme and authority (the process ID). The command
// that produced the document travels alongside as an opaque Label: it is only
// ever displayed, never parsed as a path.
package document

import (
	"fmt"
	"strings"
)

// Scheme is the fixed scheme of every process-backed document.
const Scheme = "process"

// Identity names a virtual document.
type Identity struct {
	Scheme    string
	Authority string
	Label     string
}

// New returns the identity of the document showing processID's output.
func New(processID, command string) Identity {
	return Identity{
		Scheme:    Scheme,
		Authority: processID,
		Label:     command,
	}
}

// String returns the canonical encoding used for identity comparison,
// e.g. "process://1". The label is not part of it.
func (i Identity) String() string {
	return i.Scheme + "://" + i.Authority
}

// URI renders scheme, authority and label as "process://1/echo hi" for display.
// The result is not guaranteed to round-trip through Parse when the label
// contains characters that need escaping.
func (i Identity) URI() string {
	return i.String() + "/" + i.Label
}

// Title is the human-facing name of the document.
func (i Identity) Title() string {
	if i.Label == "" {
		return i.String()
	}
	return i.Label
}

// IsProcess reports whether the identity uses the process scheme.
func (i Identity) IsProcess() bool {
	return i.Scheme == Scheme
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.Scheme == "" && i.Authority == ""
}

// Equal compares canonical encodings.
func (i Identity) Equal(other Identity) bool {
	return i.String() == other.String()
}

// Parse decodes "scheme://authority[/label]". Everything after the first "/"
// following the authority is taken verbatim as the label.
func Parse(s string) (Identity, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok || scheme == "" {
		return Identity{}, fmt.Errorf("document identity %q: missing scheme", s)
	}
	authority, label, _ := strings.Cut(rest, "/")
	if authority == "" {
		return Identity{}, fmt.Errorf("document identity %q: missing authority", s)
	}
	return Identity{Scheme: scheme, Authority: authority, Label: label}, nil
}
