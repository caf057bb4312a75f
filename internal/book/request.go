package book

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the type of a loan request. It doubles as the broadcast topic.
type Kind string

const (
	Borrow Kind = "BORROW"
	Renew  Kind = "RENEW"
	Return Kind = "RETURN"
)

// Kinds lists every request kind.
var Kinds = []Kind{Borrow, Renew, Return}

// aliases maps the kind names used by older request files.
var aliases = map[string]Kind{
	"PRESTAMO":   Borrow,
	"RENOVACION": Renew,
	"DEVOLUCION": Return,
}

// ParseKind accepts a kind name case-insensitively, including legacy aliases.
func ParseKind(s string) (Kind, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, k := range Kinds {
		if string(k) == name {
			return k, nil
		}
	}
	if k, ok := aliases[name]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown request kind: %q", s)
}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if k == v {
			return true
		}
	}
	return false
}

// Request is a caller's loan request. ID is a correlation id stamped by the
// dispatcher; callers leave it empty.
type Request struct {
	Kind Kind   `json:"tipo"`
	ISBN string `json:"isbn"`
	User string `json:"usuario"`
	ID   string `json:"id,omitempty"`
}

// Validate checks that a request can be routed.
func (r Request) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("unknown request kind: %q", r.Kind)
	}
	if r.ISBN == "" {
		return fmt.Errorf("isbn cannot be empty")
	}
	if r.User == "" {
		return fmt.Errorf("user cannot be empty")
	}
	return nil
}

// Apply runs the lending rule for kind against rec in place and returns a
// human-readable outcome. rec is left unchanged when a rule rejects.
func Apply(kind Kind, rec *Record, user string, now time.Time) (string, error) {
	switch kind {
	case Borrow:
		if err := rec.Borrow(user, now); err != nil {
			return "", err
		}
		return "loan registered", nil
	case Renew:
		n, err := rec.Renew(user, now)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("renewal successful (%d)", n), nil
	case Return:
		if err := rec.Return(user); err != nil {
			return "", err
		}
		return "return successful", nil
	default:
		return "", fmt.Errorf("unknown request kind: %q", kind)
	}
}
