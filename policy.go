package reqdb

import (
	"net/http"
	"strings"
)

// Mode is the kind of resource a request is given.
type Mode uint8

const (
	// Direct hands the request a plain pooled connection.
	Direct Mode = iota
	// Transactional hands the request an open transaction.
	Transactional
)

func (m Mode) String() string {
	switch m {
	case Direct:
		return "direct"
	case Transactional:
		return "transactional"
	}
	return "unknown"
}

// Policy decides the Mode for a request. Policies must be pure: they may
// look at the method, path or headers but must not keep state.
type Policy func(r *http.Request) Mode

// DefaultPolicy gives GET and HEAD requests a direct connection and every
// other method a transaction.
var DefaultPolicy Policy = MethodPolicy(http.MethodGet, http.MethodHead)

// MethodPolicy returns a Policy treating the listed methods as Direct and
// everything else as Transactional. Method names are case insensitive.
func MethodPolicy(direct ...string) Policy {
	set := make(map[string]struct{}, len(direct))
	for _, m := range direct {
		set[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
	}

	return func(r *http.Request) Mode {
		if _, ok := set[strings.ToUpper(r.Method)]; ok {
			return Direct
		}
		return Transactional
	}
}

// Decide applies p to r, falling back to DefaultPolicy when p is nil.
func Decide(p Policy, r *http.Request) Mode {
	if p == nil {
		return DefaultPolicy(r)
	}
	return p(r)
}

// Classifier reports whether a handler outcome counts as a success, which
// commits a transactional handle. status is 0 when the handler wrote nothing.
type Classifier func(status int, err error) bool

// DefaultClassifier commits unless the handler returned an error or
// responded with a 5xx status. Client errors (4xx) still commit.
func DefaultClassifier(status int, err error) bool {
	return err == nil && normalizeStatus(status) < http.StatusInternalServerError
}

// StrictClassifier also rolls back on 4xx responses.
func StrictClassifier(status int, err error) bool {
	return err == nil && normalizeStatus(status) < http.StatusBadRequest
}

func normalizeStatus(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}
