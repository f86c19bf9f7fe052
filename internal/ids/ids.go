// Package ids issues sortable identifiers for stored auth entities.
package ids

import (
	"errors"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind prefixes an identifier with the entity it names.
type Kind string

const (
	User       Kind = "usr"
	Credential Kind = "crd"
	Role       Kind = "rol"
)

const sep = "_"

var ErrMalformed = errors.New("ids: malformed identifier")

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns "<kind>_<ulid>" stamped with the current time.
func New(kind Kind) string {
	return NewAt(kind, time.Now())
}

// NewAt returns an identifier stamped with t. Identifiers of one kind sort by t.
func NewAt(kind Kind, t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return string(kind) + sep + ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Parse splits id into its kind and ULID.
func Parse(id string) (Kind, ulid.ULID, error) {
	kind, raw, ok := strings.Cut(id, sep)
	if !ok || kind == "" {
		return "", ulid.ULID{}, ErrMalformed
	}
	u, err := ulid.ParseStrict(raw)
	if err != nil {
		return "", ulid.ULID{}, errors.Join(ErrMalformed, err)
	}
	return Kind(kind), u, nil
}

// Time returns the creation time embedded in id, with millisecond precision.
func Time(id string) (time.Time, error) {
	_, u, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()).UTC(), nil
}
