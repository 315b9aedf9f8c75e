// Package advisor holds the closed catalogue of advisors, their persona
// profiles and the per-turn selection policy.
package advisor

import (
	"errors"
	"fmt"
	"strings"
)

// ID identifies an advisor. The set is closed: ordinary advisors plus the
// distinguished Arbiter and Vision advisors.
type ID uint8

const (
	// Zhuge plans the overall strategy.
	Zhuge ID = iota + 1
	// Dingzui supplies cutting comebacks.
	Dingzui
	// Fali issues legal-style warnings.
	Fali
	// Arbiter runs last each ordinary turn and fuses peer output into one line.
	Arbiter
	// Vision answers turns that carry an image attachment.
	Vision

	idCount = int(Vision) + 1
)

// ErrUnknownID indicates a token that does not name an advisor.
var ErrUnknownID = errors.New("unknown advisor id")

var idNames = [idCount]string{
	Zhuge:   "ZHUGE",
	Dingzui: "DINGZUI",
	Fali:    "FALI",
	Arbiter: "ARBITER",
	Vision:  "VISION",
}

func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("ID(%d)", uint8(id))
	}
	return idNames[id]
}

// Valid reports whether id belongs to the closed set.
func (id ID) Valid() bool {
	return id >= Zhuge && id <= Vision
}

// IsOrdinary reports whether id may be chosen by the selector.
func (id ID) IsOrdinary() bool {
	return id >= Zhuge && id <= Fali
}

// ParseID resolves a token such as "dingzui" to an ID.
func ParseID(s string) (ID, error) {
	token := strings.ToUpper(strings.TrimSpace(s))
	for id := Zhuge; id <= Vision; id++ {
		if idNames[id] == token {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownID, s)
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownID, uint8(id))
	}
	return []byte(idNames[id]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// All returns every advisor id in declaration order.
func All() []ID {
	return []ID{Zhuge, Dingzui, Fali, Arbiter, Vision}
}

// Ordinary returns the ids the selector may choose from.
func Ordinary() []ID {
	return []ID{Zhuge, Dingzui, Fali}
}
