// Package idgen generates sortable, locally-unique identifiers for
// internal correlation purposes — log lines and trace attributes, never
// the UUID v4 message identifiers the wire protocol mandates.
package idgen

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewCorrelationID returns a time-sortable ULID string, suitable for
// tying together the log lines emitted while handling one command.
func NewCorrelationID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	ms := ulid.Timestamp(time.Now())
	id, err := ulid.New(ms, entropy)
	if err != nil {
		// ulid.New only fails if entropy misbehaves; math/rand never does.
		panic(err)
	}
	return id.String()
}
