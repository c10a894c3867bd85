// Package ids issues the ULID keys shared by every stored record.
package ids

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a ULID; IDs from one process sort in creation order.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}

// Valid reports whether id parses as a ULID.
func Valid(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

