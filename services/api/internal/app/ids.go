package app

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const orderReferencePrefix = "ORD-"

func newUUID() string {
	return uuid.NewString()
}

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

// newULID returns a lexicographically sortable id; ids minted in the same
// millisecond still sort in creation order.
func newULID(t time.Time) string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), ulidEntropy).String()
}

func newOrderReference(t time.Time) string {
	return orderReferencePrefix + newULID(t)
}
