// Package outbox implements the transactional Outbox Store and the Outbox
// Dispatcher that bridges it to the substrate (spec.md §4.2, §4.3).
package outbox

import "time"

// Status is the lifecycle state of an outbox row. Monotonic: PENDING may
// move to PUBLISHED or FAILED; neither of those ever transitions again.
type Status string

const (
	Pending   Status = "PENDING"
	Published Status = "PUBLISHED"
	Failed    Status = "FAILED"
)

// Event is a persisted row of intent to publish.
type Event struct {
	ID          string // 128-bit id (UUID), also used as the substrate message-id
	Subject     string
	Payload     []byte // opaque JSON body
	Headers     map[string]string
	Status      Status
	RetryCount  int
	CreatedAt   time.Time
	PublishedAt *time.Time
}
