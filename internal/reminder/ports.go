package reminder

import (
	"context"
	"time"
)

// Store is the durable id -> Record mapping.
type Store interface {
	// Insert stores a new record with Version 1 and returns it.
	Insert(ctx context.Context, r Record) (Record, error)
	// Find returns the record with id. A non-empty ownerID restricts the lookup to records
	// owned by that user; a mismatch is reported as ErrRecordNotFound.
	Find(ctx context.Context, id, ownerID string) (Record, error)
	// Update replaces the record if r.Version matches the stored version and returns the
	// stored record with the bumped version. ErrVersionConflict otherwise.
	Update(ctx context.Context, r Record) (Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Record, error)
}

// Sink delivers a fired reminder.
type Sink interface {
	Deliver(ctx context.Context, destination, text string, actions []Action) error
}

// TimeParser resolves a time phrase against a reference instant.
type TimeParser interface {
	Parse(raw string, ref time.Time) (time.Time, error)
}
