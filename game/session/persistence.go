package session

// SessionPersistence defines the interface for persisting session records
type SessionPersistence interface {
	// Save persists a record, replacing any previous version
	Save(rec *Record) error

	// Load retrieves a record from storage by session ID
	Load(id string) (*Record, error)

	// Delete removes a record from storage
	Delete(id string) error

	// ListAll returns all persisted session IDs
	ListAll() ([]string, error)

	// Exists checks if a record exists in storage
	Exists(id string) bool
}

// persistedRecord is the on-disk JSON layout
type persistedRecord struct {
	Version int `json:"version"`
	Record
}

const recordVersion = 1
