package ingest

// Status is the processing outcome of a single ingested item.
type Status string

// Item status values.
const (
	StatusInserted Status = "inserted"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Outcome is the result of processing one item of an ingestion run.
type Outcome struct {
	id      string
	status  Status
	storeID string
	err     error
}

// NewInserted creates an outcome for a stored record.
func NewInserted(id, storeID string) Outcome {
	return Outcome{id: id, status: StatusInserted, storeID: storeID}
}

// NewSkipped creates an outcome for an item that was deliberately not stored.
func NewSkipped(id string, reason error) Outcome {
	return Outcome{id: id, status: StatusSkipped, err: reason}
}

// NewFailed creates an outcome for an item whose storage failed.
func NewFailed(id string, err error) Outcome {
	return Outcome{id: id, status: StatusFailed, err: err}
}

// ID returns the item identifier as supplied by the caller.
func (o Outcome) ID() string { return o.id }

// Status returns the processing outcome.
func (o Outcome) Status() Status { return o.status }

// StoreID returns the identifier the feature store assigned (inserted only).
func (o Outcome) StoreID() string { return o.storeID }

// Err returns the skip reason or failure, if any.
func (o Outcome) Err() error { return o.err }

// Reason returns a human readable skip or failure reason.
func (o Outcome) Reason() string {
	if o.err == nil {
		return ""
	}
	return o.err.Error()
}
