package ports

import (
	"context"

	"fieldtrial/domain/core"
)

// Collection names used by the repositories
const (
	CollectionStudies     = "studies"
	CollectionPlots       = "plots"
	CollectionVariables   = "measured_variables"
	CollectionInstruments = "instruments"
)

// DocumentStore is a JSON document database. Field paths are dotted; arrays met while
// walking a path are traversed element by element, the way MongoDB does.
type DocumentStore interface {
	// FindDistinct returns the unique values found at fieldPath across the documents
	// of collection matching filter
	FindDistinct(ctx context.Context, collection, fieldPath string, filter core.Filter) ([]any, error)

	// FindByID returns the document with the given _id or an error wrapping core.ErrNotFound
	FindByID(ctx context.Context, collection string, id core.ID) (core.Document, error)

	// Find returns every document matching filter
	Find(ctx context.Context, collection string, filter core.Filter) ([]core.Document, error)

	// Save writes doc. The document matching upsert is replaced; when nothing matches
	// doc is inserted. A nil upsert selects by the document's _id.
	Save(ctx context.Context, collection string, doc core.Document, upsert core.Filter) error

	// Close releases the underlying connection
	Close() error
}
