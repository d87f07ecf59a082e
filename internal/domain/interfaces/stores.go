package interfaces

import (
	"context"

	domaintypes "sealpost/internal/domain/types"
)

// DocumentStore persists encrypted documents.
type DocumentStore interface {
	// Put creates or replaces a document. An empty ID is assigned.
	Put(ctx context.Context, doc domaintypes.Document) (domaintypes.Document, error)
	Get(ctx context.Context, id string) (domaintypes.Document, bool, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, docType string) ([]domaintypes.Document, error)
}

// StoreSession is a user's open encrypted store, synchronized with the provider.
type StoreSession interface {
	DocumentStore
	Sync(ctx context.Context, opts domaintypes.SyncOptions) error
	Close() error
}
