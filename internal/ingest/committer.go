package ingest

import (
	"context"
	"errors"

	"github.com/JonMunkholm/certimport/internal/credential"
)

// commit writes the batch in one unordered insert-many and reconciles the
// result. There are no retries: a conflict here means another writer won the
// race for that identifier.
func commit(ctx context.Context, store Store, uploadID string, records []credential.Record) Outcome {
	inserted, err := store.InsertMany(ctx, uploadID, records)
	return reconcile(inserted, err)
}

// reconcile maps an insert-many result onto an outcome.
func reconcile(inserted int, err error) Outcome {
	if err == nil {
		return Committed(inserted)
	}

	var bulk *credential.BulkWriteError
	if errors.As(err, &bulk) && len(bulk.Conflicts) > 0 {
		if bulk.Inserted > 0 {
			return PartialCommit(bulk.Inserted, bulk.Conflicts)
		}
		return DuplicateInStore(bulk.Conflicts)
	}

	return ServerError(FailDatabase, err)
}
