/*
	Package snapshot persists project records between coordinator runs.

	The coordinator's only obligation to a store is a full replace on a
	fixed interval: every call to `Replace` supersedes everything written
	before it.  There are no incremental updates and no deletes; a
	project that's gone from the coordinator is simply absent from the
	next snapshot.
*/
package snapshot

import (
	"go.polydawn.net/cohort/def"
)

type Store interface {
	// Everything written by the last successful Replace.  A store never written to loads empty.
	Load() ([]def.ProjectRecord, error)

	// Wipe the store and write these records.  Errors are of class `def.StoreError`.
	Replace(records []def.ProjectRecord) error
}
