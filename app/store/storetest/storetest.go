// Package storetest opens throwaway record stores for tests.
package storetest

import (
	"path/filepath"
	"testing"

	"pctasks/app/config"
	"pctasks/app/db"
	"pctasks/app/store"
)

// New returns migrated containers over a sqlite file in t.TempDir(). The
// connection is closed when the test ends.
func New(t testing.TB) *store.Containers {
	t.Helper()
	conn, err := db.Open(config.RecordStoreConfig{
		Connection: "sqlite://" + filepath.Join(t.TempDir(), "records.db"),
	})
	if err != nil {
		t.Fatalf("open record store: %s", err)
	}
	t.Cleanup(func() { db.Close(conn) })
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate record store: %s", err)
	}
	return store.NewContainers(store.New(conn))
}
