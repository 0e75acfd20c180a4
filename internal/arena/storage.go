package arena

import (
	"fmt"
	"os"

	"rankmine/internal/infra/persistence/memory"
	"rankmine/internal/infra/persistence/postgres"
	"rankmine/internal/infra/persistence/sqlite"
	"rankmine/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	RANKMINE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	RANKMINE_SQLITE_PATH: path to sqlite file (default ./rankmine.db)
//	RANKMINE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore() (domain.PersistentStore, error) {
	driver := os.Getenv("RANKMINE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("RANKMINE_SQLITE_PATH"))
	case StoragePostgres:
		return postgres.NewStore(os.Getenv("RANKMINE_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
