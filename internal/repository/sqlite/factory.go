package sqlite

import (
	"database/sql"

	"github.com/portalfile/portalfile/internal/repository"
)

// NewRepositories creates all SQLite repository implementations.
// The db parameter must be a valid, open database connection with the
// schema already applied.
func NewRepositories(db *sql.DB) (*repository.Repositories, error) {
	if db == nil {
		return nil, repository.ErrNilDatabase
	}

	return &repository.Repositories{
		Sessions:     NewUploadSessionRepository(db),
		Users:        NewUserRepository(db),
		Provisioning: NewProvisioningStore(db),
		Locks:        NewLockRepository(db),
	}, nil
}
