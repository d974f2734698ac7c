package postgres

import (
	"github.com/portalfile/portalfile/internal/repository"
)

// NewRepositories creates all PostgreSQL-backed repositories sharing one pool.
func NewRepositories(pool *Pool) *repository.Repositories {
	return &repository.Repositories{
		Sessions:     NewUploadSessionRepository(pool),
		Users:        NewUserRepository(pool),
		Provisioning: NewProvisioningStore(pool),
		Locks:        NewLockRepository(pool),
	}
}
