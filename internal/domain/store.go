package domain

import "context"

// Repositories groups the repositories bound to one executor: either the
// connection pool or a single open database transaction.
type Repositories interface {
	Account() AccountRepository
	Transaction() TransactionRepository
	Outbox() OutboxRepository
	Client() ClientRepository
}

// Store is the unit of work. Repositories handed to fn share one database
// transaction, committed when fn returns nil and rolled back otherwise.
type Store interface {
	Repositories
	WithTransaction(ctx context.Context, fn func(Repositories) error) error
}
