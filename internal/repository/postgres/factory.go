package postgres

import (
	"errors"
	"fmt"

	repo "github.com/kazuya8222/embld-revenue/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repositories struct {
	Users        repo.Users
	Transactions repo.Transactions
	Payouts      repo.Payouts
	Analytics    repo.Analytics
	AuditLogs    repo.AuditLogs
}

func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Users:        &usersRepo{pool},
		Transactions: &transactionsRepo{pool},
		Payouts:      &payoutsRepo{pool},
		Analytics:    &analyticsRepo{pool},
		AuditLogs:    &auditLogsRepo{pool},
	}
}

const uniqueViolation = "23505"

// translate maps driver errors onto the repository sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repo.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", repo.ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
