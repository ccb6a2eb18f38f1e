package registry

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRegistry stores deployments in PostgreSQL.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn (a postgres:// URL), applies pending schema
// migrations and returns the registry.
func NewPostgres(ctx context.Context, dsn string) (*PostgresRegistry, error) {
	if err := RunMigrations(dsn); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRegistry{pool: pool}, nil
}

// RunMigrations applies all pending schema migrations.
func RunMigrations(dsn string) error {
	// Create source from embedded filesystem
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migrations source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

const deploymentColumns = `id, run_id, network, chain_id, step, contract, address,
	tx_hash, block_number, deployer, args, created_at`

func (r *PostgresRegistry) Record(ctx context.Context, d *Deployment) error {
	if err := prepare(d); err != nil {
		return err
	}

	args := d.Args
	if args == nil {
		args = []string{}
	}

	query := `INSERT INTO deployments (` + deploymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.RunID, d.Network, d.ChainID, d.Step, d.Contract, d.Address,
		d.TxHash, d.BlockNumber, d.Deployer, args, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Latest(ctx context.Context, network, contract string) (*Deployment, error) {
	query := `SELECT ` + deploymentColumns + `
		FROM deployments
		WHERE network = $1 AND contract = $2
		ORDER BY id DESC
		LIMIT 1`

	d, err := scanDeployment(r.pool.QueryRow(ctx, query, strings.ToLower(network), contract))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotFound, contract, network)
	}
	if err != nil {
		return nil, fmt.Errorf("query latest deployment: %w", err)
	}
	return d, nil
}

func (r *PostgresRegistry) List(ctx context.Context, f Filter) ([]*Deployment, error) {
	query := `SELECT ` + deploymentColumns + `
		FROM deployments
		WHERE ($1 = '' OR network = $1) AND ($2 = '' OR contract = $2)
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, strings.ToLower(f.Network), f.Contract)
	if err != nil {
		return nil, fmt.Errorf("query deployments: %w", err)
	}
	defer rows.Close()

	var out []*Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployments: %w", err)
	}
	return out, nil
}

func (r *PostgresRegistry) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func scanDeployment(row pgx.Row) (*Deployment, error) {
	var d Deployment
	err := row.Scan(
		&d.ID,
		&d.RunID,
		&d.Network,
		&d.ChainID,
		&d.Step,
		&d.Contract,
		&d.Address,
		&d.TxHash,
		&d.BlockNumber,
		&d.Deployer,
		&d.Args,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

var _ Registry = (*PostgresRegistry)(nil)
