// Package registry is the typed accessor over the proxy-link registry.
package registry

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payload-protocol/paygate"
)

// ErrConflict is returned by Create when the identifier is already taken.
var ErrConflict = errors.New("identifier already exists")

// Store reads and writes proxy-link entries in Postgres. The pool is shared
// for the process lifetime and safe for concurrent use.
type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

var _ paygate.Registry = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS proxy_links (
	identifier    TEXT PRIMARY KEY,
	target_url    TEXT NOT NULL,
	price         NUMERIC NOT NULL CHECK (price >= 0),
	owner_address TEXT NOT NULL,
	active        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Init creates the registry table if it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, schema)
	return err
}

// FindActive returns the active entry for identifier, or nil when the
// identifier was never registered or has been deactivated. The match is
// exact and case-sensitive.
func (s *Store) FindActive(ctx context.Context, identifier string) (*paygate.Entry, error) {
	var e paygate.Entry
	err := s.DB.QueryRow(ctx, `
SELECT identifier, target_url, price, owner_address, active, created_at
FROM proxy_links
WHERE identifier = $1 AND active = TRUE
`, identifier).Scan(&e.Identifier, &e.TargetURL, &e.Price, &e.OwnerAddress, &e.Active, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// Create inserts a new entry, normalizing the owner address to lowercase.
// Identifier uniqueness is enforced by the primary key; a duplicate yields
// ErrConflict so the caller can retry with a fresh identifier.
func (s *Store) Create(ctx context.Context, e paygate.Entry) (*paygate.Entry, error) {
	e.OwnerAddress = strings.ToLower(strings.TrimSpace(e.OwnerAddress))
	err := s.DB.QueryRow(ctx, `
INSERT INTO proxy_links(identifier, target_url, price, owner_address)
VALUES($1, $2, $3, $4)
RETURNING active, created_at
`, e.Identifier, e.TargetURL, e.Price, e.OwnerAddress).Scan(&e.Active, &e.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrConflict
		}
		return nil, err
	}
	return &e, nil
}
