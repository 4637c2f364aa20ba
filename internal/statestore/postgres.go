package statestore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// postgresSchema is the table this backend assumes exists, documented here
// rather than applied by the package: migrations are an operational
// concern, not something a library should run at startup.
//
//	CREATE TABLE urls (
//		url_hash           TEXT PRIMARY KEY,
//		url                TEXT NOT NULL,
//		domain             TEXT NOT NULL,
//		state              TEXT NOT NULL,
//		lease_holder       TEXT,
//		lease_acquired_at  TIMESTAMPTZ,
//		lease_expires_at   TIMESTAMPTZ,
//		last_crawled_at    TIMESTAMPTZ,
//		raw_blob_key       TEXT,
//		parsed_blob_key    TEXT,
//		retry_count        INTEGER NOT NULL DEFAULT 0,
//		last_error         TEXT,
//		next_eligible_at   TIMESTAMPTZ,
//		created_at         TIMESTAMPTZ NOT NULL,
//		updated_at         TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX ON urls (domain, state);
//	CREATE INDEX ON urls (state, lease_expires_at);
const postgresTable = "urls"

// PostgresStore is the relational Store backend. Unlike DynamoStore,
// Postgres gives UpdateIf a real
// transaction: SELECT ... FOR UPDATE takes a row lock, cond is evaluated
// against what that lock guarantees is the latest row, and UPDATE commits
// in the same transaction, with no optimistic retry loop needed, because
// Postgres serializes concurrent claimants at the lock rather than after
// the fact.
type PostgresStore struct {
	db      *sql.DB
	breaker *gobreaker.CircuitBreaker
}

// NewPostgresStore constructs a PostgresStore over an existing *sql.DB.
// db is expected to use the pgx stdlib driver ("pgx"), the same driver
// registration jackc/pgx/v5/stdlib provides, so the store can be exercised
// in tests with DATA-DOG/go-sqlmock without a live database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "postgres-" + postgresTable,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

const selectColumns = `url_hash, url, domain, state, lease_holder, lease_acquired_at,
	lease_expires_at, last_crawled_at, raw_blob_key, parsed_blob_key,
	retry_count, last_error, next_eligible_at, created_at, updated_at`

func scanRecord(row interface{ Scan(dest ...any) error }) (URLRecord, error) {
	var r URLRecord
	var leaseHolder, rawBlobKey, parsedBlobKey, lastError sql.NullString
	var leaseAcquiredAt, leaseExpiresAt, lastCrawledAt, nextEligibleAt sql.NullTime

	err := row.Scan(
		&r.URLHash, &r.URL, &r.Domain, &r.State,
		&leaseHolder, &leaseAcquiredAt, &leaseExpiresAt, &lastCrawledAt,
		&rawBlobKey, &parsedBlobKey, &r.RetryCount, &lastError, &nextEligibleAt,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return URLRecord{}, err
	}
	r.LeaseHolder = leaseHolder.String
	r.RawBlobKey = rawBlobKey.String
	r.ParsedBlobKey = parsedBlobKey.String
	r.LastError = lastError.String
	if leaseAcquiredAt.Valid {
		r.LeaseAcquiredAt = &leaseAcquiredAt.Time
	}
	if leaseExpiresAt.Valid {
		r.LeaseExpiresAt = &leaseExpiresAt.Time
	}
	if lastCrawledAt.Valid {
		r.LastCrawledAt = &lastCrawledAt.Time
	}
	if nextEligibleAt.Valid {
		r.NextEligibleAt = &nextEligibleAt.Time
	}
	return r, nil
}

func (s *PostgresStore) Get(ctx context.Context, urlHash string) (URLRecord, bool, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM "+postgresTable+" WHERE url_hash = $1", urlHash)
		return scanRecord(row)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return URLRecord{}, false, nil
		}
		return URLRecord{}, false, newUnavailable(err.Error())
	}
	return out.(URLRecord), true, nil
}

func (s *PostgresStore) PutIfAbsent(ctx context.Context, record URLRecord) (bool, error) {
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.db.ExecContext(ctx, `
			INSERT INTO `+postgresTable+` (url_hash, url, domain, state, retry_count, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (url_hash) DO NOTHING`,
			record.URLHash, record.URL, record.Domain, record.State, record.RetryCount,
			record.CreatedAt, record.UpdatedAt,
		)
	})
	if err != nil {
		return false, newUnavailable(err.Error())
	}
	rows, err := result.(sql.Result).RowsAffected()
	if err != nil {
		return false, newUnavailable(err.Error())
	}
	return rows > 0, nil
}

// UpdateIf runs cond and update inside a single transaction holding a row
// lock on urlHash, so the read cond evaluates against and the write update
// produces are never interleaved with another claimant's transaction.
func (s *PostgresStore) UpdateIf(ctx context.Context, urlHash string, cond Condition, update Updates) (bool, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return false, err
		}
		defer tx.Rollback()

		row := tx.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM "+postgresTable+" WHERE url_hash = $1 FOR UPDATE", urlHash)
		current, err := scanRecord(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, errPostgresNotFound
			}
			return false, err
		}

		if !cond(current) {
			return false, nil
		}

		next := current
		update(&next)
		next.UpdatedAt = time.Now()

		_, err = tx.ExecContext(ctx, `
			UPDATE `+postgresTable+` SET
				url = $2, domain = $3, state = $4,
				lease_holder = $5, lease_acquired_at = $6, lease_expires_at = $7,
				last_crawled_at = $8, raw_blob_key = $9, parsed_blob_key = $10,
				retry_count = $11, last_error = $12, next_eligible_at = $13, updated_at = $14
			WHERE url_hash = $1`,
			urlHash, next.URL, next.Domain, next.State,
			nullString(next.LeaseHolder), next.LeaseAcquiredAt, next.LeaseExpiresAt,
			next.LastCrawledAt, nullString(next.RawBlobKey), nullString(next.ParsedBlobKey),
			next.RetryCount, nullString(next.LastError), next.NextEligibleAt, next.UpdatedAt,
		)
		if err != nil {
			return false, err
		}
		if err := tx.Commit(); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		if errors.Is(err, errPostgresNotFound) {
			return false, newNotFound("no record for " + urlHash)
		}
		return false, newUnavailable(err.Error())
	}
	return out.(bool), nil
}

func (s *PostgresStore) QueryByDomainState(ctx context.Context, domain string, state State, limit int) ([]URLRecord, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		rows, err := s.db.QueryContext(ctx,
			"SELECT "+selectColumns+" FROM "+postgresTable+" WHERE domain = $1 AND state = $2 LIMIT $3",
			domain, state, limit,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return collectRows(rows)
	})
	if err != nil {
		return nil, newUnavailable(err.Error())
	}
	return out.([]URLRecord), nil
}

func (s *PostgresStore) BatchGet(ctx context.Context, urlHashes []string) (map[string]URLRecord, error) {
	if len(urlHashes) == 0 {
		return map[string]URLRecord{}, nil
	}
	out, err := s.breaker.Execute(func() (interface{}, error) {
		rows, err := s.db.QueryContext(ctx,
			"SELECT "+selectColumns+" FROM "+postgresTable+" WHERE url_hash = ANY($1)",
			pqStringArray(urlHashes),
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		records, err := collectRows(rows)
		if err != nil {
			return nil, err
		}
		result := make(map[string]URLRecord, len(records))
		for _, r := range records {
			result[r.URLHash] = r
		}
		return result, nil
	})
	if err != nil {
		return nil, newUnavailable(err.Error())
	}
	return out.(map[string]URLRecord), nil
}

func (s *PostgresStore) BatchPut(ctx context.Context, records []URLRecord) error {
	now := time.Now()
	_, err := s.breaker.Execute(func() (interface{}, error) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO `+postgresTable+` (url_hash, url, domain, state, retry_count, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (url_hash) DO UPDATE SET
				state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`)
		if err != nil {
			return nil, err
		}
		defer stmt.Close()

		for _, r := range records {
			createdAt := r.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}
			if _, err := stmt.ExecContext(ctx, r.URLHash, r.URL, r.Domain, r.State, r.RetryCount, createdAt, now); err != nil {
				return nil, err
			}
		}
		return nil, tx.Commit()
	})
	if err != nil {
		return newUnavailable(err.Error())
	}
	return nil
}

// Scan narrows server-side to IN_PROGRESS rows ordered by lease_expires_at
// (the shape internal/lease.StoreScanner's reclaim sweep actually wants),
// then applies filter, an arbitrary closure SQL cannot express, client-side.
func (s *PostgresStore) Scan(ctx context.Context, filter ScanFilter, limit int) ([]URLRecord, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		rows, err := s.db.QueryContext(ctx,
			"SELECT "+selectColumns+" FROM "+postgresTable+" WHERE state = $1 ORDER BY lease_expires_at ASC",
			StateInProgress,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return collectRows(rows)
	})
	if err != nil {
		return nil, newUnavailable(err.Error())
	}
	all := out.([]URLRecord)
	var records []URLRecord
	for _, r := range all {
		if filter == nil || filter(r) {
			records = append(records, r)
		}
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}

func collectRows(rows *sql.Rows) ([]URLRecord, error) {
	var records []URLRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// pqStringArray renders a Go string slice as a Postgres array literal,
// the format ANY($1) expects when passed as text.
type pqStringArray []string

func (a pqStringArray) Value() (driver.Value, error) {
	out := "{"
	for i, s := range a {
		if i > 0 {
			out += ","
		}
		out += `"` + s + `"`
	}
	out += "}"
	return out, nil
}

var errPostgresNotFound = errors.New("statestore: postgres row not found")
