package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/ymakhloufi/zins-compare/internal/pkg/model"
	"go.uber.org/zap"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS interest_sets (
	bank            TEXT        NOT NULL,
	term            TEXT        NOT NULL,
	nominal_rate    DOUBLE PRECISION,
	effective_rate  DOUBLE PRECISION,
	data_quality    TEXT        NOT NULL,
	changed_on      DATE        NOT NULL,
	last_crawled_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (bank, term)
)`

	upsertInterestSetSQL = `INSERT INTO interest_sets
	(bank, term, nominal_rate, effective_rate, data_quality, changed_on, last_crawled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (bank, term) DO UPDATE SET
	nominal_rate    = EXCLUDED.nominal_rate,
	effective_rate  = EXCLUDED.effective_rate,
	data_quality    = EXCLUDED.data_quality,
	changed_on      = EXCLUDED.changed_on,
	last_crawled_at = EXCLUDED.last_crawled_at`
)

// Execer is satisfied by *pgx.Conn and *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// Postgres keeps one row per bank and term holding the latest rates.
type Postgres struct {
	db     Execer
	logger *zap.Logger
}

func NewPostgres(db Execer, logger *zap.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create interest_sets table: %w", err)
	}
	return nil
}

func (p *Postgres) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	for _, set := range snap.InterestSets() {
		if err := p.UpsertInterestSet(ctx, set); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) UpsertInterestSet(ctx context.Context, set model.InterestSet) error {
	_, err := p.db.Exec(ctx, upsertInterestSetSQL,
		string(set.Bank),
		string(set.Term),
		set.NominalRate,
		set.EffectiveRate,
		string(set.Quality),
		set.ChangedOn.In(set.LastCrawledAt.Location()),
		set.LastCrawledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert interest set %s/%s: %w", set.Bank, set.Term, err)
	}

	p.logger.Debug("upserted interestSet", zap.Any("interestSet", set))
	return nil
}
