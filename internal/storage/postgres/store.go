package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stableScope/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store provides Postgres persistence for snapshots, quotes and simulation
// progress.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertPoolSnapshot inserts or replaces the snapshot of a pool at a block.
func (s *Store) UpsertPoolSnapshot(ctx context.Context, snap model.PoolSnapshot) error {
	coins, err := json.Marshal(snap.Coins)
	if err != nil {
		return fmt.Errorf("marshal coins: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pool_snapshots (
			chain_id, pool_address, block_number, block_ts, amp, fee, lp_token, total_supply, coins, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (chain_id, pool_address, block_number)
		DO UPDATE SET
			block_ts = EXCLUDED.block_ts,
			amp = EXCLUDED.amp,
			fee = EXCLUDED.fee,
			lp_token = EXCLUDED.lp_token,
			total_supply = EXCLUDED.total_supply,
			coins = EXCLUDED.coins,
			updated_at = now()
	`,
		int64(snap.ChainID),
		snap.Address,
		int64(snap.BlockNumber),
		int64(snap.BlockTimestamp),
		int64(snap.Amp),
		int64(snap.Fee),
		snap.LPToken,
		snap.TotalSupply,
		coins,
	)
	if err != nil {
		return fmt.Errorf("upsert pool snapshot: %w", err)
	}
	return nil
}

// InsertQuotes appends quote records in one batch.
func (s *Store) InsertQuotes(ctx context.Context, records []model.QuoteRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		amounts := r.Operation.Amounts
		if r.Operation.Amount != "" {
			amounts = []string{r.Operation.Amount}
		}
		batch.Queue(`
			INSERT INTO quotes (
				chain_id, pool_address, block_number, op, from_idx, to_idx, amounts_in, amounts_out,
				fee, shares, onchain_out, onchain_delta, converged, error, quoted_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		`,
			int64(r.ChainID),
			r.PoolAddress,
			int64(r.BlockNumber),
			r.Operation.Op,
			r.Operation.From,
			r.Operation.To,
			amounts,
			r.Result.Out,
			nullable(r.Result.Fee),
			nullable(r.Result.Shares),
			nullable(r.OnchainOut),
			nullable(r.OnchainDelta),
			r.Converged,
			nullable(r.Result.Error),
			r.QuotedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert quote: %w", err)
		}
	}
	return nil
}

// LoadSimulationState returns the saved progress of a named simulation.
func (s *Store) LoadSimulationState(ctx context.Context, name string) (model.SimulationState, bool, error) {
	if name == "" {
		return model.SimulationState{}, false, fmt.Errorf("state name required")
	}
	state := model.SimulationState{Name: name}
	var processed int64
	var updated time.Time
	row := s.pool.QueryRow(ctx, `
		SELECT processed, balances, total_supply::text, updated_at
		FROM simulation_state WHERE name=$1
	`, name)
	if err := row.Scan(&processed, &state.Balances, &state.TotalSupply, &updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SimulationState{}, false, nil
		}
		return model.SimulationState{}, false, err
	}
	state.Processed = uint64(processed)
	state.UpdatedAt = updated.UTC().Format(time.RFC3339Nano)
	return state, true, nil
}

// SaveSimulationState upserts the progress of a named simulation.
func (s *Store) SaveSimulationState(ctx context.Context, state model.SimulationState) error {
	if state.Name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO simulation_state (name, processed, balances, total_supply, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE
		SET processed = EXCLUDED.processed,
			balances = EXCLUDED.balances,
			total_supply = EXCLUDED.total_supply,
			updated_at = now()
	`, state.Name, int64(state.Processed), state.Balances, state.TotalSupply)
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
