package db

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/balu-dk/go-cdr-rating/config"
	"github.com/balu-dk/go-cdr-rating/internal/db/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("db: not found")

//go:embed schema.sql
var schema string

// PostgresStore handles database operations
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore initializes a new PostgreSQL connection pool and applies the schema
func NewPostgresStore(cfg *config.Config) (*PostgresStore, error) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %v", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// StartTransaction stores a new charging transaction
func (s *PostgresStore) StartTransaction(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, charge_point_id, connector_id, id_tag,
			start_time, meter_start, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	now := time.Now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	_, err := s.pool.Exec(ctx, query,
		tx.ID, tx.ChargePointID, tx.ConnectorID, tx.IdTag,
		tx.StartTime, tx.MeterStart, tx.Status, tx.CreatedAt, tx.UpdatedAt,
	)
	return err
}

// StopTransaction marks a transaction as completed
func (s *PostgresStore) StopTransaction(ctx context.Context, id int, endTime time.Time, meterStop int) error {
	query := `
		UPDATE transactions
		SET end_time = $1, meter_stop = $2, status = $3, updated_at = $4
		WHERE id = $5
	`

	tag, err := s.pool.Exec(ctx, query, endTime, meterStop, models.TransactionStatusCompleted, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MaxTransactionID returns the highest transaction id issued so far
func (s *PostgresStore) MaxTransactionID(ctx context.Context) (int, error) {
	var id int
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM transactions`).Scan(&id)
	return id, err
}

// GetTransaction retrieves a transaction by ID
func (s *PostgresStore) GetTransaction(ctx context.Context, id int) (*models.Transaction, error) {
	query := `
		SELECT
			id, charge_point_id, connector_id, id_tag,
			start_time, end_time, meter_start, meter_stop, status,
			created_at, updated_at
		FROM transactions
		WHERE id = $1
	`

	tx := &models.Transaction{}
	var endTime sql.NullTime
	var meterStop sql.NullInt32
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&tx.ID, &tx.ChargePointID, &tx.ConnectorID, &tx.IdTag,
		&tx.StartTime, &endTime, &tx.MeterStart, &meterStop, &tx.Status,
		&tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	if endTime.Valid {
		tx.EndTime = endTime.Time
	}
	if meterStop.Valid {
		tx.MeterStop = int(meterStop.Int32)
	}

	return tx, nil
}

// ListUnratedTransactionIDs returns completed transactions that have no CDR yet
func (s *PostgresStore) ListUnratedTransactionIDs(ctx context.Context, limit int) ([]int, error) {
	query := `
		SELECT t.id
		FROM transactions t
		LEFT JOIN cdrs c ON c.transaction_id = t.id
		WHERE t.status = $1 AND c.id IS NULL
		ORDER BY t.end_time
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, models.TransactionStatusCompleted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// SaveMeterValue saves a meter reading
func (s *PostgresStore) SaveMeterValue(ctx context.Context, mv *models.MeterValue) error {
	query := `
		INSERT INTO meter_values (
			transaction_id, charge_point_id, connector_id, timestamp,
			value, unit, measurand, context, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		mv.TransactionID, mv.ChargePointID, mv.ConnectorID, mv.Timestamp,
		mv.Value, mv.Unit, mv.Measurand, mv.Context, time.Now(),
	)
	return err
}

// ListMeterValues returns the meter values of a transaction ordered by timestamp
func (s *PostgresStore) ListMeterValues(ctx context.Context, transactionID int) ([]*models.MeterValue, error) {
	query := `
		SELECT
			id, transaction_id, charge_point_id, connector_id, timestamp,
			value, unit, measurand, context, created_at
		FROM meter_values
		WHERE transaction_id = $1
		ORDER BY timestamp, id
	`

	rows, err := s.pool.Query(ctx, query, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []*models.MeterValue
	for rows.Next() {
		mv := &models.MeterValue{}
		if err := rows.Scan(
			&mv.ID, &mv.TransactionID, &mv.ChargePointID, &mv.ConnectorID, &mv.Timestamp,
			&mv.Value, &mv.Unit, &mv.Measurand, &mv.Context, &mv.CreatedAt,
		); err != nil {
			return nil, err
		}
		values = append(values, mv)
	}

	return values, rows.Err()
}

// SaveTariff creates or updates a tariff
func (s *PostgresStore) SaveTariff(ctx context.Context, t *models.Tariff) error {
	query := `
		INSERT INTO tariffs (id, charge_point_id, priority, currency, elements, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			charge_point_id = $2,
			priority = $3,
			currency = $4,
			elements = $5,
			updated_at = $6
	`

	elements, err := json.Marshal(t.Elements)
	if err != nil {
		return fmt.Errorf("failed to marshal tariff elements: %w", err)
	}
	t.UpdatedAt = time.Now()

	_, err = s.pool.Exec(ctx, query, t.ID, t.ChargePointID, t.Priority, t.Currency, elements, t.UpdatedAt)
	return err
}

const tariffColumns = `id, charge_point_id, priority, currency, elements, updated_at`

// GetTariff retrieves a tariff by ID
func (s *PostgresStore) GetTariff(ctx context.Context, id string) (*models.Tariff, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tariffColumns+` FROM tariffs WHERE id = $1`, id)
	t, err := scanTariff(row)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// ListTariffs retrieves all tariffs
func (s *PostgresStore) ListTariffs(ctx context.Context) ([]*models.Tariff, error) {
	return s.queryTariffs(ctx, `SELECT `+tariffColumns+` FROM tariffs ORDER BY id`)
}

// ListTariffsForChargePoint retrieves the tariffs assigned to a charge point,
// highest priority first
func (s *PostgresStore) ListTariffsForChargePoint(ctx context.Context, chargePointID string) ([]*models.Tariff, error) {
	return s.queryTariffs(ctx,
		`SELECT `+tariffColumns+` FROM tariffs WHERE charge_point_id = $1 ORDER BY priority DESC, id`,
		chargePointID,
	)
}

func (s *PostgresStore) queryTariffs(ctx context.Context, query string, args ...interface{}) ([]*models.Tariff, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tariffs []*models.Tariff
	for rows.Next() {
		t, err := scanTariff(rows)
		if err != nil {
			return nil, err
		}
		tariffs = append(tariffs, t)
	}

	return tariffs, rows.Err()
}

func scanTariff(row pgx.Row) (*models.Tariff, error) {
	t := &models.Tariff{}
	var elements []byte
	if err := row.Scan(&t.ID, &t.ChargePointID, &t.Priority, &t.Currency, &elements, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(elements, &t.Elements); err != nil {
		return nil, fmt.Errorf("failed to unmarshal elements of tariff %s: %w", t.ID, err)
	}
	return t, nil
}

// SaveCDR creates or replaces a rated CDR
func (s *PostgresStore) SaveCDR(ctx context.Context, cdr *models.CDR) error {
	query := `
		INSERT INTO cdrs (id, transaction_id, currency, total_cost, record, created_at)
		VALUES ($1, $2, $3, $4::TEXT::NUMERIC, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			currency = EXCLUDED.currency,
			total_cost = EXCLUDED.total_cost,
			record = EXCLUDED.record,
			created_at = EXCLUDED.created_at
	`

	record, err := json.Marshal(cdr.Record)
	if err != nil {
		return fmt.Errorf("failed to marshal cdr %s: %w", cdr.ID, err)
	}
	if cdr.CreatedAt.IsZero() {
		cdr.CreatedAt = time.Now()
	}

	_, err = s.pool.Exec(ctx, query, cdr.ID, cdr.TransactionID, cdr.Currency, cdr.TotalCost, record, cdr.CreatedAt)
	return err
}

// GetCDR retrieves a rated CDR by ID
func (s *PostgresStore) GetCDR(ctx context.Context, id string) (*models.CDR, error) {
	query := `
		SELECT id, transaction_id, currency, total_cost::TEXT, record, created_at
		FROM cdrs
		WHERE id = $1
	`

	cdr := &models.CDR{}
	var record []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&cdr.ID, &cdr.TransactionID, &cdr.Currency, &cdr.TotalCost, &record, &cdr.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(record, &cdr.Record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cdr %s: %w", id, err)
	}

	return cdr, nil
}

// LogOCPPMessage journals an OCPP message
func (s *PostgresStore) LogOCPPMessage(ctx context.Context, msg *models.OCPPMessage) error {
	query := `
		INSERT INTO ocpp_messages (
			charge_point_id, message_type, action, request_id, payload, direction, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		msg.ChargePointID, msg.MessageType, msg.Action, msg.RequestID, []byte(msg.Payload), msg.Direction, msg.Timestamp,
	)
	return err
}
