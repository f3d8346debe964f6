package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	d "github.com/fjod/homeservices/booking-service/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
)

var (
	ErrBookingNotFound         = errors.New("booking not found")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type Repository struct {
	db *sql.DB
}

type RepoInterface interface {
	Close() error
	RunMigrations(*Credentials) error
	CreateBooking(ctx context.Context, b *d.Booking, event *d.OutboxEvent) error
	GetBooking(ctx context.Context, userID, id string) (*d.Booking, error)
	GetBookingByIdempotencyKey(ctx context.Context, userID, key string) (*d.Booking, error)
	ListBookings(ctx context.Context, userID string) ([]*d.Booking, error)
	CancelBooking(ctx context.Context, userID, id string, event *d.OutboxEvent) error
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*d.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// CreateBooking stores b and its outbox event in one transaction, so an
// event exists exactly when the booking does.
func (r *Repository) CreateBooking(ctx context.Context, b *d.Booking, event *d.OutboxEvent) error {
	record, err := json.Marshal(b.Record)
	if err != nil {
		return fmt.Errorf("marshal booking record: %w", err)
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		const insertBooking = `INSERT INTO bookings (id, user_id, idempotency_key, status, record, total_amount, placed_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`
		_, err := tx.ExecContext(ctx, insertBooking,
			b.ID,
			b.UserID,
			nullIfEmpty(b.IdempotencyKey),
			b.Status,
			string(record),
			b.Record.Charges.Total,
			b.PlacedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return ErrDuplicateIdempotencyKey
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		return insertEvent(ctx, tx, event)
	})
}

const selectBooking = `SELECT id, user_id, COALESCE(idempotency_key, ''), status, record, placed_at, updated_at FROM bookings`

func (r *Repository) GetBooking(ctx context.Context, userID, id string) (*d.Booking, error) {
	row := r.db.QueryRowContext(ctx, selectBooking+` WHERE id = $1 AND user_id = $2 AND status = $3`,
		id, userID, d.BookingStatusPlaced)
	return scanBooking(row)
}

func (r *Repository) GetBookingByIdempotencyKey(ctx context.Context, userID, key string) (*d.Booking, error) {
	row := r.db.QueryRowContext(ctx, selectBooking+` WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
	return scanBooking(row)
}

// ListBookings returns the user's placed bookings, newest first.
func (r *Repository) ListBookings(ctx context.Context, userID string) ([]*d.Booking, error) {
	rows, err := r.db.QueryContext(ctx, selectBooking+` WHERE user_id = $1 AND status = $2 ORDER BY placed_at DESC`,
		userID, d.BookingStatusPlaced)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	out := []*d.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	return out, nil
}

// CancelBooking marks a placed booking cancelled and queues event with it.
func (r *Repository) CancelBooking(ctx context.Context, userID, id string, event *d.OutboxEvent) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		const q = `UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2 AND user_id = $3 AND status = $4`
		res, err := tx.ExecContext(ctx, q, d.BookingStatusCancelled, id, userID, d.BookingStatusPlaced)
		if err != nil {
			return fmt.Errorf("cancel booking: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("cancel booking: %w", err)
		}
		if n == 0 {
			return ErrBookingNotFound
		}
		return insertEvent(ctx, tx, event)
	})
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*d.OutboxEvent, error) {
	const q = `SELECT id, aggregate_id, event_type, payload, created_at FROM outbox_events
		WHERE processed_at IS NULL ORDER BY id LIMIT $1`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []*d.OutboxEvent
	for rows.Next() {
		var e d.OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event %d processed: %w", id, err)
	}
	return nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, event *d.OutboxEvent) error {
	if event == nil {
		return nil
	}
	const q = `INSERT INTO outbox_events (aggregate_id, event_type, payload) VALUES ($1, $2, $3) RETURNING id, created_at`
	if err := tx.QueryRowContext(ctx, q, event.AggregateID, event.EventType, string(event.Payload)).Scan(&event.ID, &event.CreatedAt); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(s scanner) (*d.Booking, error) {
	var (
		b      d.Booking
		record []byte
	)
	err := s.Scan(&b.ID, &b.UserID, &b.IdempotencyKey, &b.Status, &record, &b.PlacedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	if err := json.Unmarshal(record, &b.Record); err != nil {
		return nil, fmt.Errorf("decode booking %s: %w", b.ID, err)
	}
	b.PlacedAt = b.PlacedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ RepoInterface = (*Repository)(nil)
