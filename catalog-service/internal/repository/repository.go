package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sf "github.com/fjod/homeservices/storefront/domain"
	"github.com/fjod/homeservices/storefront/price"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"
)

var ErrPackageNotFound = errors.New("package not found")

type Repository struct {
	db *sql.DB
}

type RepoInterface interface {
	GetCategories(ctx context.Context) ([]sf.Category, error)
	GetPackages(ctx context.Context, category string) ([]sf.Package, error)
	GetPackage(ctx context.Context, id string) (sf.Package, error)
	GetTimeSlots(ctx context.Context) ([]sf.TimeSlot, error)
	Close() error
	RunMigrations(string) error
}

func (r *Repository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// the catalog is read-mostly; one connection keeps ":memory:" databases
	// visible to every query
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) GetCategories(ctx context.Context) ([]sf.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []sf.Category{}
	for rows.Next() {
		var c sf.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return categories, nil
}

// GetPackages lists packages with their services, all of them when
// category is empty.
func (r *Repository) GetPackages(ctx context.Context, category string) ([]sf.Package, error) {
	query := `
		SELECT id, name, price, category_id
		FROM packages
	`
	var args []any
	if category != "" {
		query += ` WHERE category_id = ?`
		args = append(args, category)
	}
	query += ` ORDER BY category_id, position, id`

	packages, err := r.queryPackages(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if err := r.attachServices(ctx, packages); err != nil {
		return nil, err
	}
	return packages, nil
}

func (r *Repository) GetPackage(ctx context.Context, id string) (sf.Package, error) {
	packages, err := r.queryPackages(ctx, `SELECT id, name, price, category_id FROM packages WHERE id = ?`, id)
	if err != nil {
		return sf.Package{}, err
	}
	if len(packages) == 0 {
		return sf.Package{}, ErrPackageNotFound
	}
	if err := r.attachServices(ctx, packages); err != nil {
		return sf.Package{}, err
	}
	return packages[0], nil
}

func (r *Repository) GetTimeSlots(ctx context.Context) ([]sf.TimeSlot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, label, extra_charge FROM time_slots ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query time slots: %w", err)
	}
	defer rows.Close()

	slots := []sf.TimeSlot{}
	for rows.Next() {
		var (
			s     sf.TimeSlot
			extra float64
		)
		if err := rows.Scan(&s.ID, &s.Label, &extra); err != nil {
			return nil, fmt.Errorf("failed to scan time slot: %w", err)
		}
		s.ExtraCharge = price.Amount(extra)
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return slots, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) queryPackages(ctx context.Context, query string, args ...any) ([]sf.Package, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query packages: %w", err)
	}
	defer rows.Close()

	packages := []sf.Package{}
	for rows.Next() {
		var (
			p    sf.Package
			list float64
		)
		if err := rows.Scan(&p.ID, &p.Name, &list, &p.Category); err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		p.Price = price.Amount(list)
		p.Items = []sf.SubService{}
		packages = append(packages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return packages, nil
}

// attachServices loads included items and addons for packages in one query.
func (r *Repository) attachServices(ctx context.Context, packages []sf.Package) error {
	if len(packages) == 0 {
		return nil
	}
	index := make(map[string]int, len(packages))
	args := make([]any, len(packages))
	for i, p := range packages {
		index[p.ID] = i
		args[i] = p.ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(packages)), ",")

	rows, err := r.db.QueryContext(ctx, `
		SELECT package_id, kind, details, price
		FROM package_services
		WHERE package_id IN (`+placeholders+`)
		ORDER BY package_id, kind, position`, args...)
	if err != nil {
		return fmt.Errorf("failed to query package services: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pkgID, kind, details string
			amount               float64
		)
		if err := rows.Scan(&pkgID, &kind, &details, &amount); err != nil {
			return fmt.Errorf("failed to scan package service: %w", err)
		}
		svc := sf.SubService{Details: details, Price: price.Amount(amount)}
		p := &packages[index[pkgID]]
		if kind == "addon" {
			p.Addons = append(p.Addons, svc)
		} else {
			p.Items = append(p.Items, svc)
		}
	}
	return rows.Err()
}
