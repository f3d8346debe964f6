package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	db "github.com/fjod/homeservices/catalog-service/internal/repository"
	sf "github.com/fjod/homeservices/storefront/domain"
	"github.com/fjod/homeservices/storefront/price"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *db.Repository {
	repo, err := db.NewRepository(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.RunMigrations("./migrations"))
	return repo
}

func TestGetCategories_SeededInOrder(t *testing.T) {
	repo := setupTestDB(t)

	categories, err := repo.GetCategories(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []sf.Category{
		{ID: "cleaning", Name: "Cleaning"},
		{ID: "appliance", Name: "Appliance repair"},
		{ID: "salon", Name: "Salon at home"},
	}, categories)
}

func TestGetPackages_All(t *testing.T) {
	repo := setupTestDB(t)

	packages, err := repo.GetPackages(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, packages, 6)
}

func TestGetPackages_ByCategory(t *testing.T) {
	repo := setupTestDB(t)

	packages, err := repo.GetPackages(context.Background(), "cleaning")
	require.NoError(t, err)
	require.Len(t, packages, 3)
	assert.Equal(t, "deep-clean", packages[0].ID)
	assert.Equal(t, "fan-clean", packages[2].ID)
	for _, p := range packages {
		assert.Equal(t, "cleaning", p.Category)
	}

	none, err := repo.GetPackages(context.Background(), "plumbing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetPackage_WithServices(t *testing.T) {
	repo := setupTestDB(t)

	p, err := repo.GetPackage(context.Background(), "deep-clean")
	require.NoError(t, err)

	assert.Equal(t, price.Amount(1499), p.Price)
	require.Len(t, p.Items, 3)
	assert.Equal(t, "Kitchen deep clean", p.Items[0].Details)
	assert.Equal(t, 1499.0, sf.SumSubServices(p.Items))
	assert.Equal(t, []sf.SubService{
		{Details: "Balcony cleaning", Price: 199},
		{Details: "Fridge cleaning", Price: 249},
	}, p.Addons)
}

func TestGetPackage_WithoutServices(t *testing.T) {
	repo := setupTestDB(t)

	p, err := repo.GetPackage(context.Background(), "fan-clean")
	require.NoError(t, err)
	assert.NotNil(t, p.Items)
	assert.Empty(t, p.Items)
	assert.Nil(t, p.Addons)
}

func TestGetPackage_NotFound(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.GetPackage(context.Background(), "nope")
	assert.ErrorIs(t, err, db.ErrPackageNotFound)
}

func TestGetTimeSlots(t *testing.T) {
	repo := setupTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	slots, err := repo.GetTimeSlots(ctx)
	require.NoError(t, err)

	require.Len(t, slots, 3)
	assert.Equal(t, "morning", slots[0].ID)
	assert.Equal(t, price.Amount(0), slots[0].ExtraCharge)
	assert.Equal(t, "evening", slots[2].ID)
	assert.Equal(t, price.Amount(100), slots[2].ExtraCharge)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	repo := setupTestDB(t)

	require.NoError(t, repo.RunMigrations("./migrations"))
}
