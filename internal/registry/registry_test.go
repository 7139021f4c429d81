package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MacJediWizard/scanmaster/internal/license"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "licenses.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(factoryID, key string, generatedAt time.Time) *license.Record {
	maxUsers := 10
	expiry := time.Date(2027, 12, 31, 0, 0, 0, 0, time.UTC)
	return &license.Record{
		FactoryID:           factoryID,
		FactoryName:         "Acme Corp",
		PurchasedStandards:  []string{"AMS-STD-2154E"},
		StandardsShortCodes: []string{"AMS"},
		ExpiryDate:          &expiry,
		MaxUsers:            &maxUsers,
		GeneratedAt:         generatedAt,
		TotalPrice:          1500,
		LicenseKey:          key,
	}
}

func TestStore_InsertAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	rec := testRecord("FAC-ACMECO-1", "SM-FAC-ACMECO-1-AMS-20271231-ABCDEF123456", now)
	entry, err := store.Insert(ctx, rec)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, entry.ID)

	got, err := store.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, rec.LicenseKey, got.Record.LicenseKey)
	assert.Equal(t, rec.StandardsShortCodes, got.Record.StandardsShortCodes)
	require.NotNil(t, got.Record.MaxUsers)
	assert.Equal(t, 10, *got.Record.MaxUsers)
	assert.True(t, rec.GeneratedAt.Equal(got.Record.GeneratedAt))

	byKey, err := store.FindByKey(ctx, " "+rec.LicenseKey+" ")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, byKey.ID)
}

func TestStore_NotFound(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.FindByKey(ctx, "SM-NOPE-AMS-LIFETIME-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DuplicateKey(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	rec := testRecord("ACME", "SM-ACME-AMS-20271231-ABCDEF123456", time.Now())

	require.NoError(t, store.SaveRecord(ctx, rec))
	err := store.SaveRecord(ctx, rec)
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.NotContains(t, err.Error(), "ABCDEF123456", "signature must be masked")
}

func TestStore_ListAndCount(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveRecord(ctx, testRecord("ACME", "SM-ACME-AMS-LIFETIME-000000000001", base)))
	require.NoError(t, store.SaveRecord(ctx, testRecord("ACME", "SM-ACME-AMS-LIFETIME-000000000002", base.Add(500*time.Millisecond))))
	require.NoError(t, store.SaveRecord(ctx, testRecord("ZETA", "SM-ZETA-AMS-LIFETIME-000000000003", base.Add(time.Hour))))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	all, err := store.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "SM-ZETA-AMS-LIFETIME-000000000003", all[0].Record.LicenseKey)
	assert.Equal(t, "SM-ACME-AMS-LIFETIME-000000000002", all[1].Record.LicenseKey)
	assert.Equal(t, "SM-ACME-AMS-LIFETIME-000000000001", all[2].Record.LicenseKey)

	acme, err := store.List(ctx, ListFilter{FactoryID: "ACME"})
	require.NoError(t, err)
	assert.Len(t, acme, 2)

	limited, err := store.List(ctx, ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_IssuerIntegration(t *testing.T) {
	store := openTestStore(t)
	signer, err := license.NewSigner([]byte("secret"))
	require.NoError(t, err)
	issuer, err := license.NewIssuer(license.IssuerConfig{Signer: signer, Store: store, Logger: zerolog.Nop()})
	require.NoError(t, err)

	rec, err := issuer.Issue(context.Background(), license.IssueRequest{FactoryName: "Acme", Standards: []string{"AMS", "SEP"}})
	require.NoError(t, err)

	entry, err := store.FindByKey(context.Background(), rec.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, rec.FactoryID, entry.Record.FactoryID)
	assert.True(t, entry.Record.IsLifetime)
}
