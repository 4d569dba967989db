package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/delta-monitor/internal/types"
)

func setupSnapshotRepository(t *testing.T) *SnapshotRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := NewPostgresDB(testPostgresConfig())
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	return NewSnapshotRepository(db)
}

func testSnapshot(evmAddress string) *types.PortfolioSnapshot {
	return &types.PortfolioSnapshot{
		EVMAddress:  evmAddress,
		CoreAddress: evmAddress,
		Timestamp:   time.Now().UTC(),
		VenueUSD: map[types.Venue]float64{
			types.VenueLP:   800.0,
			types.VenuePerp: 320.0,
		},
		VenueDelta: map[types.Venue]float64{
			types.VenueLP:   10.0,
			types.VenuePerp: -8.0,
		},
		TotalUSD:     1120.0,
		NetDeltaHYPE: 2.0,
		TimingsMs:    map[types.Venue]int64{types.VenueLP: 120},
	}
}

func TestSnapshotRepositoryRoundTrip(t *testing.T) {
	repo := setupSnapshotRepository(t)
	ctx := testContext(t)
	address := "0x00000000000000000000000000000000000000aa"

	id, err := repo.Save(ctx, testSnapshot(address))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if id.String() == "" {
		t.Fatal("Save() returned empty id")
	}

	got, err := repo.Latest(ctx, address)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got.TotalUSD != 1120.0 {
		t.Errorf("Latest().TotalUSD = %v, want 1120.0", got.TotalUSD)
	}
	if got.NetDeltaHYPE != 2.0 {
		t.Errorf("Latest().NetDeltaHYPE = %v, want 2.0", got.NetDeltaHYPE)
	}

	records, err := repo.History(ctx, address, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(records) == 0 {
		t.Fatal("History() returned no records")
	}
	if records[0].EVMAddress != address {
		t.Errorf("History()[0].EVMAddress = %s, want %s", records[0].EVMAddress, address)
	}
}

func TestSnapshotRepositoryLatestNotFound(t *testing.T) {
	repo := setupSnapshotRepository(t)
	ctx := testContext(t)

	_, err := repo.Latest(ctx, "0x00000000000000000000000000000000000000ff")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Latest() error = %v, want ErrSnapshotNotFound", err)
	}
}
