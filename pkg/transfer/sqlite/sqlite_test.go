package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexfin/pesitd/pkg/transfer"
	"github.com/nexfin/pesitd/pkg/transfer/sqlite"
)

func openTestTracker(t *testing.T) *sqlite.Tracker {
	t.Helper()
	dir := t.TempDir()
	tr, err := sqlite.Open(filepath.Join(dir, "transfers.db"))
	require.NoError(t, err)
	return tr
}

func TestLifecyclePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transfers.db")
	ctx := context.Background()

	tr1, err := sqlite.Open(path)
	require.NoError(t, err)

	id, err := tr1.Create(ctx, "sess1", "srv1", "node1", "partnerA", "INVOICE.DAT", transfer.DirectionReceive, "10.0.0.1:4321")
	require.NoError(t, err)
	require.NoError(t, tr1.Start(ctx, id, 2000, "/data/in/invoice.dat"))
	require.NoError(t, tr1.RecordSync(ctx, id, 2, 1000))

	tr2, err := sqlite.Open(path)
	require.NoError(t, err)

	rec, err := tr2.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, transfer.StatusInProgress, rec.Status)
	require.EqualValues(t, 1000, rec.BytesAtLastSync)
	require.Equal(t, uint32(2), rec.LastSyncNumber)
}

func TestRetryChainAndMaxRetries(t *testing.T) {
	tr := openTestTracker(t)
	ctx := context.Background()

	id, err := tr.Create(ctx, "sess1", "srv1", "node1", "partnerA", "BIG.DAT", transfer.DirectionReceive, "10.0.0.1:1")
	require.NoError(t, err)
	require.NoError(t, tr.Start(ctx, id, 9000, "/data/in/big.dat"))

	current := id
	for i := 0; i < transfer.MaxRetries; i++ {
		require.NoError(t, tr.Interrupt(ctx, current, "timeout"))
		next, err := tr.Retry(ctx, current)
		require.NoError(t, err)
		current = next
	}

	require.NoError(t, tr.Interrupt(ctx, current, "timeout"))
	_, err = tr.Retry(ctx, current)
	require.ErrorIs(t, err, transfer.ErrMaxRetriesExceeded)
}

func TestMarkInterruptedForNode(t *testing.T) {
	tr := openTestTracker(t)
	ctx := context.Background()

	id, err := tr.Create(ctx, "sess1", "srv1", "nodeA", "partnerA", "LIVE.DAT", transfer.DirectionReceive, "10.0.0.1:1")
	require.NoError(t, err)
	require.NoError(t, tr.Start(ctx, id, 10, "/data/in/live.dat"))

	require.NoError(t, tr.MarkInterruptedForNode(ctx, "nodeA"))

	rec, err := tr.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, transfer.StatusInterrupted, rec.Status)
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	tr := openTestTracker(t)
	_, err := tr.Get(context.Background(), "missing")
	require.ErrorIs(t, err, transfer.ErrNotFound)
}

func TestUpdateUnknownTransferReturnsNotFound(t *testing.T) {
	tr := openTestTracker(t)
	err := tr.Progress(context.Background(), "missing", 10)
	require.ErrorIs(t, err, transfer.ErrNotFound)
}
