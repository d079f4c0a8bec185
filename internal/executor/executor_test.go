package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/upbo/upbotrading/internal/logger"
	"github.com/upbo/upbotrading/internal/portfolio"
	"github.com/upbo/upbotrading/internal/storage"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyOrder(tx portfolio.Transaction, cash float64) {
	m.Called(tx, cash)
}

func (m *mockNotifier) NotifyError(context string, err error) {
	m.Called(context, err)
}

type memorySnapshots struct {
	saved []*storage.PortfolioSnapshot
	err   error
}

func (s *memorySnapshots) SaveSnapshot(snapshot *storage.PortfolioSnapshot) error {
	s.saved = append(s.saved, snapshot)
	return s.err
}

func newTestExecutor(t *testing.T, kv storage.KV) (*Executor, *portfolio.PriceBook, *mockNotifier, *memorySnapshots) {
	t.Helper()
	engine := portfolio.NewEngine(kv, portfolio.DefaultInitialCash, logger.Discard())
	require.NoError(t, engine.Load(context.Background()))
	prices := portfolio.NewPriceBook()
	notifier := &mockNotifier{}
	snaps := &memorySnapshots{}
	return NewExecutor(engine, prices, snaps, notifier, logger.Discard()), prices, notifier, snaps
}

func TestSubmitMatchedOrder(t *testing.T) {
	exec, prices, notifier, snaps := newTestExecutor(t, storage.NewMemoryKV())
	prices.Update(map[string]float64{"VNM": 80})

	notifier.On("NotifyOrder", mock.MatchedBy(func(tx portfolio.Transaction) bool {
		return tx.Symbol == "VNM" && tx.Type == portfolio.TxBuy && tx.Value == 7850
	}), 99_992_150.0).Once()

	tx, err := exec.Submit(context.Background(), portfolio.Order{Symbol: "VNM", Qty: 100, Price: 78.5, Side: portfolio.SideBuy})
	require.NoError(t, err)
	assert.Equal(t, portfolio.StatusMatched, tx.Status)
	notifier.AssertExpectations(t)

	require.Len(t, snaps.saved, 1)
	s := snaps.saved[0]
	assert.Equal(t, 99_992_150.0, s.Cash)
	assert.Equal(t, 8000.0, s.InvestedValue)
	assert.Equal(t, 150.0, s.UnrealizedPL)
	assert.Equal(t, 100_000_150.0, s.TotalEquity)
	assert.Equal(t, 1, s.PositionsCount)
	assert.Contains(t, s.PositionsJSON, `"symbol":"VNM"`)
}

func TestSubmitRejectionIsReturnedUntouched(t *testing.T) {
	exec, _, notifier, snaps := newTestExecutor(t, storage.NewMemoryKV())

	_, err := exec.Submit(context.Background(), portfolio.Order{Symbol: "VNM", Qty: 1, Price: 78.5, Side: portfolio.SideSell})
	assert.ErrorIs(t, err, portfolio.ErrInsufficientHoldings)

	_, err = exec.Submit(context.Background(), portfolio.Order{Symbol: "VIC", Qty: 10_000_000, Price: 42.3, Side: portfolio.SideBuy})
	assert.ErrorIs(t, err, portfolio.ErrInsufficientFunds)

	notifier.AssertNotCalled(t, "NotifyOrder", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "NotifyError", mock.Anything, mock.Anything)
	assert.Empty(t, snaps.saved)
}

type brokenKV struct {
	*storage.MemoryKV
}

func (brokenKV) SetMany(context.Context, map[string]string) error {
	return errors.New("database is locked")
}

func TestSubmitStorageFailureNotifiesOperator(t *testing.T) {
	exec, _, notifier, _ := newTestExecutor(t, brokenKV{storage.NewMemoryKV()})
	notifier.On("NotifyError", "Buy VNM", mock.Anything).Once()

	_, err := exec.Submit(context.Background(), portfolio.Order{Symbol: "VNM", Qty: 1, Price: 78.5, Side: portfolio.SideBuy})
	require.Error(t, err)
	notifier.AssertExpectations(t)
}

func TestSnapshotFailureDoesNotFailOrder(t *testing.T) {
	exec, _, notifier, snaps := newTestExecutor(t, storage.NewMemoryKV())
	snaps.err = errors.New("disk full")
	notifier.On("NotifyOrder", mock.Anything, mock.Anything).Once()

	_, err := exec.Submit(context.Background(), portfolio.Order{Symbol: "FPT", Qty: 10, Price: 125.6, Side: portfolio.SideBuy})
	assert.NoError(t, err)
}

func TestRevalueUsesLatestPrices(t *testing.T) {
	exec, prices, notifier, _ := newTestExecutor(t, storage.NewMemoryKV())
	notifier.On("NotifyOrder", mock.Anything, mock.Anything)

	_, err := exec.Submit(context.Background(), portfolio.Order{Symbol: "HPG", Qty: 100, Price: 25, Side: portfolio.SideBuy})
	require.NoError(t, err)

	assert.Equal(t, 2500.0, exec.Revalue().InvestedValue)
	prices.Update(map[string]float64{"HPG": 26})
	assert.Equal(t, 2600.0, exec.Revalue().InvestedValue)
}

func TestSnapshotValuesTheSameAccountCopy(t *testing.T) {
	exec, prices, notifier, _ := newTestExecutor(t, storage.NewMemoryKV())
	notifier.On("NotifyOrder", mock.Anything, mock.Anything)
	prices.Update(map[string]float64{"VNM": 80})

	_, err := exec.Submit(context.Background(), portfolio.Order{Symbol: "VNM", Qty: 100, Price: 78.5, Side: portfolio.SideBuy})
	require.NoError(t, err)

	acc, val := exec.Snapshot()
	assert.Equal(t, acc.CashBalance, val.CashBalance)
	assert.Equal(t, portfolio.Value(acc.CashBalance, acc.Positions, prices.Snapshot()), val)
	assert.Equal(t, 8000.0, val.InvestedValue)
}
