package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fairyhunter13/coupon-groups/internal/model"
	"github.com/fairyhunter13/coupon-groups/pkg/database"
)

// mockGroupRepository is a mock implementation of GroupRepositoryInterface.
type mockGroupRepository struct {
	insertFn    func(ctx context.Context, name string) (*model.CouponGroup, error)
	getByIDFn   func(ctx context.Context, id int64) (*model.CouponGroup, error)
	getByNameFn func(ctx context.Context, name string) (*model.CouponGroup, error)
	listFn      func(ctx context.Context, limit, offset int) ([]model.CouponGroup, error)
	countFn     func(ctx context.Context) (int, error)
	deleteFn    func(ctx context.Context, id int64) (bool, error)
}

func (m *mockGroupRepository) Insert(ctx context.Context, name string) (*model.CouponGroup, error) {
	if m.insertFn != nil {
		return m.insertFn(ctx, name)
	}
	return &model.CouponGroup{ID: 1, Name: name}, nil
}

func (m *mockGroupRepository) GetByID(ctx context.Context, id int64) (*model.CouponGroup, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return &model.CouponGroup{ID: id, Name: "SPRING"}, nil
}

func (m *mockGroupRepository) GetByName(ctx context.Context, name string) (*model.CouponGroup, error) {
	if m.getByNameFn != nil {
		return m.getByNameFn(ctx, name)
	}
	return nil, nil
}

func (m *mockGroupRepository) List(ctx context.Context, limit, offset int) ([]model.CouponGroup, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit, offset)
	}
	return []model.CouponGroup{}, nil
}

func (m *mockGroupRepository) Count(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

func (m *mockGroupRepository) Delete(ctx context.Context, id int64) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return true, nil
}

// mockItemRepository is a mock implementation of ItemRepositoryInterface.
type mockItemRepository struct {
	insertFn             func(ctx context.Context, item *model.NewItem) (*model.CouponGroupItem, error)
	getByCodeFn          func(ctx context.Context, code string) (*model.CouponGroupItem, error)
	listByGroupFn        func(ctx context.Context, groupID int64) ([]model.CouponGroupItem, error)
	getByCodeForUpdateFn func(ctx context.Context, tx database.TxQuerier, code string) (*model.CouponGroupItem, error)
	getByIDForUpdateFn   func(ctx context.Context, tx database.TxQuerier, id int64) (*model.CouponGroupItem, error)
	incrementUsageFn     func(ctx context.Context, tx database.TxQuerier, id int64) error
	countByGroupFn       func(ctx context.Context, groupID int64) (int, int, error)
}

func (m *mockItemRepository) Insert(ctx context.Context, item *model.NewItem) (*model.CouponGroupItem, error) {
	if m.insertFn != nil {
		return m.insertFn(ctx, item)
	}
	return &model.CouponGroupItem{ID: 1, GroupID: item.GroupID, Code: item.Code, UsageLimit: item.UsageLimit}, nil
}

func (m *mockItemRepository) GetByCode(ctx context.Context, code string) (*model.CouponGroupItem, error) {
	if m.getByCodeFn != nil {
		return m.getByCodeFn(ctx, code)
	}
	return nil, nil
}

func (m *mockItemRepository) ListByGroup(ctx context.Context, groupID int64) ([]model.CouponGroupItem, error) {
	if m.listByGroupFn != nil {
		return m.listByGroupFn(ctx, groupID)
	}
	return []model.CouponGroupItem{}, nil
}

func (m *mockItemRepository) GetByCodeForUpdate(ctx context.Context, tx database.TxQuerier, code string) (*model.CouponGroupItem, error) {
	if m.getByCodeForUpdateFn != nil {
		return m.getByCodeForUpdateFn(ctx, tx, code)
	}
	return nil, ErrCodeNotFound
}

func (m *mockItemRepository) GetByIDForUpdate(ctx context.Context, tx database.TxQuerier, id int64) (*model.CouponGroupItem, error) {
	if m.getByIDForUpdateFn != nil {
		return m.getByIDForUpdateFn(ctx, tx, id)
	}
	return nil, ErrCodeNotFound
}

func (m *mockItemRepository) IncrementUsage(ctx context.Context, tx database.TxQuerier, id int64) error {
	if m.incrementUsageFn != nil {
		return m.incrementUsageFn(ctx, tx, id)
	}
	return nil
}

func (m *mockItemRepository) CountByGroup(ctx context.Context, groupID int64) (int, int, error) {
	if m.countByGroupFn != nil {
		return m.countByGroupFn(ctx, groupID)
	}
	return 0, 0, nil
}

// mockUsageRepository is a mock implementation of UsageRepositoryInterface
// and UsageCounterInterface.
type mockUsageRepository struct {
	existsFn           func(ctx context.Context, groupID, userID int64) (bool, error)
	existsForUpdateFn  func(ctx context.Context, tx database.TxQuerier, groupID, userID int64) (bool, error)
	insertFn           func(ctx context.Context, tx database.TxQuerier, groupID, userID, itemID int64) error
	countByGroupFn     func(ctx context.Context, groupID int64) (int, error)
	countUniqueUsersFn func(ctx context.Context, groupID int64) (int, error)
}

func (m *mockUsageRepository) Exists(ctx context.Context, groupID, userID int64) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, groupID, userID)
	}
	return false, nil
}

func (m *mockUsageRepository) ExistsForUpdate(ctx context.Context, tx database.TxQuerier, groupID, userID int64) (bool, error) {
	if m.existsForUpdateFn != nil {
		return m.existsForUpdateFn(ctx, tx, groupID, userID)
	}
	return false, nil
}

func (m *mockUsageRepository) Insert(ctx context.Context, tx database.TxQuerier, groupID, userID, itemID int64) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, tx, groupID, userID, itemID)
	}
	return nil
}

func (m *mockUsageRepository) CountByGroup(ctx context.Context, groupID int64) (int, error) {
	if m.countByGroupFn != nil {
		return m.countByGroupFn(ctx, groupID)
	}
	return 0, nil
}

func (m *mockUsageRepository) CountUniqueUsers(ctx context.Context, groupID int64) (int, error) {
	if m.countUniqueUsersFn != nil {
		return m.countUniqueUsersFn(ctx, groupID)
	}
	return 0, nil
}

// mockLedger is a mock implementation of BalanceLedger.
type mockLedger struct {
	creditFn        func(ctx context.Context, tx database.TxQuerier, userID, amount int64) error
	recordPaymentFn func(ctx context.Context, tx database.TxQuerier, userID, amount int64, source string) error
}

func (m *mockLedger) Credit(ctx context.Context, tx database.TxQuerier, userID, amount int64) error {
	if m.creditFn != nil {
		return m.creditFn(ctx, tx, userID, amount)
	}
	return nil
}

func (m *mockLedger) RecordPayment(ctx context.Context, tx database.TxQuerier, userID, amount int64, source string) error {
	if m.recordPaymentFn != nil {
		return m.recordPaymentFn(ctx, tx, userID, amount, source)
	}
	return nil
}

// mockKeyRepository is a mock implementation of KeyRepositoryInterface.
type mockKeyRepository struct {
	listActiveByUserFn func(ctx context.Context, userID int64) ([]model.Key, error)
	getForUpdateFn     func(ctx context.Context, tx database.TxQuerier, userID int64, clientID string) (*model.Key, error)
	updateExpiryFn     func(ctx context.Context, tx database.TxQuerier, clientID string, expiryMS int64) error
}

func (m *mockKeyRepository) ListActiveByUser(ctx context.Context, userID int64) ([]model.Key, error) {
	if m.listActiveByUserFn != nil {
		return m.listActiveByUserFn(ctx, userID)
	}
	return []model.Key{}, nil
}

func (m *mockKeyRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, userID int64, clientID string) (*model.Key, error) {
	if m.getForUpdateFn != nil {
		return m.getForUpdateFn(ctx, tx, userID, clientID)
	}
	return nil, nil
}

func (m *mockKeyRepository) UpdateExpiry(ctx context.Context, tx database.TxQuerier, clientID string, expiryMS int64) error {
	if m.updateExpiryFn != nil {
		return m.updateExpiryFn(ctx, tx, clientID, expiryMS)
	}
	return nil
}

// mockRenewer is a mock implementation of Renewer.
type mockRenewer struct {
	mu       sync.Mutex
	renewFn  func(ctx context.Context, req model.RenewRequest) error
	requests []model.RenewRequest
}

func (m *mockRenewer) Renew(ctx context.Context, req model.RenewRequest) error {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.renewFn != nil {
		return m.renewFn(ctx, req)
	}
	return nil
}

// mockJournal is a mock implementation of JournalRepositoryInterface.
type mockJournal struct {
	insertFn       func(ctx context.Context, entry *model.EffectJournalEntry) error
	setStatusFn    func(ctx context.Context, q database.TxQuerier, id string, status model.EffectStatus) error
	listPendingFn  func(ctx context.Context, createdBefore time.Time, limit int) ([]model.EffectJournalEntry, error)
	getForUpdateFn func(ctx context.Context, tx database.TxQuerier, id string) (*model.EffectJournalEntry, error)

	inserted []model.EffectJournalEntry
	statuses map[string]model.EffectStatus
}

func (m *mockJournal) Insert(ctx context.Context, entry *model.EffectJournalEntry) error {
	m.inserted = append(m.inserted, *entry)
	if m.insertFn != nil {
		return m.insertFn(ctx, entry)
	}
	return nil
}

func (m *mockJournal) SetStatus(ctx context.Context, q database.TxQuerier, id string, status model.EffectStatus) error {
	if m.statuses == nil {
		m.statuses = make(map[string]model.EffectStatus)
	}
	m.statuses[id] = status
	if m.setStatusFn != nil {
		return m.setStatusFn(ctx, q, id, status)
	}
	return nil
}

func (m *mockJournal) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]model.EffectJournalEntry, error) {
	if m.listPendingFn != nil {
		return m.listPendingFn(ctx, createdBefore, limit)
	}
	return nil, nil
}

func (m *mockJournal) GetForUpdate(ctx context.Context, tx database.TxQuerier, id string) (*model.EffectJournalEntry, error) {
	if m.getForUpdateFn != nil {
		return m.getForUpdateFn(ctx, tx, id)
	}
	return nil, nil
}

// mockPublisher is a mock implementation of EventPublisher.
type mockPublisher struct {
	publishFn func(ctx context.Context, ev model.RedemptionEvent) error
	events    []model.RedemptionEvent
}

func (m *mockPublisher) PublishRedemption(ctx context.Context, ev model.RedemptionEvent) error {
	m.events = append(m.events, ev)
	if m.publishFn != nil {
		return m.publishFn(ctx, ev)
	}
	return nil
}

// mockMetrics records observations.
type mockMetrics struct {
	redemptions []string
	reconciles  []string
	issued      [2]int
}

func (m *mockMetrics) ObserveRedemption(flow, outcome string, _ time.Duration) {
	m.redemptions = append(m.redemptions, flow+":"+outcome)
}

func (m *mockMetrics) ObserveReconcile(outcome string) {
	m.reconciles = append(m.reconciles, outcome)
}

func (m *mockMetrics) ObserveIssuance(created, skipped int) {
	m.issued[0] += created
	m.issued[1] += skipped
}

// mockStatsCache is a mock implementation of StatsCache.
type mockStatsCache struct {
	getFn func(ctx context.Context, groupID int64) (*model.GroupStats, bool, error)
	setFn func(ctx context.Context, groupID int64, stats *model.GroupStats) error
}

func (m *mockStatsCache) Get(ctx context.Context, groupID int64) (*model.GroupStats, bool, error) {
	if m.getFn != nil {
		return m.getFn(ctx, groupID)
	}
	return nil, false, nil
}

func (m *mockStatsCache) Set(ctx context.Context, groupID int64, stats *model.GroupStats) error {
	if m.setFn != nil {
		return m.setFn(ctx, groupID, stats)
	}
	return nil
}

// mockTx is a mock implementation of pgx.Tx for testing transactions.
type mockTx struct {
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error
	committed  bool
	execSQL    []string
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("nested transactions not supported")
}

func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitFn != nil {
		return m.commitFn(ctx)
	}
	m.committed = true
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	if m.rollbackFn != nil {
		return m.rollbackFn(ctx)
	}
	return nil
}

func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (m *mockTx) LargeObjects() pgx.LargeObjects {
	return pgx.LargeObjects{}
}

func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	m.execSQL = append(m.execSQL, sql)
	return pgconn.CommandTag{}, nil
}

func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (m *mockTx) Conn() *pgx.Conn {
	return nil
}

// mockTxBeginner is a mock implementation of TxBeginner.
type mockTxBeginner struct {
	beginFn func(ctx context.Context) (pgx.Tx, error)
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.beginFn != nil {
		return m.beginFn(ctx)
	}
	return &mockTx{}, nil
}

func intPtr(i int) *int {
	return &i
}

func txPool(tx *mockTx) *mockTxBeginner {
	return &mockTxBeginner{
		beginFn: func(ctx context.Context) (pgx.Tx, error) {
			return tx, nil
		},
	}
}
