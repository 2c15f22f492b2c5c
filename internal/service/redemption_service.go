package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/coupon-groups/internal/model"
	"github.com/fairyhunter13/coupon-groups/pkg/database"
)

const (
	// PaymentSource is recorded on the audit payment of a balance redemption.
	PaymentSource = "coupon_group"

	dayMS = int64(86400 * 1000)

	flowBalance   = "balance"
	flowExtension = "extension"
)

// UsageRepositoryInterface defines the usage ledger operations used by the coordinator.
type UsageRepositoryInterface interface {
	Exists(ctx context.Context, groupID, userID int64) (bool, error)
	ExistsForUpdate(ctx context.Context, tx database.TxQuerier, groupID, userID int64) (bool, error)
	Insert(ctx context.Context, tx database.TxQuerier, groupID, userID, itemID int64) error
}

// BalanceLedger credits user balances inside the caller's transaction.
type BalanceLedger interface {
	Credit(ctx context.Context, tx database.TxQuerier, userID, amount int64) error
	RecordPayment(ctx context.Context, tx database.TxQuerier, userID, amount int64, source string) error
}

// KeyRepositoryInterface defines the local key store operations.
type KeyRepositoryInterface interface {
	ListActiveByUser(ctx context.Context, userID int64) ([]model.Key, error)
	GetForUpdate(ctx context.Context, tx database.TxQuerier, userID int64, clientID string) (*model.Key, error)
	UpdateExpiry(ctx context.Context, tx database.TxQuerier, clientID string, expiryMS int64) error
}

// Renewer extends a key on the remote cluster. It must tolerate replays of
// an identical request.
type Renewer interface {
	Renew(ctx context.Context, req model.RenewRequest) error
}

// JournalRepositoryInterface persists pending renewal effects. Insert must
// commit on its own, independently of any redemption transaction. SetStatus
// writes through q, or through the journal's own pool when q is nil.
type JournalRepositoryInterface interface {
	Insert(ctx context.Context, entry *model.EffectJournalEntry) error
	SetStatus(ctx context.Context, q database.TxQuerier, id string, status model.EffectStatus) error
	ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]model.EffectJournalEntry, error)
	GetForUpdate(ctx context.Context, tx database.TxQuerier, id string) (*model.EffectJournalEntry, error)
}

// EventPublisher announces committed redemptions.
type EventPublisher interface {
	PublishRedemption(ctx context.Context, ev model.RedemptionEvent) error
}

// RedemptionMetrics observes redemption and reconciliation outcomes.
type RedemptionMetrics interface {
	ObserveRedemption(flow, outcome string, d time.Duration)
	ObserveReconcile(outcome string)
}

// TxBeginner defines the interface for beginning transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RedemptionService validates and applies redemptions. It keeps no state
// between calls; every invariant is enforced by row locks and constraints
// inside a single store transaction.
type RedemptionService struct {
	pool        TxBeginner
	groupRepo   GroupRepositoryInterface
	itemRepo    ItemRepositoryInterface
	usageRepo   UsageRepositoryInterface
	ledger      BalanceLedger
	keyRepo     KeyRepositoryInterface
	renewer     Renewer
	journal     JournalRepositoryInterface
	publisher   EventPublisher
	metrics     RedemptionMetrics
	tracer      trace.Tracer
	now         func() time.Time
	lockTimeout time.Duration
}

// RedemptionDeps groups the collaborators of RedemptionService.
type RedemptionDeps struct {
	Pool    TxBeginner
	Groups  GroupRepositoryInterface
	Items   ItemRepositoryInterface
	Usages  UsageRepositoryInterface
	Ledger  BalanceLedger
	Keys    KeyRepositoryInterface
	Renewer Renewer
	Journal JournalRepositoryInterface
}

// RedemptionOption configures a RedemptionService.
type RedemptionOption func(*RedemptionService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) RedemptionOption {
	return func(s *RedemptionService) { s.now = now }
}

// WithLockTimeout bounds row lock waits; zero leaves the server default.
func WithLockTimeout(d time.Duration) RedemptionOption {
	return func(s *RedemptionService) { s.lockTimeout = d }
}

// WithPublisher sets the post-commit event publisher.
func WithPublisher(p EventPublisher) RedemptionOption {
	return func(s *RedemptionService) { s.publisher = p }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m RedemptionMetrics) RedemptionOption {
	return func(s *RedemptionService) { s.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) RedemptionOption {
	return func(s *RedemptionService) { s.tracer = t }
}

// NewRedemptionService creates a RedemptionService.
func NewRedemptionService(deps RedemptionDeps, opts ...RedemptionOption) *RedemptionService {
	s := &RedemptionService{
		pool:      deps.Pool,
		groupRepo: deps.Groups,
		itemRepo:  deps.Items,
		usageRepo: deps.Usages,
		ledger:    deps.Ledger,
		keyRepo:   deps.Keys,
		renewer:   deps.Renewer,
		journal:   deps.Journal,
		tracer:    otel.Tracer("github.com/fairyhunter13/coupon-groups/internal/service"),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// NewExpiry extends a key by days starting from whichever is later, now or
// the current expiry. All values are epoch milliseconds.
func NewExpiry(nowMS, currentExpiryMS int64, days int) int64 {
	return max(nowMS, currentExpiryMS) + int64(days)*dayMS
}

// Inspect runs the redemption checks without taking locks so a caller can
// decide which flow to offer. Its answer is advisory; Redeem re-checks
// everything under lock.
func (s *RedemptionService) Inspect(ctx context.Context, code string, userID int64) (*model.RedemptionOffer, error) {
	code = strings.TrimSpace(code)
	if code == "" || userID <= 0 {
		return nil, ErrInvalidRequest
	}

	item, err := s.itemRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, wrapStore("get item", err)
	}
	if item == nil {
		return nil, ErrCodeNotFound
	}
	reward, err := item.Reward()
	if err != nil {
		return nil, err
	}

	used, err := s.usageRepo.Exists(ctx, item.GroupID, userID)
	if err != nil {
		return nil, wrapStore("check usage", err)
	}
	if err := rejection(item, used); err != nil {
		return nil, err
	}

	group, err := s.groupRepo.GetByID(ctx, item.GroupID)
	if err != nil {
		return nil, wrapStore("get group", err)
	}
	if group == nil {
		return nil, ErrCodeNotFound
	}

	offer := &model.RedemptionOffer{
		GroupID:    group.ID,
		GroupName:  group.Name,
		Code:       item.Code,
		RewardKind: model.KindOf(reward),
	}
	switch r := reward.(type) {
	case model.BalanceReward:
		amount := r.Amount
		offer.Amount = &amount
	case model.ExtensionReward:
		days := r.Days
		offer.Days = &days
		keys, err := s.keyRepo.ListActiveByUser(ctx, userID)
		if err != nil {
			return nil, wrapStore("list keys", err)
		}
		if len(keys) == 0 {
			return nil, ErrNoEligibleResource
		}
		offer.Keys = keys
	}
	return offer, nil
}

// Redeem resolves the code's reward kind and runs the matching flow.
// resourceID is only used for extension rewards.
func (s *RedemptionService) Redeem(ctx context.Context, code string, userID int64, resourceID string) (*model.Redemption, error) {
	code = strings.TrimSpace(code)
	if code == "" || userID <= 0 {
		return nil, ErrInvalidRequest
	}

	item, err := s.itemRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, wrapStore("get item", err)
	}
	if item == nil {
		return nil, ErrCodeNotFound
	}
	reward, err := item.Reward()
	if err != nil {
		return nil, err
	}

	switch reward.(type) {
	case model.BalanceReward:
		return s.RedeemBalance(ctx, code, userID)
	case model.ExtensionReward:
		return s.RedeemExtension(ctx, code, userID, resourceID)
	default:
		return nil, ErrInvalidReward
	}
}

// RedeemBalance credits the item's amount to the user. The credit, the
// audit payment, the usage increment and the receipt commit together or
// not at all.
func (s *RedemptionService) RedeemBalance(ctx context.Context, code string, userID int64) (red *model.Redemption, err error) {
	ctx, span := s.tracer.Start(ctx, "coupon.RedeemBalance", trace.WithAttributes(
		attribute.String("coupon.code", code),
		attribute.Int64("user.id", userID),
	))
	start := s.now()
	defer func() { s.finish(ctx, span, flowBalance, start, red, err) }()

	code = strings.TrimSpace(code)
	if code == "" || userID <= 0 {
		return nil, ErrInvalidRequest
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	item, reward, err := s.lockAndValidate(ctx, tx, code, userID)
	if err != nil {
		return nil, err
	}
	balance, ok := reward.(model.BalanceReward)
	if !ok {
		return nil, ErrWrongFlow
	}

	if err := s.ledger.Credit(ctx, tx, userID, balance.Amount); err != nil {
		return nil, effectErr("credit balance", err)
	}
	if err := s.claim(ctx, tx, item, userID); err != nil {
		return nil, err
	}
	if err := s.ledger.RecordPayment(ctx, tx, userID, balance.Amount, PaymentSource); err != nil {
		return nil, effectErr("record payment", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapStore("commit", err)
	}

	amount := balance.Amount
	red = &model.Redemption{
		GroupID:      item.GroupID,
		ItemID:       item.ID,
		Code:         item.Code,
		UserID:       userID,
		RewardKind:   model.RewardBalance,
		RewardAmount: &amount,
	}
	s.announce(ctx, red)
	return red, nil
}

// RedeemExtension extends one of the user's keys by the item's days.
//
// Inside one transaction the item row and the key row are locked, the usage
// receipt is written (which serializes concurrent attempts by the same user
// on the same group) and only then is the remote renewal called. A journal
// entry committed before the call lets ReconcilePending finish the
// redemption if the process dies between the renewal and the commit.
func (s *RedemptionService) RedeemExtension(ctx context.Context, code string, userID int64, resourceID string) (red *model.Redemption, err error) {
	ctx, span := s.tracer.Start(ctx, "coupon.RedeemExtension", trace.WithAttributes(
		attribute.String("coupon.code", code),
		attribute.Int64("user.id", userID),
		attribute.String("key.client_id", resourceID),
	))
	start := s.now()
	defer func() { s.finish(ctx, span, flowExtension, start, red, err) }()

	code = strings.TrimSpace(code)
	resourceID = strings.TrimSpace(resourceID)
	if code == "" || userID <= 0 {
		return nil, ErrInvalidRequest
	}

	// Reject before locking anything when there is nothing to extend.
	active, err := s.keyRepo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, wrapStore("list keys", err)
	}
	if len(active) == 0 {
		return nil, ErrNoEligibleResource
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	item, reward, err := s.lockAndValidate(ctx, tx, code, userID)
	if err != nil {
		return nil, err
	}
	extension, ok := reward.(model.ExtensionReward)
	if !ok {
		return nil, ErrWrongFlow
	}

	if resourceID == "" {
		return nil, ErrResourceUnavailable
	}
	key, err := s.keyRepo.GetForUpdate(ctx, tx, userID, resourceID)
	if err != nil {
		return nil, wrapStore("lock key", err)
	}
	if key == nil || key.IsFrozen {
		return nil, ErrResourceUnavailable
	}

	newExpiry := NewExpiry(s.now().UnixMilli(), key.ExpiryTime, extension.Days)

	if err := s.claim(ctx, tx, item, userID); err != nil {
		return nil, err
	}

	entry := &model.EffectJournalEntry{
		ID:          ulid.Make().String(),
		GroupID:     item.GroupID,
		ItemID:      item.ID,
		UserID:      userID,
		ResourceID:  key.ClientID,
		NewExpiryMS: newExpiry,
		Status:      model.EffectPending,
	}
	if err := s.journal.Insert(ctx, entry); err != nil {
		return nil, wrapStore("journal renewal", err)
	}

	if err := s.renewer.Renew(ctx, renewRequest(entry, key)); err != nil {
		if markErr := s.journal.SetStatus(context.WithoutCancel(ctx), nil, entry.ID, model.EffectFailed); markErr != nil {
			log.Error().Err(markErr).Str("journal_id", entry.ID).Msg("failed to mark renewal as failed")
		}
		return nil, effectErr("renew key", err)
	}

	if err := s.keyRepo.UpdateExpiry(ctx, tx, key.ClientID, newExpiry); err != nil {
		return nil, s.afterRenewal(entry, wrapStore("update key expiry", err))
	}
	if err := s.journal.SetStatus(ctx, tx, entry.ID, model.EffectApplied); err != nil {
		return nil, s.afterRenewal(entry, wrapStore("mark journal applied", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, s.afterRenewal(entry, wrapStore("commit", err))
	}

	days := extension.Days
	red = &model.Redemption{
		GroupID:    item.GroupID,
		ItemID:     item.ID,
		Code:       item.Code,
		UserID:     userID,
		RewardKind: model.RewardExtension,
		Days:       &days,
		ResourceID: key.ClientID,
		NewExpiry:  &newExpiry,
	}
	s.announce(ctx, red)
	return red, nil
}

// lockAndValidate locks the item row and runs the ordered checks:
// code exists, limit not exhausted, no receipt for (group, user). The
// receipt lookup locks the existing row, if any.
func (s *RedemptionService) lockAndValidate(ctx context.Context, tx pgx.Tx, code string, userID int64) (*model.CouponGroupItem, model.Reward, error) {
	item, err := s.itemRepo.GetByCodeForUpdate(ctx, tx, code)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return nil, nil, ErrCodeNotFound
		}
		return nil, nil, wrapStore("lock item", err)
	}

	used, err := s.usageRepo.ExistsForUpdate(ctx, tx, item.GroupID, userID)
	if err != nil {
		return nil, nil, wrapStore("check usage", err)
	}
	if err := rejection(item, used); err != nil {
		return nil, nil, err
	}

	reward, err := item.Reward()
	if err != nil {
		return nil, nil, err
	}
	return item, reward, nil
}

// rejection applies the limit check before the ledger check. A user who
// already holds the receipt is told so even when their own redemption was
// the one that exhausted the item.
func rejection(item *model.CouponGroupItem, used bool) error {
	switch {
	case item.Exhausted() && used:
		return ErrAlreadyRedeemed
	case item.Exhausted():
		return ErrLimitExhausted
	case used:
		return ErrAlreadyRedeemed
	}
	return nil
}

// claim bumps the usage counter and writes the receipt. A concurrent
// receipt for the same (group, user) surfaces here as ErrAlreadyRedeemed.
func (s *RedemptionService) claim(ctx context.Context, tx pgx.Tx, item *model.CouponGroupItem, userID int64) error {
	if err := s.itemRepo.IncrementUsage(ctx, tx, item.ID); err != nil {
		return wrapStore("increment usage", err)
	}
	if err := s.usageRepo.Insert(ctx, tx, item.GroupID, userID, item.ID); err != nil {
		if errors.Is(err, ErrAlreadyRedeemed) {
			return ErrAlreadyRedeemed
		}
		return wrapStore("insert usage", err)
	}
	return nil
}

func (s *RedemptionService) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w: %w", ErrTemporarilyUnavailable, err)
	}
	if err := database.SetLockTimeout(ctx, tx, s.lockTimeout); err != nil {
		_ = tx.Rollback(ctx)
		return nil, wrapStore("begin tx", err)
	}
	return tx, nil
}

// afterRenewal logs a local failure that happened after the remote renewal
// succeeded. The journal entry stays pending for the reconciler.
func (s *RedemptionService) afterRenewal(entry *model.EffectJournalEntry, err error) error {
	log.Error().
		Err(err).
		Str("journal_id", entry.ID).
		Int64("user_id", entry.UserID).
		Str("resource_id", entry.ResourceID).
		Msg("key renewed remotely but local commit failed, left for reconciliation")
	return err
}

func (s *RedemptionService) announce(ctx context.Context, red *model.Redemption) {
	group, err := s.groupRepo.GetByID(ctx, red.GroupID)
	if err == nil && group != nil {
		red.GroupName = group.Name
	}

	if s.publisher == nil {
		return
	}
	ev := model.RedemptionEvent{
		GroupID:      red.GroupID,
		GroupName:    red.GroupName,
		ItemID:       red.ItemID,
		Code:         red.Code,
		UserID:       red.UserID,
		RewardKind:   red.RewardKind,
		RewardAmount: red.RewardAmount,
		Days:         red.Days,
		ResourceID:   red.ResourceID,
		NewExpiry:    red.NewExpiry,
		RedeemedAt:   s.now().UTC(),
	}
	if err := s.publisher.PublishRedemption(ctx, ev); err != nil {
		log.Warn().Err(err).Int64("group_id", red.GroupID).Int64("user_id", red.UserID).Msg("failed to publish redemption event")
	}
}

func (s *RedemptionService) finish(ctx context.Context, span trace.Span, flow string, start time.Time, red *model.Redemption, err error) {
	defer span.End()

	outcome := "success"
	if err != nil {
		outcome = string(Kind(err))
		span.SetAttributes(attribute.String("coupon.outcome", outcome))
		if IsRejection(err) {
			span.SetStatus(codes.Ok, outcome)
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveRedemption(flow, outcome, s.now().Sub(start))
	}

	switch {
	case err == nil:
		log.Info().
			Str("flow", flow).
			Int64("group_id", red.GroupID).
			Int64("item_id", red.ItemID).
			Str("code", red.Code).
			Int64("user_id", red.UserID).
			Str("resource_id", red.ResourceID).
			Msg("coupon redeemed")
	case IsRejection(err) || errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrWrongFlow):
		log.Debug().Err(err).Str("flow", flow).Str("outcome", outcome).Msg("coupon redemption rejected")
	default:
		log.Error().Err(err).Str("flow", flow).Str("outcome", outcome).Msg("coupon redemption failed")
	}
}

func renewRequest(entry *model.EffectJournalEntry, key *model.Key) model.RenewRequest {
	return model.RenewRequest{
		IdempotencyKey: entry.ID,
		ServerID:       key.ServerID,
		ClientID:       key.ClientID,
		Email:          key.Email,
		NewExpiryTime:  entry.NewExpiryMS,
	}
}

// wrapStore keeps sentinels as they are and tags transient store faults
// with ErrTemporarilyUnavailable.
func wrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if database.IsTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrTemporarilyUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func effectErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrExternalEffectFailed, err)
}

// Result converts a redemption outcome into the caller-facing contract.
func Result(red *model.Redemption, err error) model.RedemptionResult {
	if err != nil {
		kind := string(Kind(err))
		return model.RedemptionResult{Success: false, ErrorKind: &kind}
	}
	return model.RedemptionResult{
		Success:      true,
		RewardAmount: red.RewardAmount,
		NewExpiry:    red.NewExpiry,
	}
}
