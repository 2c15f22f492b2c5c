package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-groups/internal/model"
)

const reconcileBatchSize = 100

// ReconcileReport counts what one reconciliation pass did.
type ReconcileReport struct {
	Scanned   int `json:"scanned"`
	Applied   int `json:"applied"`
	Abandoned int `json:"abandoned"`
	Skipped   int `json:"skipped"`
	Retained  int `json:"retained"`
}

// ReconcilePending finishes extension redemptions whose journal entry is
// still pending after olderThan. For each entry it either replays the
// identical renewal and commits the redemption, or marks the entry
// abandoned when the redemption can no longer be applied. Entries that hit
// a transient failure stay pending for the next pass.
func (s *RedemptionService) ReconcilePending(ctx context.Context, olderThan time.Duration) (*ReconcileReport, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.ReconcilePending")
	defer span.End()

	entries, err := s.journal.ListPending(ctx, s.now().Add(-olderThan), reconcileBatchSize)
	if err != nil {
		return nil, wrapStore("list pending renewals", err)
	}

	report := &ReconcileReport{Scanned: len(entries)}
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome, err := s.reconcileEntry(ctx, &entries[i])
		if err != nil {
			log.Warn().Err(err).Str("journal_id", entries[i].ID).Msg("pending renewal left for next pass")
			outcome = "retained"
		}
		switch outcome {
		case "applied":
			report.Applied++
		case "abandoned":
			report.Abandoned++
		case "skipped":
			report.Skipped++
		default:
			report.Retained++
		}
		if s.metrics != nil {
			s.metrics.ObserveReconcile(outcome)
		}
	}

	if report.Scanned > 0 {
		log.Info().
			Int("scanned", report.Scanned).
			Int("applied", report.Applied).
			Int("abandoned", report.Abandoned).
			Int("retained", report.Retained).
			Msg("pending renewals reconciled")
	}
	return report, nil
}

// reconcileEntry takes the item lock before the journal row lock, the same
// order a live redemption acquires them in.
func (s *RedemptionService) reconcileEntry(ctx context.Context, entry *model.EffectJournalEntry) (string, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	item, err := s.itemRepo.GetByIDForUpdate(ctx, tx, entry.ItemID)
	if err != nil && !errors.Is(err, ErrCodeNotFound) {
		return "", wrapStore("lock item", err)
	}

	current, err := s.journal.GetForUpdate(ctx, tx, entry.ID)
	if err != nil {
		return "", wrapStore("lock journal entry", err)
	}
	if current == nil || current.Status != model.EffectPending {
		return "skipped", nil
	}

	abandon := func(reason string) (string, error) {
		if err := s.journal.SetStatus(ctx, tx, entry.ID, model.EffectAbandoned); err != nil {
			return "", wrapStore("abandon journal entry", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return "", wrapStore("commit", err)
		}
		log.Error().
			Str("journal_id", entry.ID).
			Int64("user_id", entry.UserID).
			Str("resource_id", entry.ResourceID).
			Str("reason", reason).
			Msg("pending renewal abandoned")
		return "abandoned", nil
	}

	if item == nil {
		return abandon("item deleted")
	}
	used, err := s.usageRepo.ExistsForUpdate(ctx, tx, item.GroupID, entry.UserID)
	if err != nil {
		return "", wrapStore("check usage", err)
	}
	if used {
		return abandon("already redeemed")
	}
	if item.Exhausted() {
		return abandon("limit exhausted")
	}

	key, err := s.keyRepo.GetForUpdate(ctx, tx, entry.UserID, entry.ResourceID)
	if err != nil {
		return "", wrapStore("lock key", err)
	}
	if key == nil || key.IsFrozen {
		return abandon("key unavailable")
	}

	if err := s.claim(ctx, tx, item, entry.UserID); err != nil {
		return "", err
	}
	if err := s.renewer.Renew(ctx, renewRequest(current, key)); err != nil {
		return "", effectErr("renew key", err)
	}
	if err := s.keyRepo.UpdateExpiry(ctx, tx, key.ClientID, current.NewExpiryMS); err != nil {
		return "", wrapStore("update key expiry", err)
	}
	if err := s.journal.SetStatus(ctx, tx, entry.ID, model.EffectApplied); err != nil {
		return "", wrapStore("mark journal applied", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", wrapStore("commit", err)
	}

	log.Info().
		Str("journal_id", entry.ID).
		Int64("group_id", item.GroupID).
		Int64("user_id", entry.UserID).
		Str("resource_id", key.ClientID).
		Msg("pending renewal applied")
	return "applied", nil
}

// RunReconciler calls ReconcilePending every interval until ctx is done.
// A non-positive interval disables reconciliation.
func (s *RedemptionService) RunReconciler(ctx context.Context, interval, olderThan time.Duration) {
	if interval <= 0 {
		log.Warn().Msg("renewal reconciler disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ReconcilePending(ctx, olderThan); err != nil {
				log.Error().Err(err).Msg("reconcile pending renewals")
			}
		}
	}
}
