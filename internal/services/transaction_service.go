// Package services orchestrates shopping-list flows across storage, pricing
// and the sync queue.
package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"canasta/internal/core"
	"canasta/internal/ingest"
	"canasta/internal/log"
	"canasta/internal/pricing"
)

// TransactionStore is the storage surface the service needs.
type TransactionStore interface {
	ListItems(ctx context.Context) ([]core.Item, error)
	AccountExists(ctx context.Context, id string) (bool, error)
	CategoryExists(ctx context.Context, id string) (bool, error)
	CreateTransaction(ctx context.Context, sub core.Submission) (string, error)
	Close() error
}

// SyncPublisher pushes a transaction id onto the ledger sync queue.
type SyncPublisher interface {
	PublishTransactionSync(ctx context.Context, id string, version int64) error
	Close() error
}

// TransactionService orchestrates preview and submission across SQLite and
// AMQP.
type TransactionService struct {
	store     TransactionStore
	previews  *pricing.Builder
	publisher SyncPublisher
	logger    *log.Logger
}

func NewTransactionService(store TransactionStore, previews *pricing.Builder, publisher SyncPublisher, logger *log.Logger) *TransactionService {
	return &TransactionService{
		store:     store,
		previews:  previews,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentTransaction),
	}
}

// Catalog loads the item catalog as a lookup for the parsers.
func (s *TransactionService) Catalog(ctx context.Context) (ingest.CatalogMap, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	catalog := make(ingest.CatalogMap, len(items))
	for _, it := range items {
		catalog[it.ID] = it
	}
	return catalog, nil
}

// Preview prices and classifies parsed lines for a date.
func (s *TransactionService) Preview(ctx context.Context, lines []core.InputLine, date core.Date, discountPct decimal.Decimal) (pricing.Preview, error) {
	return s.previews.Build(ctx, lines, date, discountPct)
}

// Submit validates and persists a reviewed preview, then queues the ledger
// sync. Validation failure means nothing was written. A publish failure is
// logged and swallowed; the worker's pending sweep picks the transaction up
// later.
func (s *TransactionService) Submit(ctx context.Context, meta core.SubmissionMeta, lines []core.PreviewLine) (string, error) {
	if err := s.checkReferences(ctx, meta); err != nil {
		return "", err
	}

	sub, err := core.BuildSubmission(lines, meta)
	if err != nil {
		return "", err
	}

	id, err := s.store.CreateTransaction(ctx, sub)
	if err != nil {
		return "", fmt.Errorf("save transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Transaction created",
		log.FieldTransactionID, id,
		log.FieldLineCount, len(sub.Lines),
		log.FieldTotal, sub.Totals.AfterDiscount.String())

	if s.publisher == nil {
		s.logger.WarnContext(ctx, "Sync publisher not available, relying on pending sweep",
			log.FieldTransactionID, id)
		return id, nil
	}
	if err := s.publisher.PublishTransactionSync(ctx, id, 1); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish sync message",
			log.FieldTransactionID, id,
			log.FieldError, err.Error())
	}

	return id, nil
}

// Import runs the whole flow for a pre-parsed shopping list: preview against
// the recorded prices, then submit with default resolutions. Conflicts make
// the import fail with a validation error instead of silently picking a
// side.
func (s *TransactionService) Import(ctx context.Context, lines []core.InputLine, meta core.SubmissionMeta) (string, pricing.Preview, error) {
	preview, err := s.previews.Build(ctx, lines, meta.Date, meta.Discount)
	if err != nil {
		return "", pricing.Preview{}, err
	}

	id, err := s.Submit(ctx, meta, preview.Lines)
	if err != nil {
		return "", preview, err
	}
	return id, preview, nil
}

// checkReferences verifies account and category ids against the database.
// Missing ids surface as a validation error, not a storage error.
func (s *TransactionService) checkReferences(ctx context.Context, meta core.SubmissionMeta) error {
	var problems []string

	if meta.AccountID != "" {
		ok, err := s.store.AccountExists(ctx, meta.AccountID)
		if err != nil {
			return fmt.Errorf("check account: %w", err)
		}
		if !ok {
			problems = append(problems, fmt.Sprintf("unknown account %q", meta.AccountID))
		}
	}
	if meta.CategoryID != "" {
		ok, err := s.store.CategoryExists(ctx, meta.CategoryID)
		if err != nil {
			return fmt.Errorf("check category: %w", err)
		}
		if !ok {
			problems = append(problems, fmt.Sprintf("unknown category %q", meta.CategoryID))
		}
	}

	if len(problems) > 0 {
		return &core.ValidationError{Problems: problems}
	}
	return nil
}

// Close closes both storage and AMQP connections.
func (s *TransactionService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close transaction service: %v", errs)
	}
	return nil
}
