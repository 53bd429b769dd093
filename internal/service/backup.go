package service

import (
	"context"
	"fmt"
	"io"

	"github.com/facucarcelero/comandero/internal/backup"
	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/events"
	"github.com/facucarcelero/comandero/internal/store"
)

// ExportBackup writes the full dataset, settings included, to w.
func (s *Service) ExportBackup(ctx context.Context, w io.Writer) (backup.Manifest, error) {
	if err := requireAdmin(ctx); err != nil {
		return backup.Manifest{}, err
	}

	data, err := s.repo.Snapshot(ctx)
	if err != nil {
		return backup.Manifest{}, err
	}
	settings, err := s.Settings.Current(ctx)
	if err != nil {
		return backup.Manifest{}, err
	}
	data.Settings = &settings

	manifest, err := backup.Write(w, data)
	if err != nil {
		return backup.Manifest{}, err
	}
	s.recorder.logAudit(ctx, "backup_export", "backup", 0, fmt.Sprintf("id=%s,sha256=%s", manifest.ID, manifest.SHA256))
	return manifest, nil
}

// ImportBackup verifies the file's checksum and replaces the dataset.
func (s *Service) ImportBackup(ctx context.Context, r io.Reader) (backup.Manifest, error) {
	if err := requireAdmin(ctx); err != nil {
		return backup.Manifest{}, err
	}

	data, manifest, err := backup.Read(r)
	if err != nil {
		return manifest, fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
	}
	if err := validateDataset(data); err != nil {
		return manifest, err
	}
	if err := s.repo.Restore(ctx, data); err != nil {
		return manifest, err
	}

	s.recorder.logAudit(ctx, "backup_import", "backup", 0, fmt.Sprintf("id=%s,orders=%d,products=%d", manifest.ID, manifest.Orders, manifest.Products))
	s.recorder.emit(ctx, events.New(events.BackupRestored, "backup", 0, manifest))
	return manifest, nil
}

func validateDataset(data domain.Dataset) error {
	products := make(map[int64]struct{}, len(data.Products))
	for _, p := range data.Products {
		if p.ID < 1 {
			return invalidInput("product without id")
		}
		if _, dup := products[p.ID]; dup {
			return invalidInput("duplicate product id %d", p.ID)
		}
		if err := store.ValidateProduct(p); err != nil {
			return fmt.Errorf("product %d: %w", p.ID, err)
		}
		products[p.ID] = struct{}{}
	}
	sessions := make(map[int64]struct{}, len(data.Sessions))
	open := 0
	for _, session := range data.Sessions {
		if _, dup := sessions[session.ID]; dup {
			return invalidInput("duplicate session id %d", session.ID)
		}
		sessions[session.ID] = struct{}{}
		if session.Status == domain.SessionStatusOpen {
			open++
		}
	}
	if open > 1 {
		return invalidInput("backup has %d open sessions", open)
	}
	orders := make(map[int64]struct{}, len(data.Orders))
	payments := make(map[int64]struct{})
	for _, order := range data.Orders {
		if _, dup := orders[order.ID]; dup {
			return invalidInput("duplicate order id %d", order.ID)
		}
		orders[order.ID] = struct{}{}
		if _, ok := sessions[order.SessionID]; !ok {
			return invalidInput("order %d references unknown session %d", order.ID, order.SessionID)
		}
		if !domain.IsOrderStatus(order.Status) {
			return invalidInput("order %d has unknown status %q", order.ID, order.Status)
		}
		for _, line := range order.Lines {
			if _, ok := products[line.ProductID]; !ok {
				return invalidInput("order %d references unknown product %d", order.ID, line.ProductID)
			}
			if line.Qty < 1 {
				return invalidInput("order %d has qty %d for product %d", order.ID, line.Qty, line.ProductID)
			}
		}
		for _, payment := range order.Payments {
			if _, dup := payments[payment.ID]; dup {
				return invalidInput("duplicate payment id %d", payment.ID)
			}
			payments[payment.ID] = struct{}{}
			if payment.AmountCents <= 0 {
				return invalidInput("payment %d has non-positive amount", payment.ID)
			}
			if !domain.IsPaymentMethod(payment.Method) {
				return invalidInput("payment %d has unknown method %q", payment.ID, payment.Method)
			}
		}
	}
	if data.Settings != nil {
		if err := validateSettings(*data.Settings); err != nil {
			return err
		}
	}
	return nil
}
