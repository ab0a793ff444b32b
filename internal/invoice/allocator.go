// Package invoice hands out gap-free invoice numbers from per-device ranges.
package invoice

import (
	"context"
	"strings"

	"stokraja/backend/internal/domain"
	"stokraja/backend/internal/store"
)

type Allocator struct {
	repo store.Repository
}

func NewAllocator(repo store.Repository) *Allocator {
	return &Allocator{repo: repo}
}

// CreateSeries registers a number range for a device. A fresh series has
// handed out nothing yet, so its cursor sits just below Start.
func (a *Allocator) CreateSeries(ctx context.Context, req domain.InvoiceSeriesCreateRequest) (domain.InvoiceSeries, error) {
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	req.Prefix = strings.TrimSpace(req.Prefix)
	if req.DeviceID == "" || req.Start < 1 || req.End < req.Start {
		return domain.InvoiceSeries{}, store.ErrInvalidInput
	}

	created, err := a.repo.CreateInvoiceSeries(ctx, domain.InvoiceSeries{
		DeviceID: req.DeviceID,
		Prefix:   req.Prefix,
		Start:    req.Start,
		End:      req.End,
		Current:  req.Start - 1,
	})
	if err != nil {
		return domain.InvoiceSeries{}, err
	}
	return *created, nil
}

func (a *Allocator) GetSeries(ctx context.Context, deviceID string) (domain.InvoiceSeries, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return domain.InvoiceSeries{}, store.ErrInvalidInput
	}
	series, err := a.repo.GetInvoiceSeries(ctx, deviceID)
	if err != nil {
		return domain.InvoiceSeries{}, err
	}
	return *series, nil
}

// Allocate returns the next number in the device's series. The store advances
// the cursor transactionally, so concurrent callers never share a number and
// an exhausted series stays untouched.
func (a *Allocator) Allocate(ctx context.Context, deviceID string) (string, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return "", store.ErrInvalidInput
	}
	return a.repo.AllocateInvoiceNumber(ctx, deviceID)
}
