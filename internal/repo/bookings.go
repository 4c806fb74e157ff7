package repo

import (
	"context"
	"fmt"

	"shiporch/internal/booking"
)

type BookingRecords struct {
	base
}

func NewBookingRecords(pool DB) *BookingRecords {
	return &BookingRecords{base: newBase(pool)}
}

var _ booking.RecordStore = (*BookingRecords)(nil)

func (r *BookingRecords) Get(ctx context.Context, orderID string) (booking.Record, error) {
	if !validID(orderID) {
		return booking.Record{}, fmt.Errorf("%w: %q", ErrBadID, orderID)
	}
	ctx, cancel := r.withQ(ctx)
	defer cancel()

	var rec booking.Record
	err := r.Pool.QueryRow(ctx, qBooking, orderID).Scan(
		&rec.OrderID, &rec.Carrier, &rec.ShipmentID, &rec.AWB, &rec.Courier, &rec.LabelURL, &rec.BookedAt,
	)
	if errorsIsNoRows(err) {
		return booking.Record{}, booking.ErrRecordNotFound
	}
	if err != nil {
		return booking.Record{}, fmt.Errorf("select booking record %s: %w", orderID, err)
	}
	return rec, nil
}

// Insert relies on ON CONFLICT (order_id) so concurrent writers cannot both
// win. A clash on the (carrier, awb) index is reported as ErrConflict.
func (r *BookingRecords) Insert(ctx context.Context, rec booking.Record) (bool, error) {
	if !validID(rec.OrderID) {
		return false, fmt.Errorf("%w: %q", ErrBadID, rec.OrderID)
	}
	ctx, cancel := r.withQ(ctx)
	defer cancel()

	tag, err := r.Pool.Exec(ctx, qInsertBooking,
		rec.OrderID, rec.Carrier, rec.ShipmentID, rec.AWB, rec.Courier, rec.LabelURL, rec.BookedAt,
	)
	if isUniqueViolation(err) {
		return false, fmt.Errorf("%w: %s awb %s already recorded", ErrConflict, rec.Carrier, rec.AWB)
	}
	if err != nil {
		return false, fmt.Errorf("insert booking record %s: %w", rec.OrderID, err)
	}
	return tag.RowsAffected() == 1, nil
}
