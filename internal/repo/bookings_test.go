package repo

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"shiporch/internal/booking"
)

func sampleRecord() booking.Record {
	return booking.Record{
		OrderID:    "o-1",
		Carrier:    "swift",
		ShipmentID: "S-1",
		AWB:        "AWB1",
		Courier:    "Blue",
		LabelURL:   "https://labels/AWB1.pdf",
		BookedAt:   tNow(),
	}
}

func recordArgs(r booking.Record) []any {
	return []any{r.OrderID, r.Carrier, r.ShipmentID, r.AWB, r.Courier, r.LabelURL, r.BookedAt}
}

func Test_BookingRecords_Get(t *testing.T) {
	rec := sampleRecord()
	mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(qBooking)).WithArgs("o-1").WillReturnRows(
		pgxmock.NewRows([]string{"order_id", "carrier", "shipment_id", "awb", "courier", "label_url", "booked_at"}).
			AddRow(recordArgs(rec)...),
	)
	mock.ExpectQuery(regexp.QuoteMeta(qBooking)).WithArgs("o-2").WillReturnError(pgx.ErrNoRows)

	r := NewBookingRecords(mock)
	got, err := r.Get(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, rec, got)

	_, err = r.Get(context.Background(), "o-2")
	require.ErrorIs(t, err, booking.ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func Test_BookingRecords_Insert(t *testing.T) {
	rec := sampleRecord()
	mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(qInsertBooking)).WithArgs(recordArgs(rec)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(qInsertBooking)).WithArgs(recordArgs(rec)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	r := NewBookingRecords(mock)
	ok, err := r.Insert(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.Insert(context.Background(), rec)
	require.NoError(t, err)
	require.False(t, ok, "second insert for the same order is a no-op")
	require.NoError(t, mock.ExpectationsWereMet())
}

func Test_BookingRecords_Insert_Errors(t *testing.T) {
	rec := sampleRecord()
	mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(qInsertBooking)).WithArgs(recordArgs(rec)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "booking_records_carrier_awb_key"})
	mock.ExpectExec(regexp.QuoteMeta(qInsertBooking)).WithArgs(recordArgs(rec)...).
		WillReturnError(errors.New("conn reset"))

	r := NewBookingRecords(mock)
	_, err := r.Insert(context.Background(), rec)
	require.ErrorIs(t, err, ErrConflict)

	_, err = r.Insert(context.Background(), rec)
	require.ErrorContains(t, err, "conn reset")

	_, err = r.Insert(context.Background(), booking.Record{})
	require.ErrorIs(t, err, ErrBadID)
	require.NoError(t, mock.ExpectationsWereMet())
}
