package repo

import (
	"context"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"shiporch/internal/estimate"
	"shiporch/internal/zone"
)

func Test_Estimates_Get(t *testing.T) {
	mock := newMock(t)
	zones := `{"local":{"zone":"local","label":"Local","destination_pincode":"560002","available":true,"carrier":"swift","base_cost":"40","price":"46"}}`
	mock.ExpectQuery(regexp.QuoteMeta(qEstimate)).WithArgs("v-1", "560001", "0.5").WillReturnRows(
		pgxmock.NewRows([]string{"vendor_id", "origin_pincode", "slab_key", "min_price", "max_price", "zone_data", "created_at"}).
			AddRow("v-1", "560001", "0.5", "46.00", "46.00", zones, tNow()),
	)
	mock.ExpectQuery(regexp.QuoteMeta(qEstimate)).WithArgs("v-1", "560001", "1").WillReturnError(pgx.ErrNoRows)

	r := NewEstimates(mock)
	e, err := r.Get(context.Background(), "v-1", "560001", "0.5")
	require.NoError(t, err)
	require.True(t, e.MinPrice.Equal(decimal.NewFromInt(46)))
	require.Equal(t, "swift", e.Zones[zone.Local].Carrier)
	require.True(t, e.Zones[zone.Local].Price.Equal(decimal.NewFromInt(46)))

	_, err = r.Get(context.Background(), "v-1", "560001", "1")
	require.ErrorIs(t, err, estimate.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func Test_Estimates_Upsert(t *testing.T) {
	mock := newMock(t)
	e := estimate.Entry{
		VendorID:      "v-1",
		OriginPincode: "560001",
		SlabKey:       "0.5",
		MinPrice:      decimal.RequireFromString("46"),
		MaxPrice:      decimal.RequireFromString("92.5"),
		Zones:         map[zone.Zone]estimate.ZoneQuote{},
		CreatedAt:     tNow(),
	}
	mock.ExpectExec(regexp.QuoteMeta(qUpsertEstimate)).
		WithArgs("v-1", "560001", "0.5", "46.00", "92.50", "{}", tNow()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewEstimates(mock).Upsert(context.Background(), e))
	require.NoError(t, mock.ExpectationsWereMet())
}

func Test_Estimates_Delete(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(qDeleteVendorEstimates)).WithArgs("v-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(regexp.QuoteMeta(qDeleteAllEstimates)).
		WillReturnResult(pgxmock.NewResult("DELETE", 10))

	r := NewEstimates(mock)
	n, err := r.Delete(context.Background(), "v-1")
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	n, err = r.Delete(context.Background(), "")
	require.NoError(t, err)
	require.EqualValues(t, 10, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
