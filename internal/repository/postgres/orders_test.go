package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*OrderRepo, *CustomerRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewOrderRepo(db), NewCustomerRepo(db), mock
}

var orderColumns = []string{
	"id", "order_number", "customer_name", "customer_phone", "product_type",
	"capacity", "genres", "artists", "status",
	"shipping_name", "shipping_address", "shipping_city",
	"confirmed_at", "created_at",
}

func TestFindOrdersByPhone(t *testing.T) {
	orders, _, mock := newMockDB(t)
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	confirmed := created.Add(2 * time.Hour)

	mock.ExpectQuery(`SELECT .+ FROM orders`).
		WithArgs("+16175551234").
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow("o1", "TA-1001", "Ana", "+16175551234", "music",
				"64GB", `{cumbia,salsa}`, `{Selena}`, "confirmed",
				"Ana", "12 Main St", "Boston",
				confirmed, created).
			AddRow("o2", "TA-1002", "Ana", "+16175551234", "video",
				"128GB", `{}`, `{}`, "pending",
				"", "", "",
				nil, created))

	got, err := orders.FindOrdersByPhone(context.Background(), "+16175551234")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "o1", got[0].ID)
	assert.Equal(t, []string{"cumbia", "salsa"}, []string(got[0].Genres))
	assert.Equal(t, "confirmed", got[0].Status)
	require.NotNil(t, got[0].ConfirmedAt)
	assert.Equal(t, confirmed, *got[0].ConfirmedAt)
	assert.True(t, got[0].Shipping.Complete())

	assert.Nil(t, got[1].ConfirmedAt)
	assert.False(t, got[1].Shipping.Complete())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOrdersByPhone_NoRows(t *testing.T) {
	orders, _, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT .+ FROM orders`).
		WithArgs("+10000000000").
		WillReturnRows(sqlmock.NewRows(orderColumns))

	got, err := orders.FindOrdersByPhone(context.Background(), "+10000000000")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasConfirmedOrActiveOrder(t *testing.T) {
	orders, _, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("+16175551234", pq.Array(activeOrderStatuses)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	has, err := orders.HasConfirmedOrActiveOrder(context.Background(), "+16175551234")
	require.NoError(t, err)
	assert.True(t, has)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCustomerByPhone(t *testing.T) {
	_, customers, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT .+ FROM customers`).
		WithArgs("+16175551234").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "phone", "address", "city"}).
			AddRow("c1", "Ana", "+16175551234", "12 Main St", "Boston"))

	got, err := customers.FindCustomerByPhone(context.Background(), "+16175551234")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ana", got.Name)
	assert.Equal(t, "Boston", got.City)
}

func TestFindCustomerByPhone_Missing(t *testing.T) {
	_, customers, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT .+ FROM customers`).
		WithArgs("+10000000000").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "phone", "address", "city"}))

	got, err := customers.FindCustomerByPhone(context.Background(), "+10000000000")
	require.NoError(t, err)
	assert.Nil(t, got)
}
