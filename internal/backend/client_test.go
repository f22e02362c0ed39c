package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waste-portal/internal/model"
)

const paymentID = "65f1c0ffee0000000000abcd"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", nil)
}

func TestListUsers_ForwardsToken(t *testing.T) {
	var gotAuth, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode([]model.User{{ID: "u1", FirstName: "Kamal", ResidenceID: "r1"}})
	})

	users, err := c.ListUsers(WithToken(context.Background(), "tok"))

	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/users", gotPath)
	require.Len(t, users, 1)
	assert.Equal(t, "Kamal", users[0].FirstName)
}

func TestNoTokenNoHeader(t *testing.T) {
	var hasAuth bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.ListWasteTypes(context.Background())

	require.NoError(t, err)
	assert.False(t, hasAuth)
}

func TestAPIErrorMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Timeslot already booked"}`))
	})

	_, err := c.CreateSchedule(context.Background(), model.Schedule{FirstName: "A"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Timeslot already booked", Message(err, "Error submitting form."))
}

func TestAPIErrorWithoutBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := c.DeletePayment(context.Background(), paymentID)

	require.Error(t, err)
	assert.Equal(t, "Error submitting form.", Message(err, "Error submitting form."))
	assert.Equal(t, "fallback", Message(errors.New("dial tcp: refused"), "fallback"))
}

func TestInvalidIDNeverSent(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	err := c.UpdatePayment(context.Background(), "../users", model.Payment{})
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = c.GetSchedule(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidID)

	assert.False(t, called)
}

func TestUpdatePayment_SendsBody(t *testing.T) {
	var got model.Payment
	var method, path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.UpdatePayment(context.Background(), paymentID, model.Payment{
		FlatFee:   decimal.NewFromInt(10),
		TotalBill: decimal.NewFromInt(300),
	})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/payments/"+paymentID, path)
	assert.True(t, got.TotalBill.Equal(decimal.NewFromInt(300)))
}

func TestCreatePayment_EmptyResponseKeepsInput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	created, err := c.CreatePayment(context.Background(), model.Payment{UserID: "u1", Status: "pending"})

	require.NoError(t, err)
	assert.Equal(t, "u1", created.UserID)
}

func TestCanceledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListPayments(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}
