package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/bus-seat-reservation/internal/api/middleware"
	"github.com/sanosuguru/bus-seat-reservation/internal/application"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/seat"
)

const validBody = `{"seats":[
	{"seatNumber":3,"passengerName":"Rahim","phoneNumber":"0170","email":"rahim@example.com"},
	{"seatNumber":1,"passengerName":"Karim","phoneNumber":"0180","email":"karim@example.com"}
]}`

func newReserveContext(e *echo.Echo, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeReserve(t *testing.T, rec *httptest.ResponseRecorder) ReserveResponse {
	t.Helper()
	var resp ReserveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestReservationHandler_Create(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に予約を作成できる", func(t *testing.T) {
		coordinator := new(MockCoordinator)
		h := NewReservationHandler(coordinator, new(MockQueryService))

		expectedInput := application.ReserveInput{
			SeatNumbers: []int{3, 1},
			Passengers: map[int]reservation.Passenger{
				3: {Name: "Rahim", Phone: "0170", Email: "rahim@example.com"},
				1: {Name: "Karim", Phone: "0180", Email: "karim@example.com"},
			},
			BookedBy: "user-1",
		}
		coordinator.On("Reserve", mock.Anything, expectedInput).Return(&reservation.Transaction{
			ID: "tx-1", SeatNumbers: []int{1, 3}, Status: reservation.StatusCommitted,
		}, nil)

		c, rec := newReserveContext(e, validBody)
		middleware.SetCallerID(c, "user-1")

		err := h.Create(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)
		resp := decodeReserve(t, rec)
		assert.True(t, resp.Success)
		assert.Equal(t, "tx-1", resp.TransactionID)
		assert.Equal(t, []int{1, 3}, resp.SeatNumbers)
		coordinator.AssertExpectations(t)
	})

	t.Run("呼び出し元がなければゲストで予約する", func(t *testing.T) {
		coordinator := new(MockCoordinator)
		h := NewReservationHandler(coordinator, new(MockQueryService))
		coordinator.On("Reserve", mock.Anything, mock.MatchedBy(func(in application.ReserveInput) bool {
			return in.BookedBy == middleware.GuestCaller
		})).Return(&reservation.Transaction{ID: "tx-2", SeatNumbers: []int{1, 3}}, nil)

		c, rec := newReserveContext(e, validBody)
		require.NoError(t, h.Create(c))
		assert.Equal(t, http.StatusCreated, rec.Code)
		coordinator.AssertExpectations(t)
	})

	t.Run("重複した座席番号はドメインの検証に渡す", func(t *testing.T) {
		coordinator := new(MockCoordinator)
		h := NewReservationHandler(coordinator, new(MockQueryService))
		coordinator.On("Reserve", mock.Anything, mock.MatchedBy(func(in application.ReserveInput) bool {
			return len(in.SeatNumbers) == 2 && len(in.Passengers) == 1
		})).Return(nil, fmt.Errorf("%w: %w", reservation.ErrInvalidRequest, reservation.ErrDuplicateSeatNumber))

		body := `{"seats":[
			{"seatNumber":2,"passengerName":"A","phoneNumber":"1","email":"a@example.com"},
			{"seatNumber":2,"passengerName":"B","phoneNumber":"2","email":"b@example.com"}
		]}`
		c, rec := newReserveContext(e, body)
		require.NoError(t, h.Create(c))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, ReasonInvalidRequest, decodeReserve(t, rec).Reason)
	})

	invalidBodies := []struct {
		name string
		body string
	}{
		{"JSONが不正", `{"seats":`},
		{"座席なし", `{"seats":[]}`},
		{"乗客名なし", `{"seats":[{"seatNumber":1,"phoneNumber":"1","email":"a@example.com"}]}`},
		{"電話番号なし", `{"seats":[{"seatNumber":1,"passengerName":"A","email":"a@example.com"}]}`},
		{"メールなし", `{"seats":[{"seatNumber":1,"passengerName":"A","phoneNumber":"1"}]}`},
		{"座席番号なし", `{"seats":[{"passengerName":"A","phoneNumber":"1","email":"a@example.com"}]}`},
	}
	for _, tt := range invalidBodies {
		t.Run(tt.name, func(t *testing.T) {
			coordinator := new(MockCoordinator)
			h := NewReservationHandler(coordinator, new(MockQueryService))

			c, rec := newReserveContext(e, tt.body)
			require.NoError(t, h.Create(c))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeReserve(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, ReasonInvalidRequest, resp.Reason)
			coordinator.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything)
		})
	}

	failures := []struct {
		name       string
		err        error
		wantCode   int
		wantReason string
		conflicts  []int
	}{
		{"座席が埋まっている", seat.NewUnavailableError([]int{3}), http.StatusConflict, ReasonSeatUnavailable, []int{3}},
		{"ストレージ障害", fmt.Errorf("%w: connection reset", reservation.ErrStorageFault), http.StatusServiceUnavailable, ReasonStorageFault, nil},
		{"永続化時の座席競合はストレージ障害", fmt.Errorf("%w: %w", reservation.ErrStorageFault, seat.NewUnavailableError([]int{1})), http.StatusServiceUnavailable, ReasonStorageFault, nil},
		{"確定前に解放された", reservation.ErrTransactionAborted, http.StatusConflict, ReasonTransactionAborted, nil},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			coordinator := new(MockCoordinator)
			h := NewReservationHandler(coordinator, new(MockQueryService))
			coordinator.On("Reserve", mock.Anything, mock.Anything).Return(nil, tt.err)

			c, rec := newReserveContext(e, validBody)
			require.NoError(t, h.Create(c))

			assert.Equal(t, tt.wantCode, rec.Code)
			resp := decodeReserve(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantReason, resp.Reason)
			assert.Equal(t, tt.conflicts, resp.Conflicts)
			assert.Empty(t, resp.TransactionID)
		})
	}

	t.Run("想定外のエラーはエラーハンドラーに渡す", func(t *testing.T) {
		coordinator := new(MockCoordinator)
		h := NewReservationHandler(coordinator, new(MockQueryService))
		boom := errors.New("boom")
		coordinator.On("Reserve", mock.Anything, mock.Anything).Return(nil, boom)

		c, _ := newReserveContext(e, validBody)
		assert.ErrorIs(t, h.Create(c), boom)
	})
}

func TestReservationHandler_Manifest(t *testing.T) {
	e := NewTestEcho()

	newContext := func(id string) (echo.Context, *httptest.ResponseRecorder) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetPath("/api/v1/reservations/:id/manifest")
		c.SetParamNames("id")
		c.SetParamValues(id)
		return c, rec
	}

	t.Run("乗客名簿を返す", func(t *testing.T) {
		query := new(MockQueryService)
		h := NewReservationHandler(new(MockCoordinator), query)
		query.On("Manifest", mock.Anything, "tx-1").Return([]reservation.PassengerRecord{
			{SeatNumber: 1, Passenger: reservation.Passenger{Name: "Karim", Phone: "0180", Email: "karim@example.com"}},
			{SeatNumber: 3, Passenger: reservation.Passenger{Name: "Rahim", Phone: "0170", Email: "rahim@example.com"}},
		}, nil)

		c, rec := newContext("tx-1")
		require.NoError(t, h.Manifest(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp ManifestResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "tx-1", resp.TransactionID)
		require.Len(t, resp.Passengers, 2)
		assert.Equal(t, PassengerResponse{SeatNumber: 1, PassengerName: "Karim", PhoneNumber: "0180", Email: "karim@example.com"}, resp.Passengers[0])
	})

	t.Run("存在しない取引は404", func(t *testing.T) {
		query := new(MockQueryService)
		h := NewReservationHandler(new(MockCoordinator), query)
		query.On("Manifest", mock.Anything, "unknown").Return(nil, reservation.ErrTransactionNotFound)

		c, _ := newContext("unknown")
		err := h.Manifest(c)

		var he *echo.HTTPError
		require.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusNotFound, he.Code)
	})
}

func TestReservationHandler_List(t *testing.T) {
	e := NewTestEcho()
	now := time.Now()
	txs := []*reservation.Transaction{
		{ID: "tx-1", TripID: "trip-1", SeatNumbers: []int{1}, Status: reservation.StatusCommitted, BookedBy: "u1", CreatedAt: now, FinishedAt: &now},
	}

	t.Run("既定の件数で一覧を返す", func(t *testing.T) {
		query := new(MockQueryService)
		h := NewReservationHandler(new(MockCoordinator), query)
		query.On("Transactions", mock.Anything, application.TransactionFilter{Limit: 20}).Return(txs)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations", nil)
		rec := httptest.NewRecorder()
		require.NoError(t, h.List(e.NewContext(req, rec)))

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp []TransactionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, "tx-1", resp[0].ID)
		assert.Equal(t, "committed", resp[0].Status)
		assert.Equal(t, "u1", resp[0].BookedBy)
		assert.NotNil(t, resp[0].FinishedAt)
	})

	t.Run("絞り込み条件を渡す", func(t *testing.T) {
		query := new(MockQueryService)
		h := NewReservationHandler(new(MockCoordinator), query)
		query.On("Transactions", mock.Anything, application.TransactionFilter{
			Status: reservation.StatusAborted, Limit: 100, Offset: 5,
		}).Return([]*reservation.Transaction{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations?status=aborted&limit=500&offset=5", nil)
		rec := httptest.NewRecorder()
		require.NoError(t, h.List(e.NewContext(req, rec)))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
		query.AssertExpectations(t)
	})

	badQueries := []string{"status=pending", "limit=abc", "limit=0", "offset=-1"}
	for _, q := range badQueries {
		t.Run("不正なクエリ "+q, func(t *testing.T) {
			h := NewReservationHandler(new(MockCoordinator), new(MockQueryService))
			req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations?"+q, nil)
			err := h.List(e.NewContext(req, httptest.NewRecorder()))

			var he *echo.HTTPError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, http.StatusBadRequest, he.Code)
		})
	}
}

func TestReservationHandler_Release(t *testing.T) {
	e := NewTestEcho()

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"解放できる", nil, http.StatusOK},
		{"存在しない取引", reservation.ErrTransactionNotFound, http.StatusNotFound},
		{"終端済みの取引", reservation.ErrAlreadyTerminal, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coordinator := new(MockCoordinator)
			h := NewReservationHandler(coordinator, new(MockQueryService))
			coordinator.On("Release", mock.Anything, "tx-1").Return(tt.err)

			req := httptest.NewRequest(http.MethodPost, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("id")
			c.SetParamValues("tx-1")

			err := h.Release(c)
			if tt.err == nil {
				require.NoError(t, err)
				assert.Equal(t, tt.wantCode, rec.Code)
				assert.True(t, decodeReserve(t, rec).Success)
				return
			}
			var he *echo.HTTPError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, tt.wantCode, he.Code)
		})
	}
}
