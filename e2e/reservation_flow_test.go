package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/bus-seat-reservation/internal/api/handler"
	"github.com/sanosuguru/bus-seat-reservation/internal/api/middleware"
)

// Request はHTTPリクエストを実行
func (s *Stack) Request(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

// cleanupTrip はテストで作成した運行の行を削除する
func cleanupTrip(t *testing.T, tripID string) {
	t.Cleanup(func() {
		testDB.Exec(`DELETE FROM reservation_passengers WHERE transaction_id IN (SELECT id FROM reservation_transactions WHERE trip_id = $1)`, tripID)
		testDB.Exec(`DELETE FROM reservation_transactions WHERE trip_id = $1`, tripID)
		testDB.Exec(`DELETE FROM seats WHERE trip_id = $1`, tripID)
		testDB.Exec(`DELETE FROM trips WHERE id = $1`, tripID)
	})
}

func seatsBody(seats ...int) map[string]interface{} {
	list := make([]map[string]interface{}, len(seats))
	for i, n := range seats {
		list[i] = map[string]interface{}{
			"seatNumber":    n,
			"passengerName": fmt.Sprintf("乗客%d", n),
			"phoneNumber":   fmt.Sprintf("0170000%04d", n),
			"email":         fmt.Sprintf("p%d@example.com", n),
		}
	}
	return map[string]interface{}{"seats": list}
}

func bookedInDB(t *testing.T, tripID string) []int {
	t.Helper()
	var seats []int
	require.NoError(t, testDB.Select(&seats,
		`SELECT seat_number FROM seats WHERE trip_id = $1 AND status = 'booked' ORDER BY seat_number`, tripID))
	return seats
}

// TestE2E_HealthCheck はヘルスチェックをテスト
func TestE2E_HealthCheck(t *testing.T) {
	tripID := newTripID()
	cleanupTrip(t, tripID)
	stack := NewStack(t, tripID, 4)

	rec := stack.Request(http.MethodGet, "/api/v1/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp handler.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

// TestE2E_CompleteReservationJourney は予約から再起動後の復元までをテスト
func TestE2E_CompleteReservationJourney(t *testing.T) {
	tripID := newTripID()
	cleanupTrip(t, tripID)
	stack := NewStack(t, tripID, 10)
	headers := map[string]string{middleware.HeaderUserID: "e2e-user-rahim"}

	var transactionID string

	t.Run("予約作成", func(t *testing.T) {
		rec := stack.Request(http.MethodPost, "/api/v1/reservations", seatsBody(1, 2, 3), headers)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp handler.ReserveResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		transactionID = resp.TransactionID
		require.NotEmpty(t, transactionID)
	})

	t.Run("座席テーブルに反映される", func(t *testing.T) {
		assert.Equal(t, []int{1, 2, 3}, bookedInDB(t, tripID))
	})

	t.Run("重なる予約は拒否される", func(t *testing.T) {
		rec := stack.Request(http.MethodPost, "/api/v1/reservations", seatsBody(3, 4), headers)
		require.Equal(t, http.StatusConflict, rec.Code)

		var resp handler.ReserveResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, handler.ReasonSeatUnavailable, resp.Reason)
		assert.Equal(t, []int{3}, resp.Conflicts)
		assert.Equal(t, []int{1, 2, 3}, bookedInDB(t, tripID))
	})

	t.Run("空席状況", func(t *testing.T) {
		rec := stack.Request(http.MethodGet, "/api/v1/availability", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp handler.AvailabilityResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []int{1, 2, 3}, resp.BookedSeats)
		assert.Equal(t, []int{4, 5, 6, 7, 8, 9, 10}, resp.AvailableSeats)
	})

	var auditBefore []string
	t.Run("監査一覧は終端順に並ぶ", func(t *testing.T) {
		rec := stack.Request(http.MethodGet, "/api/v1/reservations", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var audit []handler.TransactionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &audit))
		for _, tx := range audit {
			auditBefore = append(auditBefore, tx.ID)
		}
		require.Len(t, auditBefore, 2)
		assert.Equal(t, transactionID, auditBefore[0])
	})

	t.Run("再起動後も予約と名簿が残る", func(t *testing.T) {
		restarted := NewStack(t, tripID, 10)

		rec := restarted.Request(http.MethodGet, "/api/v1/availability", nil, nil)
		var availability handler.AvailabilityResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &availability))
		assert.Equal(t, []int{1, 2, 3}, availability.BookedSeats)

		rec = restarted.Request(http.MethodGet, "/api/v1/reservations/"+transactionID+"/manifest", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var manifest handler.ManifestResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &manifest))
		require.Len(t, manifest.Passengers, 3)
		assert.Equal(t, "乗客1", manifest.Passengers[0].PassengerName)

		rec = restarted.Request(http.MethodGet, "/api/v1/reservations", nil, nil)
		var audit []handler.TransactionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &audit))
		require.Len(t, audit, 2)
		assert.Equal(t, "committed", audit[0].Status)
		assert.Equal(t, "e2e-user-rahim", audit[0].BookedBy)
		assert.Equal(t, "aborted", audit[1].Status)
		assert.Equal(t, auditBefore, []string{audit[0].ID, audit[1].ID})

		rec = restarted.Request(http.MethodPost, "/api/v1/reservations", seatsBody(3), headers)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

// TestE2E_ConcurrentSameSeat は同じ座席への同時予約で1件だけ確定することをテスト
func TestE2E_ConcurrentSameSeat(t *testing.T) {
	tripID := newTripID()
	cleanupTrip(t, tripID)
	stack := NewStack(t, tripID, 8)

	const callers = 20
	codes := make([]int, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := stack.Request(http.MethodPost, "/api/v1/reservations", seatsBody(5, 6), map[string]string{
				middleware.HeaderUserID: fmt.Sprintf("user-%d", i),
			})
			codes[i] = rec.Code
		}()
	}
	wg.Wait()

	created := 0
	for _, code := range codes {
		if code == http.StatusCreated {
			created++
		} else {
			assert.Equal(t, http.StatusConflict, code)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, []int{5, 6}, bookedInDB(t, tripID))
	assert.Equal(t, []int{5, 6}, stack.Seats.BookedSeats())
}

// TestE2E_StalePendingIsAbortedOnRestart は保留中のまま残った取引が起動時に中断されることをテスト
func TestE2E_StalePendingIsAbortedOnRestart(t *testing.T) {
	tripID := newTripID()
	cleanupTrip(t, tripID)
	NewStack(t, tripID, 4)

	_, err := testDB.Exec(`INSERT INTO reservation_transactions (id, trip_id, status, booked_by, created_at)
		VALUES ('00000000-0000-4000-8000-000000000001', $1, 'pending', 'crashed', NOW())`, tripID)
	require.NoError(t, err)

	stack := NewStack(t, tripID, 4)

	var status string
	require.NoError(t, testDB.QueryRowContext(context.Background(),
		`SELECT status FROM reservation_transactions WHERE trip_id = $1`, tripID).Scan(&status))
	assert.Equal(t, "aborted", status)
	assert.Empty(t, stack.Ledger.Pending())
	assert.Equal(t, []int{1, 2, 3, 4}, stack.Seats.AvailableSeats())
}
