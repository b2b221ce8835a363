package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/bus-seat-reservation/internal/api/middleware"
	"github.com/sanosuguru/bus-seat-reservation/internal/application"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/seat"
)

// 予約失敗の理由
const (
	ReasonSeatUnavailable    = "SEAT_UNAVAILABLE"
	ReasonInvalidRequest     = "INVALID_REQUEST"
	ReasonStorageFault       = "STORAGE_FAULT"
	ReasonTransactionAborted = "TRANSACTION_ABORTED"
)

const (
	defaultTransactionsLimit = 20
	maxTransactionsLimit     = 100
)

type ReservationHandler struct {
	coordinator ReservationCoordinatorInterface
	query       QueryServiceInterface
}

func NewReservationHandler(coordinator ReservationCoordinatorInterface, query QueryServiceInterface) *ReservationHandler {
	return &ReservationHandler{coordinator: coordinator, query: query}
}

type SeatRequest struct {
	SeatNumber    int    `json:"seatNumber" validate:"required" example:"12"`
	PassengerName string `json:"passengerName" validate:"required" example:"Rahim Uddin"`
	PhoneNumber   string `json:"phoneNumber" validate:"required" example:"01700000000"`
	Email         string `json:"email" validate:"required" example:"rahim@example.com"`
}

type CreateReservationRequest struct {
	Seats []SeatRequest `json:"seats" validate:"required,min=1,dive"`
}

// ReserveResponse は予約結果
// 失敗時は Reason を見て再試行するか座席を選び直すかを判断する
type ReserveResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId,omitempty"`
	SeatNumbers   []int  `json:"seatNumbers,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Message       string `json:"message,omitempty"`
	Conflicts     []int  `json:"conflicts,omitempty"`
}

type PassengerResponse struct {
	SeatNumber    int    `json:"seatNumber"`
	PassengerName string `json:"passengerName"`
	PhoneNumber   string `json:"phoneNumber"`
	Email         string `json:"email"`
}

type ManifestResponse struct {
	TransactionID string              `json:"transactionId"`
	Passengers    []PassengerResponse `json:"passengers"`
}

type TransactionResponse struct {
	ID          string     `json:"id"`
	TripID      string     `json:"tripId"`
	SeatNumbers []int      `json:"seatNumbers"`
	Status      string     `json:"status"`
	BookedBy    string     `json:"bookedBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

func toPassengerResponse(r reservation.PassengerRecord) PassengerResponse {
	return PassengerResponse{
		SeatNumber: r.SeatNumber, PassengerName: r.Name,
		PhoneNumber: r.Phone, Email: r.Email,
	}
}

func toTransactionResponse(t *reservation.Transaction) TransactionResponse {
	return TransactionResponse{
		ID: t.ID, TripID: t.TripID, SeatNumbers: t.SeatNumbers,
		Status: string(t.Status), BookedBy: t.BookedBy,
		CreatedAt: t.CreatedAt, FinishedAt: t.FinishedAt,
	}
}

// toReserveInput はリクエストを予約入力に変換する
// 重複した座席番号はそのまま残し、ドメイン側の検証で弾く
func toReserveInput(req CreateReservationRequest, bookedBy string) application.ReserveInput {
	input := application.ReserveInput{
		SeatNumbers: make([]int, 0, len(req.Seats)),
		Passengers:  make(map[int]reservation.Passenger, len(req.Seats)),
		BookedBy:    bookedBy,
	}
	for _, s := range req.Seats {
		input.SeatNumbers = append(input.SeatNumbers, s.SeatNumber)
		input.Passengers[s.SeatNumber] = reservation.Passenger{
			Name: s.PassengerName, Phone: s.PhoneNumber, Email: s.Email,
		}
	}
	return input
}

// Create godoc
// @Summary 座席をまとめて予約
// @Description 指定した全座席を予約する。1席でも埋まっていれば何も予約しない
// @Tags reservations
// @Accept json
// @Produce json
// @Param request body CreateReservationRequest true "座席と乗客情報"
// @Success 201 {object} ReserveResponse
// @Failure 400 {object} ReserveResponse
// @Failure 409 {object} ReserveResponse "座席が埋まっている"
// @Failure 503 {object} ReserveResponse
// @Router /reservations [post]
func (h *ReservationHandler) Create(c echo.Context) error {
	var req CreateReservationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ReserveResponse{Reason: ReasonInvalidRequest, Message: "無効なリクエスト"})
	}
	if err := c.Validate(&req); err != nil {
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			if m, ok := he.Message.(string); ok {
				msg = m
			}
		}
		return c.JSON(http.StatusBadRequest, ReserveResponse{Reason: ReasonInvalidRequest, Message: msg})
	}

	tx, err := h.coordinator.Reserve(c.Request().Context(), toReserveInput(req, middleware.CallerID(c)))
	if err != nil {
		return reserveError(c, err)
	}
	return c.JSON(http.StatusCreated, ReserveResponse{
		Success:       true,
		TransactionID: tx.ID,
		SeatNumbers:   tx.SeatNumbers,
	})
}

// reserveError は予約失敗を理由付きのレスポンスにする
// 永続化時の座席競合はストレージ障害として包まれるため、先に判定する
func reserveError(c echo.Context, err error) error {
	var unavailable *seat.UnavailableError
	switch {
	case errors.Is(err, reservation.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, ReserveResponse{Reason: ReasonInvalidRequest, Message: err.Error()})
	case errors.Is(err, reservation.ErrStorageFault):
		return c.JSON(http.StatusServiceUnavailable, ReserveResponse{Reason: ReasonStorageFault, Message: "一時的に予約できません"})
	case errors.As(err, &unavailable):
		return c.JSON(http.StatusConflict, ReserveResponse{
			Reason:    ReasonSeatUnavailable,
			Message:   err.Error(),
			Conflicts: unavailable.Conflicts,
		})
	case errors.Is(err, reservation.ErrTransactionAborted):
		return c.JSON(http.StatusConflict, ReserveResponse{Reason: ReasonTransactionAborted, Message: err.Error()})
	}
	return err
}

// Manifest godoc
// @Summary 乗客名簿を取得
// @Description 確定済み取引の乗客情報を座席番号順に返す
// @Tags reservations
// @Produce json
// @Param id path string true "取引ID"
// @Success 200 {object} ManifestResponse
// @Failure 404 {object} map[string]string
// @Router /reservations/{id}/manifest [get]
func (h *ReservationHandler) Manifest(c echo.Context) error {
	id := c.Param("id")
	records, err := h.query.Manifest(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, reservation.ErrTransactionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return err
	}
	resp := ManifestResponse{TransactionID: id, Passengers: make([]PassengerResponse, len(records))}
	for i, r := range records {
		resp.Passengers[i] = toPassengerResponse(r)
	}
	return c.JSON(http.StatusOK, resp)
}

// List godoc
// @Summary 取引の監査一覧
// @Description 終端になった取引を確定・中断順に返す
// @Tags reservations
// @Produce json
// @Param status query string false "committed または aborted"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} TransactionResponse
// @Failure 400 {object} map[string]string
// @Router /reservations [get]
func (h *ReservationHandler) List(c echo.Context) error {
	filter := application.TransactionFilter{Limit: defaultTransactionsLimit}
	switch status := reservation.Status(c.QueryParam("status")); status {
	case "":
	case reservation.StatusCommitted, reservation.StatusAborted:
		filter.Status = status
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "status は committed か aborted を指定してください")
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit が不正です")
		}
		filter.Limit = min(limit, maxTransactionsLimit)
	}
	if v := c.QueryParam("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "offset が不正です")
		}
		filter.Offset = offset
	}

	txs := h.query.Transactions(c.Request().Context(), filter)
	resp := make([]TransactionResponse, len(txs))
	for i, t := range txs {
		resp[i] = toTransactionResponse(t)
	}
	return c.JSON(http.StatusOK, resp)
}

// Release godoc
// @Summary 保留中の取引を解放
// @Description 確定前の取引を中断し、仮押さえしている座席を空席に戻す
// @Tags reservations
// @Produce json
// @Param id path string true "取引ID"
// @Success 200 {object} ReserveResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /reservations/{id}/release [post]
func (h *ReservationHandler) Release(c echo.Context) error {
	id := c.Param("id")
	err := h.coordinator.Release(c.Request().Context(), id)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, ReserveResponse{Success: true, TransactionID: id})
	case errors.Is(err, reservation.ErrTransactionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, reservation.ErrAlreadyTerminal):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return err
}
