package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type AvailabilityHandler struct {
	query QueryServiceInterface
}

func NewAvailabilityHandler(query QueryServiceInterface) *AvailabilityHandler {
	return &AvailabilityHandler{query: query}
}

type AvailabilityResponse struct {
	TripID         string `json:"tripId"`
	TotalSeats     int    `json:"totalSeats"`
	BookedSeats    []int  `json:"bookedSeats"`
	AvailableSeats []int  `json:"availableSeats"`
}

type BookingResponse struct {
	PassengerResponse
	TransactionID string `json:"transactionId"`
	BookedBy      string `json:"bookedBy"`
}

// Get godoc
// @Summary 空席状況を取得
// @Description 仮押さえ中の座席はどちらの一覧にも含まれない
// @Tags availability
// @Produce json
// @Success 200 {object} AvailabilityResponse
// @Router /availability [get]
func (h *AvailabilityHandler) Get(c echo.Context) error {
	a := h.query.Availability(c.Request().Context())
	return c.JSON(http.StatusOK, AvailabilityResponse{
		TripID:         a.TripID,
		TotalSeats:     a.TotalSeats,
		BookedSeats:    a.BookedSeats,
		AvailableSeats: a.AvailableSeats,
	})
}

// Bookings godoc
// @Summary 予約済み座席の一覧
// @Tags availability
// @Produce json
// @Success 200 {array} BookingResponse
// @Router /bookings [get]
func (h *AvailabilityHandler) Bookings(c echo.Context) error {
	bookings := h.query.Bookings(c.Request().Context())
	resp := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		resp[i] = BookingResponse{
			PassengerResponse: toPassengerResponse(b.PassengerRecord),
			TransactionID:     b.TransactionID,
			BookedBy:          b.BookedBy,
		}
	}
	return c.JSON(http.StatusOK, resp)
}
