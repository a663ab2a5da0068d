package ginserver

import (
	"errors"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	"staybook/internal/app/reservation"
	domainbooking "staybook/internal/domain/booking"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/units"
)

type BookingHandler struct {
	Service *reservation.Service
	Keys    reservation.IdempotencyStore
	Now     func() time.Time
}

type reserveRequest struct {
	UnitID   string    `json:"unit_id" binding:"required"`
	GuestID  string    `json:"guest_id" binding:"required"`
	CheckIn  time.Time `json:"check_in" binding:"required"`
	CheckOut time.Time `json:"check_out" binding:"required"`
	Guests   int       `json:"guests" binding:"required"`
}

type bookingResponse struct {
	BookingID    string     `json:"booking_id"`
	UnitID       string     `json:"unit_id"`
	GuestID      string     `json:"guest_id"`
	CheckIn      time.Time  `json:"check_in"`
	CheckOut     time.Time  `json:"check_out"`
	Guests       int        `json:"guests"`
	TotalAmount  int64      `json:"total_amount"`
	Currency     string     `json:"currency"`
	Status       string     `json:"status"`
	BookedAt     time.Time  `json:"booked_at"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	CheckedInAt  *time.Time `json:"checked_in_at,omitempty"`
	CheckedOutAt *time.Time `json:"checked_out_at,omitempty"`
}

func (h BookingHandler) Create(c *gin.Context) {
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := c.GetHeader("Idempotency-Key")
	b, replayed, err := h.Service.ReserveIdempotent(c.Request.Context(), h.Keys, key, reservation.ReserveParams{
		UnitID:   units.UnitID(req.UnitID),
		GuestID:  req.GuestID,
		CheckIn:  req.CheckIn,
		CheckOut: req.CheckOut,
		Guests:   req.Guests,
		Now:      h.now(),
	})
	if err != nil {
		respondReservationError(c, err)
		return
	}
	if replayed {
		c.JSON(http.StatusOK, mapBooking(b))
		return
	}
	c.JSON(http.StatusCreated, mapBooking(b))
}

func (h BookingHandler) Get(c *gin.Context) {
	b, err := h.Service.Get(c.Request.Context(), domainbooking.BookingID(c.Param("id")), h.now())
	if err != nil {
		respondReservationError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapBooking(b))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type cancelResponse struct {
	Booking       bookingResponse `json:"booking"`
	RefundPercent int             `json:"refund_percent"`
	RefundAmount  int64           `json:"refund_amount"`
	PenaltyAmount int64           `json:"penalty_amount"`
	Currency      string          `json:"currency"`
}

func (h BookingHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	// The reason body is optional.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	outcome, err := h.Service.Cancel(c.Request.Context(), domainbooking.BookingID(c.Param("id")), req.Reason, h.now())
	if err != nil {
		respondReservationError(c, err)
		return
	}
	c.JSON(http.StatusOK, cancelResponse{
		Booking:       mapBooking(outcome.Booking),
		RefundPercent: outcome.RefundPercent,
		RefundAmount:  outcome.Refund.Amount,
		PenaltyAmount: outcome.Penalty.Amount,
		Currency:      outcome.Refund.Currency,
	})
}

type modifyRequest struct {
	CheckIn  time.Time `json:"check_in" binding:"required"`
	CheckOut time.Time `json:"check_out" binding:"required"`
}

func (h BookingHandler) Modify(c *gin.Context) {
	var req modifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := h.Service.Modify(c.Request.Context(), domainbooking.BookingID(c.Param("id")), req.CheckIn, req.CheckOut, h.now())
	if err != nil {
		respondReservationError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapBooking(b))
}

func (h BookingHandler) CheckIn(c *gin.Context) {
	b, err := h.Service.CheckIn(c.Request.Context(), domainbooking.BookingID(c.Param("id")), h.now())
	if err != nil {
		respondReservationError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapBooking(b))
}

func (h BookingHandler) CheckOut(c *gin.Context) {
	b, err := h.Service.CheckOut(c.Request.Context(), domainbooking.BookingID(c.Param("id")), h.now())
	if err != nil {
		respondReservationError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapBooking(b))
}

// ListByGuest returns the booking history of one guest, newest last.
func (h BookingHandler) ListByGuest(c *gin.Context) {
	bookings, err := h.Service.ListByGuest(c.Request.Context(), c.Param("id"), h.now())
	if err != nil {
		respondReservationError(c, err)
		return
	}
	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, mapBooking(b))
	}
	c.JSON(http.StatusOK, gin.H{"bookings": out})
}

func (h BookingHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func mapBooking(b *domainbooking.Booking) bookingResponse {
	return bookingResponse{
		BookingID:    string(b.ID),
		UnitID:       string(b.UnitID),
		GuestID:      b.GuestID,
		CheckIn:      b.Range.CheckIn,
		CheckOut:     b.Range.CheckOut,
		Guests:       b.Guests,
		TotalAmount:  b.Total.Amount,
		Currency:     b.Total.Currency,
		Status:       string(b.Status),
		BookedAt:     b.BookedAt,
		CancelReason: b.CancelReason,
		CheckedInAt:  b.ActualCheckIn,
		CheckedOutAt: b.ActualCheckOut,
	}
}

func respondReservationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, reservation.ErrDatesUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, reservation.ErrCancellationDenied),
		errors.Is(err, reservation.ErrModificationDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, domainbooking.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domainbooking.ErrBookingNotFound), errors.Is(err, units.ErrUnitNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, daterange.ErrInvalidRange), errors.Is(err, domainbooking.ErrCheckInInPast), errors.Is(err, domainbooking.ErrInvalidGuests):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

var _ BookingHTTP = BookingHandler{}
