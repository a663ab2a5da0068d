package ginserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	gin "github.com/gin-gonic/gin"

	"staybook/internal/app/reservation"
	"staybook/internal/domain/availability"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/units"
)

type AvailabilityHandler struct {
	Service *reservation.Service
	Now     func() time.Time

	// HorizonMonths caps first-run searches when the request does not name one.
	HorizonMonths int
}

const dateLayout = "2006-01-02"

// Calendar lists the free days of a unit in [from, to).
func (h AvailabilityHandler) Calendar(c *gin.Context) {
	unit := units.UnitID(c.Param("id"))
	from, to, ok := parseWindow(c)
	if !ok {
		return
	}
	dates, err := h.Service.AvailableDates(c.Request.Context(), unit, from, to)
	if err != nil {
		respondAvailabilityError(c, err)
		return
	}
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format(dateLayout))
	}
	c.JSON(http.StatusOK, gin.H{"unit_id": string(unit), "available_dates": out})
}

// FirstRun searches for the earliest run of consecutive free nights.
func (h AvailabilityHandler) FirstRun(c *gin.Context) {
	unit := units.UnitID(c.Param("id"))
	from, ok := parseDateQuery(c, "from", h.now())
	if !ok {
		return
	}
	nights, ok := parseIntQuery(c, "nights", 1)
	if !ok {
		return
	}
	defaultHorizon := h.HorizonMonths
	if defaultHorizon <= 0 {
		defaultHorizon = 3
	}
	horizon, ok := parseIntQuery(c, "horizon_months", defaultHorizon)
	if !ok {
		return
	}
	dr, found, err := h.Service.FirstAvailableRun(c.Request.Context(), unit, from, nights, horizon)
	if err != nil {
		respondAvailabilityError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"found": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"found":     true,
		"check_in":  dr.CheckIn.Format(dateLayout),
		"check_out": dr.CheckOut.Format(dateLayout),
	})
}

// Quote prices a candidate stay without reserving it.
func (h AvailabilityHandler) Quote(c *gin.Context) {
	unit := units.UnitID(c.Param("id"))
	from, to, ok := parseWindow(c)
	if !ok {
		return
	}
	quote, err := h.Service.Quote(c.Request.Context(), unit, from, to, h.now())
	if err != nil {
		respondAvailabilityError(c, err)
		return
	}
	days := make([]gin.H, 0, len(quote.Days))
	for _, d := range quote.Days {
		days = append(days, gin.H{
			"date":     d.Date.Format(dateLayout),
			"amount":   d.Amount.Amount,
			"tier":     d.Tier,
			"override": d.Override,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"unit_id":      string(quote.UnitID),
		"nights":       quote.Nights,
		"total_amount": quote.Total.Amount,
		"currency":     quote.Total.Currency,
		"days":         days,
	})
}

func (h AvailabilityHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func parseWindow(c *gin.Context) (time.Time, time.Time, bool) {
	from, ok := parseDateQuery(c, "from", time.Time{})
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	to, ok := parseDateQuery(c, "to", time.Time{})
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	if from.IsZero() || to.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to query parameters are required"})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func parseDateQuery(c *gin.Context, key string, def time.Time) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key + " date, want YYYY-MM-DD"})
		return time.Time{}, false
	}
	return t, true
}

func parseIntQuery(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key + " value"})
		return 0, false
	}
	return v, true
}

func respondAvailabilityError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, daterange.ErrInvalidRange), errors.Is(err, availability.ErrInvalidSearch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, units.ErrUnitNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

var _ AvailabilityHTTP = AvailabilityHandler{}
