package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"staybook/internal/domain/calendar"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/units"
)

// CalendarCommand is the wire shape of operator hold commands arriving from
// the property-management tooling.
type CalendarCommand struct {
	Action string    `json:"action"` // "block" or "unblock"
	UnitID string    `json:"unit_id"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	Status string    `json:"status"`
}

// CalendarWriter is the slice of the reservation service the consumer needs.
type CalendarWriter interface {
	BlockDates(ctx context.Context, unit units.UnitID, dr daterange.DateRange, status calendar.DayStatus, now time.Time) error
	UnblockDates(ctx context.Context, unit units.UnitID, dr daterange.DateRange, now time.Time) error
}

// CalendarSyncHandler applies operator block/unblock commands to the calendar.
type CalendarSyncHandler struct {
	Writer CalendarWriter
	Logger *slog.Logger
	Now    func() time.Time
}

func (h *CalendarSyncHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var cmd CalendarCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		// Malformed commands are dropped, not retried.
		h.log().Warn("calendar command decode failed", "error", err, "offset", msg.Offset)
		return nil
	}
	dr, err := daterange.New(cmd.From, cmd.To)
	if err != nil {
		h.log().Warn("calendar command rejected", "error", err, "unit_id", cmd.UnitID)
		return nil
	}
	now := h.now()
	switch cmd.Action {
	case "block":
		status := calendar.ParseDayStatus(cmd.Status)
		if status == calendar.StatusUnknown || status.Free() {
			status = calendar.StatusBlocked
		}
		return h.Writer.BlockDates(ctx, units.UnitID(cmd.UnitID), dr, status, now)
	case "unblock":
		return h.Writer.UnblockDates(ctx, units.UnitID(cmd.UnitID), dr, now)
	default:
		h.log().Warn("calendar command unknown action", "action", cmd.Action)
		return nil
	}
}

func (h *CalendarSyncHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *CalendarSyncHandler) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ MessageHandler = (*CalendarSyncHandler)(nil)
