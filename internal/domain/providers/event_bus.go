package providers

import (
	"context"

	"github.com/proagenda/calendar-engine/internal/domain/entities"
)

// EventBus publishes calendar change notices to other processes (the UI
// layer subscribes to refresh its view after bookings and reschedules).
type EventBus interface {
	Publish(ctx context.Context, channel string, notice *entities.CalendarNotice) error

	Subscribe(ctx context.Context, channel string) (<-chan *entities.CalendarNotice, error)

	Unsubscribe(ctx context.Context, channel string) error

	Close() error
}

const (
	// ChannelCalendarUpdates carries every calendar notice.
	ChannelCalendarUpdates = "calendar:updates"

	// channelOwnerPrefix is the prefix for per-owner channels.
	channelOwnerPrefix = "calendar:owner:"
)

// OwnerChannel returns the channel carrying one subject's notices.
func OwnerChannel(ownerID string) string {
	return channelOwnerPrefix + ownerID
}
