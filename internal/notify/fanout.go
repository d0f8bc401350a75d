package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stampdesk/stampdesk/internal/models"
)

// DefaultBroadcastChannel is the redis pub/sub channel used when the
// deployment does not configure its own.
const DefaultBroadcastChannel = "stampdesk:balance-events"

// Fanout publishes balance-changed events through three independent
// channels: the in-process bus, a persisted last-event marker, and a redis
// broadcast for multi-instance deployments. Publishing is best-effort; a
// failure on one channel is logged and never blocks the others or the
// credit caller.
type Fanout struct {
	bus     *Bus
	seen    *dedupCache
	conn    *gorm.DB
	rdb     *redis.Client
	channel string
}

// NewFanout constructs a Fanout. conn and rdb are each optional; a nil
// value disables that channel.
func NewFanout(conn *gorm.DB, rdb *redis.Client, channel string) *Fanout {
	if channel == "" {
		channel = DefaultBroadcastChannel
	}
	return &Fanout{
		bus:     NewBus(),
		seen:    newDedupCache(1024),
		conn:    conn,
		rdb:     rdb,
		channel: channel,
	}
}

// Subscribe registers an in-process observer.
func (f *Fanout) Subscribe(fn func(Event)) func() {
	return f.bus.Subscribe(fn)
}

// Publish fans the event out to every configured channel. A duplicate
// event for the same card within the retention window is dropped before
// delivery. The dedup key carries the card ID because idempotency keys are
// only unique per card; two cards may legitimately share an event ID.
func (f *Fanout) Publish(ctx context.Context, event Event) {
	if event.EventID == "" {
		log.WithField("card_id", event.CardID).Warn("notify: dropping event without id")
		return
	}
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now().UTC()
	}

	if f.seen.markSeen(fmt.Sprintf("%d|%s", event.CardID, event.EventID)) {
		log.WithFields(log.Fields{
			"event_id": event.EventID,
			"card_id":  event.CardID,
		}).Debug("notify: duplicate event suppressed")
		return
	}

	f.bus.publish(event)
	f.persistMarker(ctx, event)
	f.broadcast(ctx, event)
}

// persistMarker upserts the last-event row for the card.
func (f *Fanout) persistMarker(ctx context.Context, event Event) {
	if f.conn == nil {
		return
	}
	payload, errMarshal := json.Marshal(event)
	if errMarshal != nil {
		log.WithError(errMarshal).Warn("notify: marshal event for marker")
		return
	}
	marker := models.EventMarker{
		CardID:  event.CardID,
		EventID: event.EventID,
		Payload: datatypes.JSON(payload),
	}
	errUpsert := f.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "card_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"event_id", "payload", "updated_at"}),
		}).
		Create(&marker).Error
	if errUpsert != nil {
		log.WithFields(log.Fields{
			"event_id": event.EventID,
			"card_id":  event.CardID,
		}).WithError(errUpsert).Warn("notify: persist marker failed")
	}
}

// broadcast publishes the event on the redis channel.
func (f *Fanout) broadcast(ctx context.Context, event Event) {
	if f.rdb == nil {
		return
	}
	payload, errMarshal := json.Marshal(event)
	if errMarshal != nil {
		log.WithError(errMarshal).Warn("notify: marshal event for broadcast")
		return
	}
	if errPublish := f.rdb.Publish(ctx, f.channel, payload).Err(); errPublish != nil {
		log.WithFields(log.Fields{
			"event_id": event.EventID,
			"channel":  f.channel,
		}).WithError(errPublish).Warn("notify: broadcast failed")
	}
}

// LastEvent returns the persisted marker for a card, for late-joining
// observers that poll instead of subscribing.
func (f *Fanout) LastEvent(ctx context.Context, cardID uint64) (Event, bool, error) {
	if f.conn == nil {
		return Event{}, false, nil
	}
	var marker models.EventMarker
	errFind := f.conn.WithContext(ctx).Where("card_id = ?", cardID).First(&marker).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Event{}, false, nil
		}
		return Event{}, false, errFind
	}
	var event Event
	if errUnmarshal := json.Unmarshal(marker.Payload, &event); errUnmarshal != nil {
		return Event{}, false, errUnmarshal
	}
	return event, true, nil
}
