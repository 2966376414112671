package core

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/classcord/classcord-server/internal/proto"
	"github.com/classcord/classcord-server/internal/store"
)

const (
	historyTTL     = 5 * time.Minute
	historySweep   = 10 * time.Minute
	historyMinimum = 1
)

// History serves recent per-channel message history, caching reads from the
// message log so every join_channel does not hit the database.
type History struct {
	mu    sync.Mutex
	store store.MessageStore
	cache *gocache.Cache
	limit int
}

// NewHistory creates a history service keeping at most limit entries per channel.
func NewHistory(messageStore store.MessageStore, limit int) *History {
	if limit < historyMinimum {
		limit = historyMinimum
	}
	return &History{
		store: messageStore,
		cache: gocache.New(historyTTL, historySweep),
		limit: limit,
	}
}

// Recent returns the most recent messages for a channel in chronological order.
func (h *History) Recent(ctx context.Context, channel string) ([]proto.ChatRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if v, ok := h.cache.Get(channel); ok {
		cached := v.([]proto.ChatRecord)
		return append([]proto.ChatRecord(nil), cached...), nil
	}

	msgs, err := h.store.ListMessages(ctx, channel, h.limit)
	if err != nil {
		return nil, err
	}

	records := make([]proto.ChatRecord, 0, len(msgs))
	for _, m := range msgs {
		records = append(records, proto.ChatRecord{
			From:      m.Sender,
			Content:   m.Content,
			Timestamp: m.CreatedAt.Format(time.RFC3339),
			Channel:   m.Channel,
		})
	}
	h.cache.Set(channel, records, gocache.DefaultExpiration)

	return append([]proto.ChatRecord(nil), records...), nil
}

// Append records a freshly sent message in the channel's cached window.
// Channels not currently cached are left alone; they will be reloaded from
// the message log on the next Recent call.
func (h *History) Append(channel string, rec proto.ChatRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	v, ok := h.cache.Get(channel)
	if !ok {
		return
	}
	records := append(v.([]proto.ChatRecord), rec)
	if len(records) > h.limit {
		records = records[len(records)-h.limit:]
	}
	h.cache.Set(channel, records, gocache.DefaultExpiration)
}
