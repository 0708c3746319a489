package session

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/shipment-analytics/internal/datanorm"
	"github.com/ignite/shipment-analytics/internal/filter"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, Options{TTL: 30 * time.Minute}), mr
}

func records() []*datanorm.Record {
	return []*datanorm.Record{
		datanorm.Preprocess(datanorm.RawRecord{"Status": "DELIVERED", "Order Total": "499.50"}),
		datanorm.Preprocess(datanorm.RawRecord{"Status": "RTO Delivered", "Channel": "Amazon"}),
	}
}

func TestCreateAndLoad(t *testing.T) {
	ctx := context.Background()
	store, mr := setupStore(t)

	meta, err := store.Create(ctx, records(), "orders.csv")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^session_\d+_[0-9a-f]{9}$`), meta.SessionID)
	assert.Equal(t, 2, meta.RecordCount)
	assert.Equal(t, 30*time.Minute, mr.TTL(dataKey(meta.SessionID)))
	assert.Equal(t, 30*time.Minute, mr.TTL(metaKey(meta.SessionID)))

	got, err := store.Records(ctx, meta.SessionID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, datanorm.StatusDelivered, got[0].DeliveryStatus)
	assert.Equal(t, 499.5, *got[0].OrderValue)
	assert.Equal(t, datanorm.StatusRTODelivered, got[1].DeliveryStatus)

	loaded, err := store.Metadata(ctx, meta.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "orders.csv", loaded.Source)
	assert.True(t, loaded.ExpiresAt.After(loaded.CreatedAt))
}

func TestCreateEmptyDataset(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	meta, err := store.Create(ctx, nil, "")
	require.NoError(t, err)
	got, err := store.Records(ctx, meta.SessionID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetDistinguishesExpiredFromNotComputed(t *testing.T) {
	ctx := context.Background()
	store, mr := setupStore(t)

	meta, err := store.Create(ctx, records(), "")
	require.NoError(t, err)
	sid := meta.SessionID

	var out map[string]any
	assert.ErrorIs(t, store.Get(ctx, sid, "summary-metrics", filter.Filter{}, &out), ErrNotComputed)

	require.NoError(t, store.Put(ctx, sid, "summary-metrics", filter.Filter{}, map[string]int{"syncedOrders": 2}))
	require.NoError(t, store.Get(ctx, sid, "summary-metrics", filter.Filter{}, &out))
	assert.Equal(t, 2.0, out["syncedOrders"])

	// A report entry that outlives its dataset must not be served.
	mr.Set(Key(sid, "channel-share", filter.Filter{}), "[]")
	mr.FastForward(31 * time.Minute)
	assert.True(t, mr.Exists(Key(sid, "channel-share", filter.Filter{})))
	assert.ErrorIs(t, store.Get(ctx, sid, "channel-share", filter.Filter{}, &out), ErrSessionExpired)
	assert.ErrorIs(t, store.Get(ctx, sid, "summary-metrics", filter.Filter{}, &out), ErrSessionExpired)

	_, err = store.Records(ctx, sid)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestPutSharesSessionHorizon(t *testing.T) {
	ctx := context.Background()
	store, mr := setupStore(t)

	meta, err := store.Create(ctx, records(), "")
	require.NoError(t, err)
	sid := meta.SessionID

	mr.FastForward(10 * time.Minute)
	require.NoError(t, store.Put(ctx, sid, "weekly-summary", filter.Filter{}, []int{}))

	ttl := mr.TTL(Key(sid, "weekly-summary", filter.Filter{}))
	assert.LessOrEqual(t, ttl, 20*time.Minute)
	assert.Greater(t, ttl, 19*time.Minute)

	remaining, err := store.TTL(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, ttl, remaining.Truncate(time.Second))

	mr.FastForward(21 * time.Minute)
	assert.False(t, mr.Exists(Key(sid, "weekly-summary", filter.Filter{})))
	assert.ErrorIs(t, store.Put(ctx, sid, "weekly-summary", filter.Filter{}, []int{}), ErrSessionExpired)
}

func TestPutOverwrites(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	meta, err := store.Create(ctx, records(), "")
	require.NoError(t, err)
	f := filter.Filter{Channel: "Amazon"}

	require.NoError(t, store.Put(ctx, meta.SessionID, "channel-share", f, []string{"old"}))
	require.NoError(t, store.Put(ctx, meta.SessionID, "channel-share", f, []string{"new"}))

	var got json.RawMessage
	require.NoError(t, store.Get(ctx, meta.SessionID, "channel-share", f, &got))
	assert.JSONEq(t, `["new"]`, string(got))
}

func TestKeyIsFilterOrderIndependent(t *testing.T) {
	a := Key("s1", "sku-analysis", filter.Filter{SKU: filter.StringSet{"A", "B"}})
	b := Key("s1", "sku-analysis", filter.Filter{SKU: filter.StringSet{"B", "A"}})
	assert.Equal(t, a, b)
	assert.Equal(t, "analytics:s1:base:sku-analysis", Key("s1", "sku-analysis", filter.Filter{}))
	assert.NotEqual(t, a, Key("s1", "sku-analysis", filter.Filter{}))
}

func TestDeleteRemovesReports(t *testing.T) {
	ctx := context.Background()
	store, mr := setupStore(t)

	meta, err := store.Create(ctx, records(), "")
	require.NoError(t, err)
	sid := meta.SessionID
	require.NoError(t, store.Put(ctx, sid, "summary-metrics", filter.Filter{}, 1))
	require.NoError(t, store.Put(ctx, sid, "summary-metrics", filter.Filter{Channel: "Amazon"}, 1))

	other, err := store.Create(ctx, records(), "")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, other.SessionID, "summary-metrics", filter.Filter{}, 1))

	require.NoError(t, store.Delete(ctx, sid))
	alive, err := store.Alive(ctx, sid)
	require.NoError(t, err)
	assert.False(t, alive)
	assert.False(t, mr.Exists(Key(sid, "summary-metrics", filter.Filter{})))
	assert.True(t, mr.Exists(Key(other.SessionID, "summary-metrics", filter.Filter{})))
}

func TestDeleteRejectsMalformedIDs(t *testing.T) {
	ctx := context.Background()
	store, mr := setupStore(t)

	meta, err := store.Create(ctx, records(), "")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, meta.SessionID, "summary-metrics", filter.Filter{}, 1))

	for _, sid := range []string{"", "*", "session_*", "session_?_abc", "session_1_[0-9]"} {
		assert.ErrorIs(t, store.Delete(ctx, sid), ErrInvalidID, sid)
	}
	assert.True(t, mr.Exists(Key(meta.SessionID, "summary-metrics", filter.Filter{})))
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID(NewID(time.Now())))
	assert.True(t, ValidID("session_1700000000000_0a1b2c3d4"))
	for _, sid := range []string{"", "session_", "session_1_", "session_x_abc", "session_1_ABC", "session_1_abc*", "*"} {
		assert.False(t, ValidID(sid), sid)
	}
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `session_1_abc`, escapeGlob("session_1_abc"))
	assert.Equal(t, `\*\?\[x\]\\`, escapeGlob(`*?[x]\`))
}

func TestTTLOfMissingSession(t *testing.T) {
	store, _ := setupStore(t)
	_, err := store.TTL(context.Background(), "session_0_missing")
	assert.ErrorIs(t, err, ErrSessionExpired)
}
