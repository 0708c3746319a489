// Package session keeps an imported shipment dataset and every report
// computed from it in Redis under one shared expiration horizon.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/shipment-analytics/internal/datanorm"
	"github.com/ignite/shipment-analytics/internal/filter"
	"github.com/ignite/shipment-analytics/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a session and all of its reports live.
const DefaultTTL = 30 * time.Minute

var (
	// ErrSessionExpired means the session's dataset is gone. Any cached
	// report for it must be treated as stale.
	ErrSessionExpired = errors.New("session expired or not found")
	// ErrNotComputed means the session is alive but the report has not
	// been computed for this filter yet.
	ErrNotComputed = errors.New("report not computed yet")
	// ErrInvalidID means the id does not have the shape NewID produces.
	ErrInvalidID = errors.New("invalid session id")
)

// Options configures a Store.
type Options struct {
	// URL is a redis:// connection string. Used by Open only.
	URL string
	TTL time.Duration
}

// Metadata describes an imported dataset.
type Metadata struct {
	SessionID   string    `json:"session_id"`
	RecordCount int       `json:"record_count"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Store is the session-scoped cache. It is safe for concurrent use.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, opts Options) (*Store, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return New(client, opts), nil
}

// New wraps an existing client.
func New(client *redis.Client, opts Options) *Store {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl, now: time.Now}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client exposes the connection so the scheduler and locks share one pool.
func (s *Store) Client() *redis.Client { return s.client }

// DefaultTTL returns the lifetime given to new sessions.
func (s *Store) DefaultTTL() time.Duration { return s.ttl }

func dataKey(sid string) string { return "shipping:data:" + sid }
func metaKey(sid string) string { return "shipping:meta:" + sid }

// Key is the cache key of one report for one filter. Logically equal
// filters map to the same key.
func Key(sid, report string, f filter.Filter) string {
	return fmt.Sprintf("analytics:%s:%s:%s", sid, f.Fingerprint(), report)
}

// NewID returns a fresh session id of the form session_<unix ms>_<9 hex>.
func NewID(now time.Time) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), hex[:9])
}

var idPattern = regexp.MustCompile(`^session_\d+_[0-9a-f]+$`)

// ValidID reports whether sid has the shape NewID produces. Valid ids
// carry no glob metacharacters, so they are safe inside SCAN patterns.
func ValidID(sid string) bool { return idPattern.MatchString(sid) }

// Create stores a new dataset under a fresh session id.
func (s *Store) Create(ctx context.Context, records []*datanorm.Record, source string) (*Metadata, error) {
	now := s.now().UTC()
	meta := &Metadata{
		SessionID:   NewID(now),
		RecordCount: len(records),
		Source:      source,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	if records == nil {
		records = []*datanorm.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, dataKey(meta.SessionID), data, s.ttl)
		pipe.Set(ctx, metaKey(meta.SessionID), metaData, s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	logger.Info("session created", "session_id", meta.SessionID, "records", meta.RecordCount, "bytes", len(data))
	return meta, nil
}

// Records loads the normalized dataset of a session.
func (s *Store) Records(ctx context.Context, sid string) ([]*datanorm.Record, error) {
	data, err := s.client.Get(ctx, dataKey(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sid, err)
	}
	var records []*datanorm.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sid, err)
	}
	return records, nil
}

// Metadata loads the description of a session.
func (s *Store) Metadata(ctx context.Context, sid string) (*Metadata, error) {
	data, err := s.client.Get(ctx, metaKey(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("load metadata %s: %w", sid, err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", sid, err)
	}
	return &meta, nil
}

// TTL returns the remaining lifetime of a session.
func (s *Store) TTL(ctx context.Context, sid string) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, dataKey(sid)).Result()
	if err != nil {
		return 0, fmt.Errorf("ttl %s: %w", sid, err)
	}
	// go-redis passes the -2 (missing) and -1 (no expiry) replies through
	// unscaled.
	switch {
	case ttl == -2 || ttl == 0:
		return 0, ErrSessionExpired
	case ttl < 0:
		return s.ttl, nil
	}
	return ttl, nil
}

// Alive reports whether the session's dataset is still present.
func (s *Store) Alive(ctx context.Context, sid string) (bool, error) {
	n, err := s.client.Exists(ctx, dataKey(sid)).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", sid, err)
	}
	return n == 1, nil
}

// Put caches a report result. The entry expires together with the
// session's dataset, never later. Re-putting the same key overwrites it.
func (s *Store) Put(ctx context.Context, sid, report string, f filter.Filter, value any) error {
	ttl, err := s.TTL(ctx, sid)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", report, err)
	}
	if err := s.client.Set(ctx, Key(sid, report, f), data, ttl).Err(); err != nil {
		return fmt.Errorf("store %s: %w", report, err)
	}
	return nil
}

// Get decodes a cached report into dst. A dead session is reported as
// ErrSessionExpired even if the report entry itself is still present.
func (s *Store) Get(ctx context.Context, sid, report string, f filter.Filter, dst any) error {
	alive, err := s.Alive(ctx, sid)
	if err != nil {
		return err
	}
	if !alive {
		return ErrSessionExpired
	}

	data, err := s.client.Get(ctx, Key(sid, report, f)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotComputed
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", report, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", report, err)
	}
	return nil
}

// Delete drops a session and every report cached for it.
func (s *Store) Delete(ctx context.Context, sid string) error {
	if !ValidID(sid) {
		return fmt.Errorf("%w: %q", ErrInvalidID, sid)
	}
	keys := []string{dataKey(sid), metaKey(sid)}
	iter := s.client.Scan(ctx, 0, "analytics:"+escapeGlob(sid)+":*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", sid, err)
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", sid, err)
	}
	logger.Info("session deleted", "session_id", sid, "keys", len(keys))
	return nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// escapeGlob quotes the characters Redis treats specially in MATCH patterns.
func escapeGlob(s string) string { return globEscaper.Replace(s) }
