package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/charlesng35/taskboard/pkg/logger"
	"github.com/charlesng35/taskboard/pkg/metrics"
)

// DefaultShardCount is the number of lock stripes used when none is configured.
const DefaultShardCount = 32

// ErrConnectionClosed signals that a connection can no longer accept messages.
// The registry unregisters connections that report it.
var ErrConnectionClosed = errors.New("realtime: connection closed")

// Conn is a live duplex connection owned by its transport. Implementations are
// used as map keys and must be comparable (pointer receivers).
type Conn interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Registry maps user IDs to their open live connections.
type Registry struct {
	shards []*shard
	log    *zap.Logger
}

type shard struct {
	mu    sync.RWMutex
	users map[string]map[Conn]struct{}
}

// Option customises a Registry.
type Option func(*Registry)

// WithShardCount overrides the number of lock stripes.
func WithShardCount(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.shards = newShards(n)
		}
	}
}

// WithLogger overrides the registry logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		shards: newShards(DefaultShardCount),
		log:    logger.WithModule("realtime"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{users: make(map[string]map[Conn]struct{})}
	}
	return shards
}

func (r *Registry) shardFor(userID string) *shard {
	return r.shards[xxhash.Sum64String(userID)%uint64(len(r.shards))]
}

// Connect registers conn under userID. Registering the same conn twice is a no-op.
func (r *Registry) Connect(conn Conn, userID string) {
	if conn == nil || userID == "" {
		return
	}

	s := r.shardFor(userID)
	s.mu.Lock()
	conns, ok := s.users[userID]
	if !ok {
		conns = make(map[Conn]struct{})
		s.users[userID] = conns
	}
	_, exists := conns[conn]
	conns[conn] = struct{}{}
	total := len(conns)
	s.mu.Unlock()

	if exists {
		return
	}
	metrics.LiveConnections.Inc()
	r.log.Debug("connection registered", zap.String("user_id", userID), zap.Int("user_connections", total))
}

// Disconnect removes conn from userID. The user entry is dropped once its last
// connection leaves. Unknown users or connections are ignored.
func (r *Registry) Disconnect(conn Conn, userID string) {
	if conn == nil || userID == "" {
		return
	}

	s := r.shardFor(userID)
	s.mu.Lock()
	conns, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		return
	}
	_, exists := conns[conn]
	delete(conns, conn)
	if len(conns) == 0 {
		delete(s.users, userID)
	}
	s.mu.Unlock()

	if exists {
		metrics.LiveConnections.Dec()
		r.log.Debug("connection unregistered", zap.String("user_id", userID))
	}
}

// SendToUser delivers msg to every connection registered for userID and returns
// how many accepted it. Failures are handled per connection and never returned.
func (r *Registry) SendToUser(ctx context.Context, userID string, msg Message) int {
	conns := r.snapshot(userID)
	if len(conns) == 0 {
		return 0
	}

	delivered := 0
	for _, conn := range conns {
		if ctx.Err() != nil {
			r.log.Debug("send cancelled", zap.String("user_id", userID), zap.Error(ctx.Err()))
			break
		}
		if r.deliver(ctx, conn, userID, msg) {
			delivered++
		}
	}
	return delivered
}

// Broadcast delivers msg to every registered user and returns the total delivered.
func (r *Registry) Broadcast(ctx context.Context, msg Message) int {
	delivered := 0
	for _, userID := range r.Users() {
		delivered += r.SendToUser(ctx, userID, msg)
	}
	return delivered
}

func (r *Registry) deliver(ctx context.Context, conn Conn, userID string, msg Message) bool {
	err := conn.Send(ctx, msg)
	switch {
	case err == nil:
		metrics.LivePushes.WithLabelValues("delivered").Inc()
		return true
	case errors.Is(err, ErrConnectionClosed):
		metrics.LivePushes.WithLabelValues("closed").Inc()
		r.log.Debug("dropping closed connection", zap.String("user_id", userID))
		r.Disconnect(conn, userID)
	default:
		metrics.LivePushes.WithLabelValues("failed").Inc()
		r.log.Warn("live push failed", zap.String("user_id", userID), zap.Error(err))
	}
	return false
}

func (r *Registry) snapshot(userID string) []Conn {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := s.users[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]Conn, 0, len(conns))
	for conn := range conns {
		out = append(out, conn)
	}
	return out
}

// ConnectionCount returns the number of connections registered for userID.
func (r *Registry) ConnectionCount(userID string) int {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID])
}

// IsConnected reports whether userID has a registered entry.
func (r *Registry) IsConnected(userID string) bool {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok
}

// Users returns the IDs of all users with at least one connection.
func (r *Registry) Users() []string {
	var users []string
	for _, s := range r.shards {
		s.mu.RLock()
		for userID := range s.users {
			users = append(users, userID)
		}
		s.mu.RUnlock()
	}
	return users
}

// Close closes every registered connection. Transports unregister themselves on close;
// any connection still present afterwards is removed here.
func (r *Registry) Close() {
	type entry struct {
		userID string
		conn   Conn
	}
	var entries []entry
	for _, s := range r.shards {
		s.mu.RLock()
		for userID, conns := range s.users {
			for conn := range conns {
				entries = append(entries, entry{userID: userID, conn: conn})
			}
		}
		s.mu.RUnlock()
	}

	for _, e := range entries {
		if err := e.conn.Close(); err != nil {
			r.log.Debug("close connection", zap.String("user_id", e.userID), zap.Error(err))
		}
		r.Disconnect(e.conn, e.userID)
	}
}
