package realtime_service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/joy095/dispatch/logger"
)

// DefaultRoomTTL is how long a membership lives without being refreshed.
const DefaultRoomTTL = 10 * time.Minute

// Rooms tracks which connections are in which rooms. Memberships expire
// after the TTL unless Join refreshes them; Sweep evicts expired ones.
type Rooms struct {
	mu       sync.Mutex
	ttl      time.Duration
	rooms    map[string]map[string]time.Time
	byMember map[string]map[string]struct{}
	now      func() time.Time
}

func NewRooms(ttl time.Duration) *Rooms {
	if ttl <= 0 {
		ttl = DefaultRoomTTL
	}
	return &Rooms{
		ttl:      ttl,
		rooms:    make(map[string]map[string]time.Time),
		byMember: make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

// Join adds member to room or refreshes its expiry.
func (r *Rooms) Join(room, member string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]time.Time)
		r.rooms[room] = members
	}
	members[member] = r.now().Add(r.ttl)

	joined, ok := r.byMember[member]
	if !ok {
		joined = make(map[string]struct{})
		r.byMember[member] = joined
	}
	joined[room] = struct{}{}
}

func (r *Rooms) Leave(room, member string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(room, member)
}

// LeaveAll removes member from every room it joined. Called on disconnect.
func (r *Rooms) LeaveAll(member string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	joined := r.byMember[member]
	n := len(joined)
	for room := range joined {
		r.remove(room, member)
	}
	return n
}

func (r *Rooms) remove(room, member string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, member)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if joined, ok := r.byMember[member]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.byMember, member)
		}
	}
}

// Members lists the unexpired members of room, sorted.
func (r *Rooms) Members(room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	out := make([]string, 0, len(r.rooms[room]))
	for member, expires := range r.rooms[room] {
		if expires.After(now) {
			out = append(out, member)
		}
	}
	sort.Strings(out)
	return out
}

// Sweep evicts expired memberships and returns how many were removed.
func (r *Rooms) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	removed := 0
	for room, members := range r.rooms {
		for member, expires := range members {
			if !expires.After(now) {
				r.remove(room, member)
				removed++
			}
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (r *Rooms) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				logger.DebugLogger.Debugf("Evicted %d expired room memberships", n)
			}
		}
	}
}
