package tracking_service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/models/booking_models"
	"github.com/joy095/dispatch/models/professional_models"
	"github.com/joy095/dispatch/models/service_models"
	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/repository/memory"
	"github.com/joy095/dispatch/services/booking_store"
	"github.com/joy095/dispatch/services/professional_registry"
	"github.com/joy095/dispatch/services/realtime_service"
	"github.com/joy095/dispatch/utils"
	"github.com/joy095/dispatch/utils/geo"
)

func init() { logger.Silence() }

var destination = geo.Point{Lon: 88.3639, Lat: 22.5726}

type emitted struct {
	room  string
	event string
}

type recordingBus struct {
	mu     sync.Mutex
	events []emitted
}

func (b *recordingBus) Emit(_ context.Context, room, event string, _ any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, emitted{room: room, event: event})
	return nil
}

func (b *recordingBus) Close() error { return nil }

type fixture struct {
	store    *memory.Store
	registry *professional_registry.Registry
	bookings *booking_store.Store
	bus      *recordingBus
	rooms    *realtime_service.Rooms
	svc      *Service
	pro      *professional_models.Professional
	booking  *booking_models.Booking
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	registry := professional_registry.New(store, nil)
	bookings := booking_store.New(store)
	bus := &recordingBus{}
	rooms := realtime_service.NewRooms(time.Minute)

	service := &service_models.Service{ID: uuid.New(), Name: "Wiring", Category: "electrician", BasePrice: 800, IsActive: true}
	require.NoError(t, store.InsertService(ctx, service))
	pro := &professional_models.Professional{
		Name:               "pro",
		Specializations:    []string{"electrician"},
		VerificationStatus: professional_models.VerificationVerified,
		IsAvailable:        true,
		IsOnline:           true,
	}
	require.NoError(t, registry.Register(ctx, pro))

	dest := destination
	b, _, err := bookings.Create(ctx, booking_store.CreateRequest{
		CustomerID: uuid.New(), ServiceID: service.ID, Destination: &dest, ScheduledDate: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	return &fixture{
		store: store, registry: registry, bookings: bookings, bus: bus, rooms: rooms,
		svc:     New(store, registry, bookings, NewMemoryCache(time.Minute), bus, rooms),
		pro:     pro,
		booking: b,
	}
}

func (f *fixture) assign(t *testing.T) {
	t.Helper()
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		if _, err := f.bookings.ApplyTx(ctx, tx, f.booking.ID, booking_models.EventAccept, func(b *booking_models.Booking) error {
			b.ProfessionalID = &f.pro.ID
			return nil
		}); err != nil {
			return err
		}
		_, err := f.registry.ClaimTx(ctx, tx, f.pro.ID, f.booking.ID)
		return err
	}))
}

func kmNorth(km float64) geo.Point {
	return geo.Point{Lon: destination.Lon, Lat: destination.Lat + km/111.19}
}

func TestIngestComputesETAForAssignedBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.assign(t)

	// 10 km at 30 km/h.
	res, err := f.svc.IngestLocation(ctx, f.pro.ID, kmNorth(10), professional_registry.LocationMeta{Speed: 8}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.ETAMinutes)
	assert.Equal(t, 20, *res.ETAMinutes)
	assert.Equal(t, f.booking.ID, *res.BookingID)

	b, err := f.bookings.Get(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking_models.StatusAccepted, b.Status, "location never moves status")
	require.NotNil(t, b.Tracking.ETAMinutes)
	assert.Equal(t, 20, *b.Tracking.ETAMinutes)
	require.NotNil(t, b.Tracking.LastLocation)

	assert.ElementsMatch(t, []emitted{
		{room: realtime_service.BookingRoom(f.booking.ID), event: realtime_service.EventProfessionalLocation},
		{room: realtime_service.UserRoom(f.booking.CustomerID), event: realtime_service.EventProfessionalLocation},
	}, f.bus.events)
	assert.Equal(t, []string{member(f.pro.ID)}, f.rooms.Members(realtime_service.BookingRoom(f.booking.ID)))
}

func TestIngestIgnoresBookingNotAssignedToCaller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.IngestLocation(ctx, f.pro.ID, kmNorth(2), professional_registry.LocationMeta{}, &f.booking.ID)
	require.NoError(t, err)
	assert.Nil(t, res.ETAMinutes)
	assert.Empty(t, f.bus.events)

	b, err := f.bookings.Get(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Nil(t, b.Tracking.ETAMinutes)
}

// racingStore runs afterRead once, right after a plain booking read, to
// land a concurrent write between the read and the tracking update.
type racingStore struct {
	*memory.Store
	once      sync.Once
	afterRead func()
}

func (r *racingStore) GetBooking(ctx context.Context, id uuid.UUID) (*booking_models.Booking, error) {
	b, err := r.Store.GetBooking(ctx, id)
	if err == nil && r.afterRead != nil {
		r.once.Do(r.afterRead)
	}
	return b, err
}

func TestIngestDropsPingWhenBookingCompletesConcurrently(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.assign(t)

	racing := &racingStore{Store: f.store}
	racing.afterRead = func() {
		require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			_, err := f.bookings.ApplyTx(ctx, tx, f.booking.ID, booking_models.EventComplete, nil)
			return err
		}))
	}
	bookings := booking_store.New(racing)
	svc := New(racing, f.registry, bookings, NewMemoryCache(time.Minute), f.bus, f.rooms)

	res, err := svc.IngestLocation(ctx, f.pro.ID, kmNorth(10), professional_registry.LocationMeta{}, nil)
	require.NoError(t, err)
	assert.Nil(t, res.ETAMinutes)
	assert.Empty(t, f.bus.events)
	assert.Empty(t, f.rooms.Members(realtime_service.BookingRoom(f.booking.ID)))

	b, err := f.bookings.Get(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking_models.StatusCompleted, b.Status)
	assert.Nil(t, b.Tracking.ETAMinutes)
	assert.Nil(t, b.Tracking.LastLocation)
}

func TestIngestRejectsBadCoordinates(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.IngestLocation(context.Background(), f.pro.ID, geo.Point{Lon: 200, Lat: 0}, professional_registry.LocationMeta{}, nil)
	assert.ErrorIs(t, err, utils.ErrValidation)
}

func TestIngestSkipsStalePing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.assign(t)
	now := time.Now().UTC()

	_, err := f.svc.IngestLocation(ctx, f.pro.ID, kmNorth(3), professional_registry.LocationMeta{Timestamp: now}, nil)
	require.NoError(t, err)
	res, err := f.svc.IngestLocation(ctx, f.pro.ID, kmNorth(9), professional_registry.LocationMeta{Timestamp: now.Add(-time.Minute)}, nil)
	require.NoError(t, err)
	assert.Nil(t, res.ETAMinutes)
	assert.Len(t, f.bus.events, 2)

	b, err := f.bookings.Get(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, *b.Tracking.ETAMinutes)
}

func TestTrackingInfo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	info, err := f.svc.GetTrackingInfo(ctx, f.booking.ID, f.booking.CustomerID, utils.RoleCustomer)
	require.NoError(t, err)
	assert.Equal(t, booking_models.StatusPending, info.Status)
	assert.Nil(t, info.ETAMinutes)
	assert.Nil(t, info.ProfessionalLocation)

	f.assign(t)
	info, err = f.svc.GetTrackingInfo(ctx, f.booking.ID, f.booking.CustomerID, utils.RoleCustomer)
	require.NoError(t, err)
	assert.Nil(t, info.ETAMinutes, "no location reported yet")

	_, err = f.svc.IngestLocation(ctx, f.pro.ID, kmNorth(5), professional_registry.LocationMeta{}, nil)
	require.NoError(t, err)
	info, err = f.svc.GetTrackingInfo(ctx, f.booking.ID, f.booking.CustomerID, utils.RoleCustomer)
	require.NoError(t, err)
	require.NotNil(t, info.ETAMinutes)
	assert.Equal(t, 10, *info.ETAMinutes)
	assert.Equal(t, destination, info.Destination)

	_, err = f.svc.GetTrackingInfo(ctx, f.booking.ID, uuid.New(), utils.RoleCustomer)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestDisconnectTearsDownLiveState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.assign(t)
	_, err := f.svc.IngestLocation(ctx, f.pro.ID, kmNorth(1), professional_registry.LocationMeta{}, nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.Disconnect(ctx, f.pro.ID))
	p, err := f.registry.Get(ctx, f.pro.ID)
	require.NoError(t, err)
	assert.False(t, p.IsOnline)

	cached, err := f.svc.cache.Get(ctx, f.pro.ID)
	require.NoError(t, err)
	assert.Nil(t, cached)
	assert.Empty(t, f.rooms.Members(realtime_service.BookingRoom(f.booking.ID)))
}

func TestMemoryCacheExpires(t *testing.T) {
	ctx := context.Background()
	clock := time.Now()
	c := NewMemoryCache(time.Minute)
	c.now = func() time.Time { return clock }
	id := uuid.New()

	require.NoError(t, c.Put(ctx, CachedLocation{ProfessionalID: id, Point: destination}))
	got, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)

	clock = clock.Add(2 * time.Minute)
	got, err = c.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Put(ctx, CachedLocation{ProfessionalID: id}))
	clock = clock.Add(2 * time.Minute)
	assert.Equal(t, 1, c.Sweep())
}

type fakeKV struct {
	data map[string]string
	ttl  time.Duration
}

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttl = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeKV) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := &fakeKV{data: map[string]string{}}
	c := &RedisCache{client: kv, ttl: LocationTTL}
	id := uuid.New()

	missing, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, c.Put(ctx, CachedLocation{ProfessionalID: id, Point: destination, Speed: 4}))
	assert.Contains(t, kv.data, "location:"+id.String())
	assert.Equal(t, LocationTTL, kv.ttl)

	got, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, destination, got.Point)

	require.NoError(t, c.Delete(ctx, id))
	assert.Empty(t, kv.data)
}
