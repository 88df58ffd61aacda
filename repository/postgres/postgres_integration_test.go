//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/joy095/dispatch/config/db"
	"github.com/joy095/dispatch/models/booking_models"
	"github.com/joy095/dispatch/models/outbox_models"
	"github.com/joy095/dispatch/models/professional_models"
	"github.com/joy095/dispatch/models/service_models"
	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/utils/geo"
)

var errAlreadyProcessed = errors.New("already processed")

func startPostgres(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "dispatch",
				"POSTGRES_PASSWORD": "dispatch",
				"POSTGRES_DB":       "dispatch",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := db.Connect(ctx, fmt.Sprintf("postgres://dispatch:dispatch@%s:%s/dispatch?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(pool) })
	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "schema must be re-appliable")
	return New(pool)
}

func seed(t *testing.T, s *Store) (*service_models.Service, *booking_models.Booking, []*professional_models.Professional) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	svc := &service_models.Service{ID: uuid.New(), Name: "Pipe repair", Category: "plumber", BasePrice: 500, IsActive: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.InsertService(ctx, svc))

	pros := make([]*professional_models.Professional, 2)
	for i := range pros {
		p := &professional_models.Professional{
			ID: uuid.New(), Name: fmt.Sprintf("pro-%d", i), Specializations: []string{"plumber"},
			VerificationStatus: professional_models.VerificationVerified,
			IsAvailable:        true, IsOnline: true, Rating: 4.5, CreatedAt: now, UpdatedAt: now,
		}
		p.RecordLocation(professional_models.Location{Point: geo.Point{Lon: 88.36 + float64(i)/100, Lat: 22.57}, Timestamp: now})
		require.NoError(t, s.InsertProfessional(ctx, p))
		pros[i] = p
	}

	b, err := booking_models.NewBooking(uuid.New(), svc.ID, geo.Point{Lon: 88.37, Lat: 22.58}, now.Add(2*time.Hour), 500, "834219", false)
	require.NoError(t, err)
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertBooking(ctx, b)
	}))
	return svc, b, pros
}

func TestIntegrationConcurrentAcceptLocksRows(t *testing.T) {
	s := startPostgres(t)
	_, b, pros := seed(t, s)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, len(pros))
	for i, p := range pros {
		wg.Add(1)
		go func(i int, proID uuid.UUID) {
			defer wg.Done()
			results[i] = s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				locked, err := tx.GetBooking(ctx, b.ID)
				if err != nil {
					return err
				}
				if locked.Status != booking_models.StatusPending {
					return errAlreadyProcessed
				}
				pro, err := tx.GetProfessional(ctx, proID)
				if err != nil {
					return err
				}
				locked.Status = booking_models.StatusAccepted
				locked.ProfessionalID = &proID
				locked.UpdatedAt = time.Now().UTC()
				if err := tx.UpdateBooking(ctx, locked); err != nil {
					return err
				}
				pro.Assign(&professional_models.Assignment{BookingID: b.ID, Phase: professional_models.PhaseAssigned, AssignedAt: time.Now().UTC()})
				return tx.UpdateProfessional(ctx, pro)
			})
		}(i, p.ID)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, errAlreadyProcessed)
		}
	}
	assert.Equal(t, 1, wins)

	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking_models.StatusAccepted, got.Status)
	require.NotNil(t, got.ProfessionalID)
	assert.Equal(t, "834219", got.VerificationCode)

	available := 0
	for _, p := range pros {
		fresh, err := s.GetProfessional(ctx, p.ID)
		require.NoError(t, err)
		if fresh.IsAvailable {
			available++
			assert.Nil(t, fresh.CurrentAssignment)
		} else {
			require.NotNil(t, fresh.CurrentAssignment)
			assert.Equal(t, b.ID, fresh.CurrentAssignment.BookingID)
		}
	}
	assert.Equal(t, 1, available)
}

func TestIntegrationQueriesAndOutbox(t *testing.T) {
	s := startPostgres(t)
	svc, b, _ := seed(t, s)
	ctx := context.Background()

	_, err := s.GetService(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	got, err := s.GetService(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"plumber"}, got.Capabilities())

	in, err := s.ProfessionalsInBox(ctx, geo.BoxAround(geo.Point{Lon: 88.37, Lat: 22.58}, 15000))
	require.NoError(t, err)
	assert.Len(t, in, 2)

	// Pending bookings have nobody travelling to them yet.
	eta := 6
	err = s.UpdateBookingLocation(ctx, b.ID, uuid.New(), geo.Point{Lon: 88.36, Lat: 22.57}, time.Now().UTC(), &eta)
	assert.ErrorIs(t, err, repository.ErrNotActive)
	fresh, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, fresh.Tracking.ETAMinutes)
	assert.Nil(t, fresh.Tracking.LastLocation)
	assert.Equal(t, booking_models.StatusPending, fresh.Status)

	_, active, pros := seed(t, s)
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		locked, err := tx.GetBooking(ctx, active.ID)
		if err != nil {
			return err
		}
		locked.Status = booking_models.StatusAccepted
		locked.ProfessionalID = &pros[0].ID
		return tx.UpdateBooking(ctx, locked)
	}))
	require.NoError(t, s.UpdateBookingLocation(ctx, active.ID, pros[0].ID, geo.Point{Lon: 88.36, Lat: 22.57}, time.Now().UTC(), &eta))
	assert.ErrorIs(t, s.UpdateBookingLocation(ctx, active.ID, pros[1].ID, geo.Point{Lon: 88.36, Lat: 22.57}, time.Now().UTC(), &eta), repository.ErrNotActive)
	fresh, err = s.GetBooking(ctx, active.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh.Tracking.ETAMinutes)
	assert.Equal(t, 6, *fresh.Tracking.ETAMinutes)
	assert.Equal(t, booking_models.StatusAccepted, fresh.Status)

	entry, err := outbox_models.NewOutboxEntry(b.CustomerID, outbox_models.TypeNewBooking, outbox_models.PriorityHigh, map[string]string{"bookingId": b.ID.String()})
	require.NoError(t, err)
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertOutbox(ctx, entry)
	}))
	due, err := s.DueOutbox(ctx, time.Now().Add(time.Second), 5, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.JSONEq(t, fmt.Sprintf(`{"bookingId":%q}`, b.ID.String()), string(due[0].Payload))

	require.NoError(t, s.MarkOutboxDelivered(ctx, entry.ID, time.Now().UTC()))
	due, err = s.DueOutbox(ctx, time.Now().Add(time.Second), 5, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}
