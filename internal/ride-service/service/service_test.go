package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ride-share/internal/ride-service/domain"
	"ride-share/internal/ride-service/infrastructure/repository"
	"ride-share/pkg/logger"
)

var (
	start  = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	driver = domain.Identity{ID: "d-1", Username: "karim", Role: domain.RoleDriver}
	riderA = domain.Identity{ID: "p-a", Username: "alice", Role: domain.RolePassenger}
	riderB = domain.Identity{ID: "p-b", Username: "bob", Role: domain.RolePassenger}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.DomainEvent
	err    error
}

func (n *recordingNotifier) Publish(ctx context.Context, e domain.DomainEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.EventType()
	}
	return out
}

type oracleFunc func(ctx context.Context, seats int, origin, destination string) (float64, error)

func (f oracleFunc) Estimate(ctx context.Context, seats int, origin, destination string) (float64, error) {
	return f(ctx, seats, origin, destination)
}

type fixture struct {
	svc      *RideService
	store    *repository.MemoryRideStore
	notifier *recordingNotifier
	clock    *clock
}

func newFixture(t *testing.T, oracle domain.PriceOracle, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		store:    repository.NewMemoryRideStore(),
		notifier: &recordingNotifier{},
		clock:    &clock{now: start},
	}
	var seq int64
	opts.Clock = f.clock.Now
	opts.NewID = func() string { return fmt.Sprintf("id-%d", atomic.AddInt64(&seq, 1)) }
	f.svc = NewRideService(f.store, oracle, f.notifier, logger.NewNop(), opts)
	return f
}

func (f *fixture) createRide(t *testing.T, seats domain.Seats, departIn time.Duration) *domain.Ride {
	t.Helper()
	price := 20.0
	r, err := f.svc.CreateRide(context.Background(), driver, CreateRideInput{
		Origin:        "Tunis",
		Destination:   "Sousse",
		DepartureTime: f.clock.Now().Add(departIn),
		Seats:         seats,
		Price:         &price,
	})
	if err != nil {
		t.Fatalf("CreateRide: %v", err)
	}
	return r
}

func TestCreateRide(t *testing.T) {
	t.Run("passenger cannot publish", func(t *testing.T) {
		f := newFixture(t, nil, Options{})
		_, err := f.svc.CreateRide(context.Background(), riderA, CreateRideInput{
			Origin: "A", Destination: "B", DepartureTime: start.Add(time.Hour), Seats: 2,
		})
		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("err = %v, want ErrForbidden", err)
		}
	})

	t.Run("explicit price wins", func(t *testing.T) {
		called := false
		f := newFixture(t, oracleFunc(func(context.Context, int, string, string) (float64, error) {
			called = true
			return 99, nil
		}), Options{})
		r := f.createRide(t, 3, time.Hour)
		if r.Price() != 20 || called {
			t.Errorf("price = %v, oracle called = %v", r.Price(), called)
		}
		if r.DriverName() != "karim" || r.Version() != 1 {
			t.Errorf("ride = %s v%d", r.DriverName(), r.Version())
		}
		if got := f.notifier.types(); len(got) != 1 || got[0] != domain.EventRideCreated {
			t.Errorf("events = %v", got)
		}
	})

	t.Run("oracle estimate", func(t *testing.T) {
		var gotSeats int
		var gotOrigin string
		f := newFixture(t, oracleFunc(func(_ context.Context, seats int, origin, _ string) (float64, error) {
			gotSeats, gotOrigin = seats, origin
			return 17.5, nil
		}), Options{})
		r, err := f.svc.CreateRide(context.Background(), driver, CreateRideInput{
			Origin: " Tunis ", Destination: "Sfax", DepartureTime: start.Add(time.Hour), Seats: 4,
		})
		if err != nil {
			t.Fatal(err)
		}
		if r.Price() != 17.5 || gotSeats != 4 || gotOrigin != "Tunis" {
			t.Errorf("price = %v, oracle saw %d %q", r.Price(), gotSeats, gotOrigin)
		}
	})

	fallbacks := map[string]oracleFunc{
		"oracle error": func(context.Context, int, string, string) (float64, error) {
			return 0, domain.Unavailable("estimate", errors.New("connection refused"))
		},
		"oracle zero": func(context.Context, int, string, string) (float64, error) { return 0, nil },
		"oracle timeout": func(ctx context.Context, _ int, _, _ string) (float64, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
	}
	for name, oracle := range fallbacks {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, oracle, Options{OracleTimeout: 20 * time.Millisecond})
			r, err := f.svc.CreateRide(context.Background(), driver, CreateRideInput{
				Origin: "A", Destination: "B", DepartureTime: start.Add(time.Hour), Seats: 1,
			})
			if err != nil {
				t.Fatal(err)
			}
			if r.Price() != DefaultPrice {
				t.Errorf("price = %v, want %v", r.Price(), DefaultPrice)
			}
		})
	}

	t.Run("invalid input skips oracle", func(t *testing.T) {
		called := false
		f := newFixture(t, oracleFunc(func(context.Context, int, string, string) (float64, error) {
			called = true
			return 10, nil
		}), Options{})
		_, err := f.svc.CreateRide(context.Background(), driver, CreateRideInput{
			Origin: "", Destination: "B", DepartureTime: start.Add(time.Hour), Seats: 1,
		})
		if !errors.Is(err, domain.ErrInvalidArgument) || called {
			t.Errorf("err = %v, oracle called = %v", err, called)
		}
	})

	t.Run("non-positive explicit price", func(t *testing.T) {
		f := newFixture(t, nil, Options{})
		zero := 0.0
		_, err := f.svc.CreateRide(context.Background(), driver, CreateRideInput{
			Origin: "A", Destination: "B", DepartureTime: start.Add(time.Hour), Seats: 1, Price: &zero,
		})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestBookingScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	ride := f.createRide(t, 3, 24*time.Hour)

	a, err := f.svc.BookRide(ctx, riderA, ride.ID(), 2)
	if err != nil {
		t.Fatalf("A books 2: %v", err)
	}
	if a.Ride.AvailableSeats() != 1 || a.Ride.ReservedSeats() != 2 {
		t.Fatalf("seats = %d/%d", a.Ride.AvailableSeats(), a.Ride.ReservedSeats())
	}
	if a.Reservation.RiderName != "alice" || a.Reservation.SeatsBooked != 2 {
		t.Errorf("reservation = %+v", a.Reservation)
	}

	_, err = f.svc.BookRide(ctx, riderB, ride.ID(), 2)
	if !errors.Is(err, domain.ErrConflict) || domain.Message(err) != "only 1 place(s) available" {
		t.Fatalf("B books 2: %v", err)
	}

	if _, err := f.svc.BookRide(ctx, riderB, ride.ID(), 1); err != nil {
		t.Fatalf("B books 1: %v", err)
	}

	_, err = f.svc.BookRide(ctx, driver, ride.ID(), 1)
	if !errors.Is(err, domain.ErrConflict) {
		// the ride is full, so capacity is reported before self-booking
		t.Fatalf("driver books full ride: %v", err)
	}

	updated, err := f.svc.CancelBooking(ctx, riderA, ride.ID(), a.Reservation.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if updated.AvailableSeats() != 2 || updated.ReservedSeats() != 1 {
		t.Errorf("after cancel seats = %d/%d", updated.AvailableSeats(), updated.ReservedSeats())
	}

	_, err = f.svc.BookRide(ctx, driver, ride.ID(), 1)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("self booking: %v", err)
	}

	_, err = f.svc.BookRide(ctx, riderB, ride.ID(), 1)
	var dup *domain.BookingConflictError
	if !errors.As(err, &dup) {
		t.Fatalf("duplicate: %v", err)
	}
	if dup.Existing.RiderID != riderB.ID || dup.Ride == nil {
		t.Errorf("duplicate carries %+v", dup.Existing)
	}

	want := []string{
		domain.EventRideCreated,
		domain.EventReservationCreated,
		domain.EventReservationCreated,
		domain.EventReservationCancelled,
	}
	got := f.notifier.types()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestBookRideErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	ride := f.createRide(t, 2, time.Hour)

	if _, err := f.svc.BookRide(ctx, riderA, "missing", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing ride: %v", err)
	}
	if _, err := f.svc.BookRide(ctx, riderA, ride.ID(), 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("zero seats: %v", err)
	}
	if _, err := f.svc.CancelBooking(ctx, riderA, ride.ID(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown reservation: %v", err)
	}

	b, _ := f.svc.BookRide(ctx, riderA, ride.ID(), 1)
	if _, err := f.svc.CancelBooking(ctx, riderB, ride.ID(), b.Reservation.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cancel someone else's reservation: %v", err)
	}
}

func TestUpdateRide(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	ride := f.createRide(t, 3, time.Hour)

	desc := "meet at the station"
	seats := domain.Seats(4)

	if _, err := f.svc.UpdateRide(ctx, riderA, ride.ID(), domain.RidePatch{Description: &desc}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("non owner: %v", err)
	}
	if _, err := f.svc.UpdateRide(ctx, driver, "missing", domain.RidePatch{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing: %v", err)
	}

	got, err := f.svc.UpdateRide(ctx, driver, ride.ID(), domain.RidePatch{AvailableSeats: &seats})
	if err != nil || got.AvailableSeats() != 4 {
		t.Fatalf("free ride seat change: %v", err)
	}

	f.svc.BookRide(ctx, riderA, ride.ID(), 1)

	if _, err := f.svc.UpdateRide(ctx, driver, ride.ID(), domain.RidePatch{AvailableSeats: &seats}); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("reserved ride seat change: %v", err)
	}
	got, err = f.svc.UpdateRide(ctx, driver, ride.ID(), domain.RidePatch{Description: &desc})
	if err != nil || got.Description() != desc || got.ReservedSeats() != 1 {
		t.Errorf("reserved ride description change: %v", err)
	}

	events := f.notifier.types()
	if events[len(events)-1] != domain.EventRideUpdated {
		t.Errorf("last event = %s", events[len(events)-1])
	}
}

func TestDeleteRide(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	ride := f.createRide(t, 2, time.Hour)

	if err := f.svc.DeleteRide(ctx, riderA, ride.ID()); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("non owner: %v", err)
	}

	b, _ := f.svc.BookRide(ctx, riderA, ride.ID(), 1)
	if err := f.svc.DeleteRide(ctx, driver, ride.ID()); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("reserved: %v", err)
	}

	f.svc.CancelBooking(ctx, riderA, ride.ID(), b.Reservation.ID)
	if err := f.svc.DeleteRide(ctx, driver, ride.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.GetRide(ctx, ride.ID()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ride still readable: %v", err)
	}
	if err := f.svc.DeleteRide(ctx, driver, ride.ID()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestListRides(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	soon := f.createRide(t, 2, time.Hour)
	later := f.createRide(t, 2, 48*time.Hour)
	f.svc.BookRide(ctx, riderA, later.ID(), 1)

	f.clock.Advance(2 * time.Hour) // soon has departed

	upcoming, err := f.svc.ListRides(ctx, domain.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(upcoming) != 1 || upcoming[0].ID() != later.ID() {
		t.Errorf("ListRides = %d rides", len(upcoming))
	}

	none, err := f.svc.ListRides(ctx, domain.Filter{Origin: "Gabes"})
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("no match = %v, %v", none, err)
	}

	driven, _ := f.svc.ListRidesForUser(ctx, driver.ID, false)
	if len(driven) != 2 || driven[0].ID() != soon.ID() {
		t.Errorf("driver rides = %d", len(driven))
	}
	booked, _ := f.svc.ListRidesForUser(ctx, riderA.ID, true)
	if len(booked) != 1 || booked[0].ID() != later.ID() {
		t.Errorf("rider rides = %d", len(booked))
	}
}

func TestConcurrentBookingsNeverOversell(t *testing.T) {
	const capacity, riders = 10, 50

	// every lost race means another booking committed, so capacity+riders
	// attempts can never run out
	f := newFixture(t, nil, Options{MaxAttempts: capacity + riders})
	ride := f.createRide(t, capacity, time.Hour)

	var (
		wg        sync.WaitGroup
		succeeded int64
		conflicts int64
	)
	for i := 0; i < riders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rider := domain.Identity{ID: fmt.Sprintf("p-%d", i), Role: domain.RolePassenger}
			_, err := f.svc.BookRide(context.Background(), rider, ride.ID(), 1)
			switch {
			case err == nil:
				atomic.AddInt64(&succeeded, 1)
			case errors.Is(err, domain.ErrConflict):
				atomic.AddInt64(&conflicts, 1)
			default:
				t.Errorf("rider %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != capacity || conflicts != riders-capacity {
		t.Errorf("succeeded = %d, conflicts = %d", succeeded, conflicts)
	}
	got, _ := f.store.Get(context.Background(), ride.ID())
	if got.AvailableSeats() != 0 || got.ReservedSeats() != capacity || len(got.Reservations()) != capacity {
		t.Errorf("final seats = %d/%d with %d reservations", got.AvailableSeats(), got.ReservedSeats(), len(got.Reservations()))
	}
}

// lossyStore loses every write race.
type lossyStore struct {
	*repository.MemoryRideStore
	saves int64
}

func (s *lossyStore) Save(ctx context.Context, r *domain.Ride) (*domain.Ride, error) {
	if r.Version() == 0 {
		return s.MemoryRideStore.Save(ctx, r)
	}
	atomic.AddInt64(&s.saves, 1)
	return nil, domain.ErrVersionConflict
}

func TestMutationGivesUpAfterMaxAttempts(t *testing.T) {
	store := &lossyStore{MemoryRideStore: repository.NewMemoryRideStore()}
	notifier := &recordingNotifier{}
	clk := &clock{now: start}
	svc := NewRideService(store, nil, notifier, logger.NewNop(), Options{MaxAttempts: 3, Clock: clk.Now})

	price := 10.0
	ride, err := svc.CreateRide(context.Background(), driver, CreateRideInput{
		Origin: "A", Destination: "B", DepartureTime: start.Add(time.Hour), Seats: 2, Price: &price,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.BookRide(context.Background(), riderA, ride.ID(), 1)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if store.saves != 3 {
		t.Errorf("saves = %d, want 3", store.saves)
	}
	if got := notifier.types(); len(got) != 1 {
		t.Errorf("failed booking published events: %v", got)
	}
}

func TestCancelledContextWritesNothing(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ride := f.createRide(t, 2, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.svc.BookRide(ctx, riderA, ride.ID(), 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	got, _ := f.store.Get(context.Background(), ride.ID())
	if got.ReservedSeats() != 0 {
		t.Errorf("booking written despite cancelled context")
	}
}

func TestNotifierFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, nil, Options{})
	f.notifier.err = errors.New("broker down")

	ride := f.createRide(t, 2, time.Hour)
	if _, err := f.svc.BookRide(context.Background(), riderA, ride.ID(), 1); err != nil {
		t.Fatalf("BookRide: %v", err)
	}
	got, _ := f.store.Get(context.Background(), ride.ID())
	if got.ReservedSeats() != 1 {
		t.Errorf("booking not committed")
	}
}
