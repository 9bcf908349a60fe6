package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ride-share/internal/ride-service/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const rideColumns = `
	r.id, r.origin, r.destination, r.driver_id, r.driver_name,
	r.departure_time, r.available_seats, r.reserved_seats, r.price,
	r.description, r.created_at, r.version`

// PostgresRideStore implements domain.RideStore on two tables: rides and
// reservations (cascading on ride delete). Writes are compare-and-swap on
// rides.version inside one transaction.
type PostgresRideStore struct {
	db *pgxpool.Pool
}

// NewPostgresRideStore creates a new PostgreSQL store
func NewPostgresRideStore(db *pgxpool.Pool) *PostgresRideStore {
	return &PostgresRideStore{
		db: db,
	}
}

func (s *PostgresRideStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Get reads the ride and its reservations from one snapshot.
func (s *PostgresRideStore) Get(ctx context.Context, id string) (*domain.Ride, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, domain.Unavailable("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT`+rideColumns+` FROM rides r WHERE r.id = $1`, id)
	rec, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundf("ride %s not found", id)
	}
	if err != nil {
		return nil, domain.Unavailable("query ride", err)
	}

	byRide, err := loadReservations(ctx, tx, []string{id})
	if err != nil {
		return nil, err
	}
	return rec.toDomain(byRide[id]), nil
}

// List translates the filter into SQL with the same semantics as
// domain.Filter.Matches.
func (s *PostgresRideStore) List(ctx context.Context, filter domain.Filter) ([]*domain.Ride, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, domain.Unavailable("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	query, args := buildListQuery(filter)
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.Unavailable("query rides", err)
	}

	var records []rideRecord
	for rows.Next() {
		rec, err := scanRide(rows)
		if err != nil {
			rows.Close()
			return nil, domain.Unavailable("scan ride", err)
		}
		records = append(records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("iterate rides", err)
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.id
	}
	byRide, err := loadReservations(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Ride, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.toDomain(byRide[rec.id]))
	}
	return out, nil
}

// Save inserts (version 0) or replaces the ride and rewrites its
// reservation rows.
func (s *PostgresRideStore) Save(ctx context.Context, ride *domain.Ride) (*domain.Ride, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, domain.Unavailable("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	next := ride.Version() + 1

	if ride.Version() == 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO rides (
				id, origin, destination, driver_id, driver_name, departure_time,
				available_seats, reserved_seats, price, description, created_at, version
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			ride.ID(),
			ride.Origin(),
			ride.Destination(),
			ride.DriverID(),
			ride.DriverName(),
			ride.DepartureTime(),
			ride.AvailableSeats(),
			ride.ReservedSeats(),
			ride.Price(),
			ride.Description(),
			ride.CreatedAt(),
			next,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return nil, domain.Conflictf("ride %s already exists", ride.ID())
			}
			return nil, domain.Unavailable("insert ride", err)
		}
	} else {
		tag, err := tx.Exec(ctx, `
			UPDATE rides
			SET
				origin = $1,
				destination = $2,
				departure_time = $3,
				available_seats = $4,
				reserved_seats = $5,
				price = $6,
				description = $7,
				version = $8
			WHERE id = $9 AND version = $10
		`,
			ride.Origin(),
			ride.Destination(),
			ride.DepartureTime(),
			ride.AvailableSeats(),
			ride.ReservedSeats(),
			ride.Price(),
			ride.Description(),
			next,
			ride.ID(),
			ride.Version(),
		)
		if err != nil {
			return nil, domain.Unavailable("update ride", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, s.missOrStale(ctx, tx, ride.ID())
		}

		if _, err := tx.Exec(ctx, `DELETE FROM reservations WHERE ride_id = $1`, ride.ID()); err != nil {
			return nil, domain.Unavailable("clear reservations", err)
		}
	}

	if err := insertReservations(ctx, tx, ride); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.Unavailable("commit ride", err)
	}
	return ride.WithVersion(next), nil
}

func (s *PostgresRideStore) Delete(ctx context.Context, id string, version int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.Unavailable("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM rides WHERE id = $1 AND version = $2`, id, version)
	if err != nil {
		return domain.Unavailable("delete ride", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrStale(ctx, tx, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Unavailable("commit delete", err)
	}
	return nil
}

// missOrStale explains a CAS write that matched no row.
func (s *PostgresRideStore) missOrStale(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rides WHERE id = $1)`, id).Scan(&exists); err != nil {
		return domain.Unavailable("check ride exists", err)
	}
	if !exists {
		return domain.NotFoundf("ride %s not found", id)
	}
	return domain.ErrVersionConflict
}

func insertReservations(ctx context.Context, tx pgx.Tx, ride *domain.Ride) error {
	reservations := ride.Reservations()
	if len(reservations) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(reservations))
	for i, res := range reservations {
		rows[i] = []interface{}{
			res.ID, ride.ID(), res.RiderID, res.RiderName, res.SeatsBooked, res.BookedAt, i,
		}
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"reservations"},
		[]string{"id", "ride_id", "rider_id", "rider_name", "seats_booked", "booked_at", "position"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return domain.Unavailable("insert reservations", err)
	}
	return nil
}

func loadReservations(ctx context.Context, tx pgx.Tx, rideIDs []string) (map[string][]domain.Reservation, error) {
	out := make(map[string][]domain.Reservation, len(rideIDs))
	if len(rideIDs) == 0 {
		return out, nil
	}

	rows, err := tx.Query(ctx, `
		SELECT ride_id, id, rider_id, rider_name, seats_booked, booked_at
		FROM reservations
		WHERE ride_id = ANY($1)
		ORDER BY ride_id, position
	`, rideIDs)
	if err != nil {
		return nil, domain.Unavailable("query reservations", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rideID string
			res    domain.Reservation
		)
		if err := rows.Scan(&rideID, &res.ID, &res.RiderID, &res.RiderName, &res.SeatsBooked, &res.BookedAt); err != nil {
			return nil, domain.Unavailable("scan reservation", err)
		}
		out[rideID] = append(out[rideID], res)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("iterate reservations", err)
	}
	return out, nil
}

// rideRecord is one row of the rides table.
type rideRecord struct {
	id             string
	origin         string
	destination    string
	driverID       string
	driverName     string
	departureTime  time.Time
	availableSeats int
	reservedSeats  int
	price          float64
	description    string
	createdAt      time.Time
	version        int64
}

func scanRide(row pgx.Row) (rideRecord, error) {
	var rec rideRecord
	err := row.Scan(
		&rec.id, &rec.origin, &rec.destination, &rec.driverID, &rec.driverName,
		&rec.departureTime, &rec.availableSeats, &rec.reservedSeats, &rec.price,
		&rec.description, &rec.createdAt, &rec.version,
	)
	return rec, err
}

func (rec rideRecord) toDomain(reservations []domain.Reservation) *domain.Ride {
	return domain.ReconstructRide(
		rec.id,
		rec.origin,
		rec.destination,
		rec.driverID,
		rec.driverName,
		rec.departureTime,
		rec.availableSeats,
		rec.reservedSeats,
		rec.price,
		rec.description,
		rec.createdAt,
		reservations,
		rec.version,
	)
}

// buildListQuery renders filter as a parameterised SELECT.
func buildListQuery(f domain.Filter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Origin != "" {
		conds = append(conds, `r.origin ILIKE `+arg(likePattern(f.Origin))+` ESCAPE '\'`)
	}
	if f.Destination != "" {
		conds = append(conds, `r.destination ILIKE `+arg(likePattern(f.Destination))+` ESCAPE '\'`)
	}
	if start, end, ok := f.DayBounds(); ok {
		conds = append(conds, `r.departure_time >= `+arg(start), `r.departure_time < `+arg(end))
	}
	if f.MinSeats != nil {
		conds = append(conds, `r.available_seats >= `+arg(*f.MinSeats))
	}
	if f.MaxPrice != nil {
		conds = append(conds, `r.price <= `+arg(*f.MaxPrice))
	}
	if f.DepartingAfter != nil {
		conds = append(conds, `r.departure_time > `+arg(*f.DepartingAfter))
	}
	if f.DriverID != "" {
		conds = append(conds, `r.driver_id = `+arg(f.DriverID))
	}
	if f.RiderID != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM reservations x WHERE x.ride_id = r.id AND x.rider_id = `+arg(f.RiderID)+`)`)
	}

	var b strings.Builder
	b.WriteString(`SELECT` + rideColumns + ` FROM rides r`)
	if len(conds) > 0 {
		b.WriteString(` WHERE `)
		b.WriteString(strings.Join(conds, ` AND `))
	}
	b.WriteString(` ORDER BY r.departure_time ASC, r.id ASC`)
	return b.String(), args
}

// likePattern makes a substring pattern, escaping LIKE metacharacters.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
