package repository

import (
	"context"
	"errors"
	"regexp"
	"time"

	"ride-share/internal/ride-service/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRideStore implements domain.RideStore with one document per ride and
// the reservations embedded in it. A single-document ReplaceOne is atomic,
// so the version guard in the filter is the whole concurrency story.
type MongoRideStore struct {
	coll *mongo.Collection
}

// NewMongoRideStore creates a store on the given collection
func NewMongoRideStore(coll *mongo.Collection) *MongoRideStore {
	return &MongoRideStore{coll: coll}
}

type reservationDocument struct {
	ID          string    `bson:"_id"`
	RiderID     string    `bson:"rider_id"`
	RiderName   string    `bson:"rider_name"`
	SeatsBooked int       `bson:"seats_booked"`
	BookedAt    time.Time `bson:"booked_at"`
}

type rideDocument struct {
	ID             string                `bson:"_id"`
	Origin         string                `bson:"origin"`
	Destination    string                `bson:"destination"`
	DriverID       string                `bson:"driver_id"`
	DriverName     string                `bson:"driver_name"`
	DepartureTime  time.Time             `bson:"departure_time"`
	AvailableSeats int                   `bson:"available_seats"`
	ReservedSeats  int                   `bson:"reserved_seats"`
	Price          float64               `bson:"price"`
	Description    string                `bson:"description"`
	CreatedAt      time.Time             `bson:"created_at"`
	Reservations   []reservationDocument `bson:"reservations"`
	Version        int64                 `bson:"version"`
}

func toDocument(r *domain.Ride, version int64) rideDocument {
	res := r.Reservations()
	docs := make([]reservationDocument, len(res))
	for i, x := range res {
		docs[i] = reservationDocument{
			ID:          x.ID,
			RiderID:     x.RiderID,
			RiderName:   x.RiderName,
			SeatsBooked: x.SeatsBooked,
			BookedAt:    x.BookedAt,
		}
	}
	return rideDocument{
		ID:             r.ID(),
		Origin:         r.Origin(),
		Destination:    r.Destination(),
		DriverID:       r.DriverID(),
		DriverName:     r.DriverName(),
		DepartureTime:  r.DepartureTime(),
		AvailableSeats: r.AvailableSeats(),
		ReservedSeats:  r.ReservedSeats(),
		Price:          r.Price(),
		Description:    r.Description(),
		CreatedAt:      r.CreatedAt(),
		Reservations:   docs,
		Version:        version,
	}
}

func (d rideDocument) toDomain() *domain.Ride {
	res := make([]domain.Reservation, len(d.Reservations))
	for i, x := range d.Reservations {
		res[i] = domain.Reservation{
			ID:          x.ID,
			RiderID:     x.RiderID,
			RiderName:   x.RiderName,
			SeatsBooked: x.SeatsBooked,
			BookedAt:    x.BookedAt,
		}
	}
	return domain.ReconstructRide(
		d.ID, d.Origin, d.Destination, d.DriverID, d.DriverName,
		d.DepartureTime, d.AvailableSeats, d.ReservedSeats, d.Price,
		d.Description, d.CreatedAt, res, d.Version,
	)
}

// EnsureIndexes creates the indexes List relies on.
func (s *MongoRideStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "departure_time", Value: 1}}},
		{Keys: bson.D{{Key: "driver_id", Value: 1}}},
		{Keys: bson.D{{Key: "reservations.rider_id", Value: 1}}},
	})
	if err != nil {
		return domain.Unavailable("create indexes", err)
	}
	return nil
}

func (s *MongoRideStore) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, nil)
}

func (s *MongoRideStore) Get(ctx context.Context, id string) (*domain.Ride, error) {
	var doc rideDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFoundf("ride %s not found", id)
	}
	if err != nil {
		return nil, domain.Unavailable("find ride", err)
	}
	return doc.toDomain(), nil
}

func (s *MongoRideStore) List(ctx context.Context, filter domain.Filter) ([]*domain.Ride, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "departure_time", Value: 1},
		{Key: "_id", Value: 1},
	})
	cursor, err := s.coll.Find(ctx, buildMongoFilter(filter), opts)
	if err != nil {
		return nil, domain.Unavailable("find rides", err)
	}

	var docs []rideDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, domain.Unavailable("decode rides", err)
	}

	out := make([]*domain.Ride, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *MongoRideStore) Save(ctx context.Context, ride *domain.Ride) (*domain.Ride, error) {
	next := ride.Version() + 1
	doc := toDocument(ride, next)

	if ride.Version() == 0 {
		if _, err := s.coll.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, domain.Conflictf("ride %s already exists", ride.ID())
			}
			return nil, domain.Unavailable("insert ride", err)
		}
		return ride.WithVersion(next), nil
	}

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": ride.ID(), "version": ride.Version()}, doc)
	if err != nil {
		return nil, domain.Unavailable("replace ride", err)
	}
	if res.MatchedCount == 0 {
		return nil, s.missOrStale(ctx, ride.ID())
	}
	return ride.WithVersion(next), nil
}

func (s *MongoRideStore) Delete(ctx context.Context, id string, version int64) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id, "version": version})
	if err != nil {
		return domain.Unavailable("delete ride", err)
	}
	if res.DeletedCount == 0 {
		return s.missOrStale(ctx, id)
	}
	return nil
}

func (s *MongoRideStore) missOrStale(ctx context.Context, id string) error {
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return domain.Unavailable("count rides", err)
	}
	if n == 0 {
		return domain.NotFoundf("ride %s not found", id)
	}
	return domain.ErrVersionConflict
}

// buildMongoFilter renders filter as a query document. User text is quoted
// so it is matched literally.
func buildMongoFilter(f domain.Filter) bson.M {
	q := bson.M{}
	if f.Origin != "" {
		q["origin"] = bson.M{"$regex": regexp.QuoteMeta(f.Origin), "$options": "i"}
	}
	if f.Destination != "" {
		q["destination"] = bson.M{"$regex": regexp.QuoteMeta(f.Destination), "$options": "i"}
	}

	departure := bson.M{}
	if start, end, ok := f.DayBounds(); ok {
		departure["$gte"] = start
		departure["$lt"] = end
	}
	if f.DepartingAfter != nil {
		departure["$gt"] = *f.DepartingAfter
	}
	if len(departure) > 0 {
		q["departure_time"] = departure
	}

	if f.MinSeats != nil {
		q["available_seats"] = bson.M{"$gte": *f.MinSeats}
	}
	if f.MaxPrice != nil {
		q["price"] = bson.M{"$lte": *f.MaxPrice}
	}
	if f.DriverID != "" {
		q["driver_id"] = f.DriverID
	}
	if f.RiderID != "" {
		q["reservations.rider_id"] = f.RiderID
	}
	return q
}
