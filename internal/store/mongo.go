// internal/store/mongo.go
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"trip-report-bot/internal/common/config"
	stderrors "trip-report-bot/internal/common/errors"
	"trip-report-bot/internal/common/logger"
)

// completedStatus is the only trip status that appears in reports.
const completedStatus = "COMPLETED"

// mongoConn adapts a Mongo client to the pool's Conn interface.
type mongoConn struct {
	client *mongo.Client
}

func (c *mongoConn) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

func (c *mongoConn) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// NewMongoDialer returns a pool dialer that opens and verifies a Mongo
// connection.
func NewMongoDialer(cfg config.MongoConfig) Dialer {
	return func(ctx context.Context) (Conn, error) {
		opts := options.Client().
			ApplyURI(cfg.URI).
			SetServerSelectionTimeout(config.GetDuration(cfg.SelectTimeout))

		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		conn := &mongoConn{client: client}
		if err := conn.Ping(ctx); err != nil {
			_ = conn.Close(ctx)
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		return conn, nil
	}
}

// TripStore runs trip sub-queries against Mongo through the pool.
type TripStore struct {
	pool   *Pool
	cfg    config.MongoConfig
	logger logger.Logger
}

func NewTripStore(pool *Pool, cfg config.MongoConfig, log logger.Logger) *TripStore {
	return &TripStore{
		pool:   pool,
		cfg:    cfg,
		logger: log.With(map[string]interface{}{"component": "tripstore"}),
	}
}

// FetchTrips returns the completed trips matching one sub-query. Errors
// come back classified: timeouts and network failures are transient and
// the retry policy will try again, anything else is fatal.
func (s *TripStore) FetchTrips(ctx context.Context, q SubQuery) ([]TripRecord, error) {
	lease, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(lease)

	mc, ok := lease.Conn.(*mongoConn)
	if !ok {
		return nil, stderrors.NewFatalStoreError(fmt.Errorf("unexpected connection type %T", lease.Conn))
	}

	qctx, cancel := context.WithTimeout(ctx, config.GetDuration(s.cfg.QueryTimeout))
	defer cancel()

	coll := mc.client.Database(s.cfg.Database).Collection(s.cfg.TripCollection)
	cursor, err := coll.Aggregate(qctx, s.pipeline(q))
	if err != nil {
		return nil, classify(err)
	}
	defer cursor.Close(qctx)

	var records []TripRecord
	if err := cursor.All(qctx, &records); err != nil {
		return nil, classify(err)
	}

	// Stamp the area: trip documents only reference a station.
	for i := range records {
		records[i].Area = q.Area.Name
	}
	return records, nil
}

func (s *TripStore) pipeline(q SubQuery) mongo.Pipeline {
	match := bson.D{
		{Key: "createdAt", Value: bson.D{
			{Key: "$gte", Value: q.Period.Start},
			{Key: "$lte", Value: q.Period.End},
		}},
		{Key: "tripCategory", Value: string(q.Category)},
		{Key: "tripStatus", Value: completedStatus},
		{Key: "fillingStationId", Value: bson.D{{Key: "$in", Value: q.StationIDs}}},
	}
	project := bson.D{
		{Key: "_id", Value: 0},
		{Key: "tripId", Value: 1},
		{Key: "vehicleNumber", Value: 1},
		{Key: "tripCategory", Value: 1},
		{Key: "tripStatus", Value: 1},
		{Key: "tripStartTime", Value: 1},
		{Key: "tripEndTime", Value: 1},
		{Key: "fillingStationId", Value: 1},
		{Key: "fillingStationName", Value: 1},
		{Key: "dispensedQuantity", Value: 1},
		{Key: "fillingQuantity", Value: 1},
		{Key: "cardQuantity", Value: 1},
		{Key: "cmcNumber", Value: 1},
		{Key: "customerName", Value: 1},
		{Key: "customerAddress", Value: 1},
		{Key: "createdAt", Value: 1},
	}
	return mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$project", Value: project}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}}}},
	}
}

// classify splits store failures into transient and fatal. Timeouts and
// broken connections clear up on retry; bad credentials or a malformed
// command never do.
func classify(err error) error {
	switch {
	case mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return stderrors.NewTransientStoreError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return stderrors.NewTransientStoreError(err)
	default:
		return stderrors.NewFatalStoreError(err)
	}
}
