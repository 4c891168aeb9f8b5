package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go-status-hub/internal/domain"
	"go-status-hub/internal/infrastructure/logger"
)

const (
	collServices  = "services"
	collIncidents = "incidents"
	collUptime    = "uptime_history"

	defaultMaxPoolSize = 100
	defaultMaxRetry    = 3
)

// MongoConfig configures the MongoDB record store.
type MongoConfig struct {
	URI         string
	Database    string
	MaxPoolSize uint64
	MaxRetry    int

	// Logger receives cleanup failures that do not fail the operation.
	Logger logger.Logger
}

// MongoStore keeps documents in MongoDB. Single-document updates are atomic
// on the server; the driver returns the pre-image and the post-image is
// derived from it with the same patch.
type MongoStore struct {
	client    *mongo.Client
	services  *mongo.Collection
	incidents *mongo.Collection
	uptime    *mongo.Collection
	log       logger.Logger
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore connects, pings, and ensures the uptime index.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if cfg.Database == "" {
		return nil, errors.New("mongo database is required")
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = defaultMaxPoolSize
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = defaultMaxRetry
	}

	opts := options.Client().ApplyURI(cfg.URI).SetMaxPoolSize(cfg.MaxPoolSize)

	var (
		cli *mongo.Client
		err error
	)
	for i := 0; i < cfg.MaxRetry; i++ {
		cli, err = connectMongo(ctx, opts)
		if err != nil && shouldRetry(ctx, err) {
			time.Sleep(time.Second / 2)
			continue
		}
		break
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	s := newMongoStore(cli.Database(cfg.Database), cfg.Logger)
	_, err = s.uptime.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "serviceId", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	if err != nil {
		_ = cli.Disconnect(ctx)
		return nil, fmt.Errorf("create uptime index: %w", err)
	}
	return s, nil
}

func newMongoStore(db *mongo.Database, log logger.Logger) *MongoStore {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &MongoStore{
		client:    db.Client(),
		services:  db.Collection(collServices),
		incidents: db.Collection(collIncidents),
		uptime:    db.Collection(collUptime),
		log:       log.WithField("component", "mongo-store"),
	}
}

func connectMongo(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return cli, nil
}

// shouldRetry reports whether a connect error is transient.
// Codes 13 and 18 are Unauthorized and AuthenticationFailed.
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code != 13 && cmdErr.Code != 18
	}
	return true
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return err
}

func (s *MongoStore) ListServices(ctx context.Context) ([]domain.Service, error) {
	cur, err := s.services.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := []domain.Service{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) GetService(ctx context.Context, id string) (domain.Service, error) {
	var svc domain.Service
	if err := s.services.FindOne(ctx, bson.M{"_id": id}).Decode(&svc); err != nil {
		return domain.Service{}, notFound("service", id, err)
	}
	return svc, nil
}

func (s *MongoStore) GetServices(ctx context.Context, ids []string) ([]domain.Service, error) {
	out := []domain.Service{}
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.services.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) CreateService(ctx context.Context, svc domain.Service) (domain.Service, error) {
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	if _, err := s.services.InsertOne(ctx, svc); err != nil {
		return domain.Service{}, err
	}
	return svc, nil
}

func (s *MongoStore) UpdateService(ctx context.Context, id string, patch domain.ServicePatch) (ServiceChange, error) {
	set := bson.M{}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if !patch.UpdatedAt.IsZero() {
		set["updatedAt"] = patch.UpdatedAt
	}

	var before domain.Service
	var err error
	if len(set) == 0 {
		err = s.services.FindOne(ctx, bson.M{"_id": id}).Decode(&before)
	} else {
		err = s.services.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.Before)).Decode(&before)
	}
	if err != nil {
		return ServiceChange{}, notFound("service", id, err)
	}
	return ServiceChange{Before: before, After: patch.Apply(before)}, nil
}

func (s *MongoStore) DeleteService(ctx context.Context, id string) (domain.Service, error) {
	var svc domain.Service
	if err := s.services.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&svc); err != nil {
		return domain.Service{}, notFound("service", id, err)
	}
	// The delete is committed; a failed purge only leaves orphaned points.
	if _, err := s.uptime.DeleteMany(ctx, bson.M{"serviceId": id}); err != nil {
		s.log.WithContext(ctx).Warnf("failed to purge uptime of service %s: %v", id, err)
	}
	return svc, nil
}

func (s *MongoStore) ListIncidents(ctx context.Context) ([]domain.Incident, error) {
	cur, err := s.incidents.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var raw []domain.Incident
	if err := cur.All(ctx, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Incident, 0, len(raw))
	for _, inc := range raw {
		out = append(out, normalizeIncident(inc))
	}
	return out, nil
}

func (s *MongoStore) GetIncident(ctx context.Context, id string) (domain.Incident, error) {
	var inc domain.Incident
	if err := s.incidents.FindOne(ctx, bson.M{"_id": id}).Decode(&inc); err != nil {
		return domain.Incident{}, notFound("incident", id, err)
	}
	return normalizeIncident(inc), nil
}

func (s *MongoStore) CreateIncident(ctx context.Context, inc domain.Incident) (domain.Incident, error) {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	inc = normalizeIncident(inc)
	if _, err := s.incidents.InsertOne(ctx, inc); err != nil {
		return domain.Incident{}, err
	}
	return inc, nil
}

func (s *MongoStore) UpdateIncident(ctx context.Context, id string, patch domain.IncidentPatch) (IncidentChange, error) {
	set := bson.M{}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.Impact != nil {
		set["impact"] = *patch.Impact
	}
	if patch.Services != nil {
		set["services"] = append([]string{}, (*patch.Services)...)
	}
	if !patch.UpdatedAt.IsZero() {
		set["updatedAt"] = patch.UpdatedAt
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if patch.Update != nil {
		update["$push"] = bson.M{"updates": *patch.Update}
	}

	var before domain.Incident
	var err error
	if len(update) == 0 {
		err = s.incidents.FindOne(ctx, bson.M{"_id": id}).Decode(&before)
	} else {
		err = s.incidents.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
			options.FindOneAndUpdate().SetReturnDocument(options.Before)).Decode(&before)
	}
	if err != nil {
		return IncidentChange{}, notFound("incident", id, err)
	}
	before = normalizeIncident(before)
	return IncidentChange{Before: before, After: patch.Apply(before)}, nil
}

func (s *MongoStore) DeleteIncident(ctx context.Context, id string) (domain.Incident, error) {
	var inc domain.Incident
	if err := s.incidents.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&inc); err != nil {
		return domain.Incident{}, notFound("incident", id, err)
	}
	return normalizeIncident(inc), nil
}

func (s *MongoStore) AppendUptime(ctx context.Context, p domain.UptimePoint) error {
	_, err := s.uptime.InsertOne(ctx, p)
	return err
}

func (s *MongoStore) ListUptime(ctx context.Context, serviceID string, since time.Time) ([]domain.UptimePoint, error) {
	filter := bson.M{"serviceId": serviceID, "timestamp": bson.M{"$gte": since}}
	cur, err := s.uptime.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []domain.UptimePoint
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
