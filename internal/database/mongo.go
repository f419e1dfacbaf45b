package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"momento/entity"
	"momento/internal/config"
)

const (
	collectionUsers      = "users"
	collectionBetaCodes  = "beta_codes"
	collectionEventCodes = "event_codes"
	collectionBetaUsage  = "beta_usage"
	collectionEventUsage = "event_usage"
)

type MongoDB struct {
	client   *mongo.Client
	database string
}

func NewMongoClient(ctx context.Context, conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}
	m := &MongoDB{
		client:   client,
		database: conf.Mongo.Database,
	}
	if err = m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoDB) collection(name string) *mongo.Collection {
	return m.client.Database(m.database).Collection(name)
}

func codesCollection(kind entity.Kind) string {
	if kind == entity.KindEvent {
		return collectionEventCodes
	}
	return collectionBetaCodes
}

func usageCollection(kind entity.Kind) string {
	if kind == entity.KindEvent {
		return collectionEventUsage
	}
	return collectionBetaUsage
}

func (m *MongoDB) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	for _, name := range []string{collectionBetaCodes, collectionEventCodes} {
		_, err := m.collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{"code", 1}},
			Options: unique,
		})
		if err != nil {
			return fmt.Errorf("mongodb index %s: %w", name, err)
		}
	}
	for _, name := range []string{collectionBetaUsage, collectionEventUsage} {
		_, err := m.collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{"code", 1}, {"used_at", -1}},
		})
		if err != nil {
			return fmt.Errorf("mongodb index %s: %w", name, err)
		}
	}
	_, err := m.collection(collectionUsers).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{"token", 1}},
		Options: unique,
	})
	if err != nil {
		return fmt.Errorf("mongodb index %s: %w", collectionUsers, err)
	}
	return nil
}

func (m *MongoDB) findError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return fmt.Errorf("mongodb find: %w", err)
}

func (m *MongoDB) GetUser(ctx context.Context, token string) (*entity.User, error) {
	filter := bson.D{{"token", token}}
	var user entity.User
	err := m.collection(collectionUsers).FindOne(ctx, filter).Decode(&user)
	if err != nil {
		return nil, m.findError(err)
	}
	return &user, nil
}

// SaveUser upserts an admin user by token.
func (m *MongoDB) SaveUser(ctx context.Context, user *entity.User) error {
	filter := bson.D{{"token", user.Token}}
	update := bson.D{{"$set", user}}
	opts := options.Update().SetUpsert(true)
	_, err := m.collection(collectionUsers).UpdateOne(ctx, filter, update, opts)
	return err
}

func (m *MongoDB) GetCode(ctx context.Context, kind entity.Kind, code string) (*entity.AccessCode, error) {
	filter := bson.D{{"code", code}}
	var record entity.AccessCode
	err := m.collection(codesCollection(kind)).FindOne(ctx, filter).Decode(&record)
	if err != nil {
		return nil, m.findError(err)
	}
	return &record, nil
}

func (m *MongoDB) ListCodes(ctx context.Context, kind entity.Kind) ([]*entity.AccessCode, error) {
	opts := options.Find().SetSort(bson.D{{"created_at", -1}})
	cursor, err := m.collection(codesCollection(kind)).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := make([]*entity.AccessCode, 0)
	if err = cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (m *MongoDB) CreateCode(ctx context.Context, record *entity.AccessCode) error {
	_, err := m.collection(codesCollection(record.Kind)).InsertOne(ctx, record)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (m *MongoDB) DeleteCode(ctx context.Context, kind entity.Kind, code string) error {
	res, err := m.collection(codesCollection(kind)).DeleteOne(ctx, bson.D{{"code", code}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoDB) SetCodeActive(ctx context.Context, kind entity.Kind, code string, active bool) (*entity.AccessCode, error) {
	update := bson.D{{"$set", bson.D{{"is_active", active}}}}
	return m.updateCode(ctx, kind, bson.D{{"code", code}}, update)
}

func (m *MongoDB) ResetUsage(ctx context.Context, kind entity.Kind, code string) (*entity.AccessCode, error) {
	update := bson.D{{"$set", bson.D{
		{"current_uses", 0},
		{"current_files", 0},
	}}}
	return m.updateCode(ctx, kind, bson.D{{"code", code}}, update)
}

// IncrementUsage bumps the counters in a single $inc, returning the document
// as it is after the update.
func (m *MongoDB) IncrementUsage(ctx context.Context, kind entity.Kind, code string, uses, files int, at time.Time) (*entity.AccessCode, error) {
	update := bson.D{
		{"$inc", bson.D{
			{"current_uses", uses},
			{"current_files", files},
		}},
		{"$set", bson.D{{"last_used_at", at}}},
	}
	return m.updateCode(ctx, kind, bson.D{{"code", code}}, update)
}

// IncrementUsageBelow adds one use only while the code is active and below
// max_uses; the bound is evaluated by the server as part of the update.
func (m *MongoDB) IncrementUsageBelow(ctx context.Context, kind entity.Kind, code string, at time.Time) (*entity.AccessCode, error) {
	filter := bson.D{
		{"code", code},
		{"is_active", true},
		{"$or", bson.A{
			bson.D{{"max_uses", nil}},
			bson.D{{"$expr", bson.D{{"$lt", bson.A{"$current_uses", "$max_uses"}}}}},
		}},
	}
	update := bson.D{
		{"$inc", bson.D{{"current_uses", 1}}},
		{"$set", bson.D{{"last_used_at", at}}},
	}
	record, err := m.updateCode(ctx, kind, filter, update)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConditionFailed
	}
	return record, err
}

func (m *MongoDB) updateCode(ctx context.Context, kind entity.Kind, filter, update bson.D) (*entity.AccessCode, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var record entity.AccessCode
	err := m.collection(codesCollection(kind)).FindOneAndUpdate(ctx, filter, update, opts).Decode(&record)
	if err != nil {
		return nil, m.findError(err)
	}
	return &record, nil
}

func (m *MongoDB) AddUsage(ctx context.Context, record *entity.UsageRecord) error {
	_, err := m.collection(usageCollection(record.Kind)).InsertOne(ctx, record)
	return err
}

// ListUsage returns usage records for a code, newest first. limit <= 0 means all.
func (m *MongoDB) ListUsage(ctx context.Context, kind entity.Kind, code string, limit int) ([]*entity.UsageRecord, error) {
	opts := options.Find().SetSort(bson.D{{"used_at", -1}, {"id", -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := m.collection(usageCollection(kind)).Find(ctx, bson.D{{"code", code}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := make([]*entity.UsageRecord, 0)
	if err = cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}
