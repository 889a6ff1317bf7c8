package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/time/rate"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/model"
)

// Mongo stores every collection in one MongoDB database. Ids are ObjectID
// hex strings.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	log    zerolog.Logger
}

// ConnectMongo dials uri and pings it before returning.
func ConnectMongo(ctx context.Context, uri, dbName string, log zerolog.Logger) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	log.Info().Str("database", dbName).Msg("connected to mongodb")
	return &Mongo{client: client, db: client.Database(dbName), log: log}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates the login-lookup and ownership indexes. Phone is
// unique per credential collection.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	plan := map[model.Collection][]mongo.IndexModel{
		model.Admins:        {{Keys: bson.D{{Key: "subjectId", Value: 1}}, Options: unique}},
		model.Doctors:       {{Keys: bson.D{{Key: model.FieldPhone, Value: 1}}, Options: unique}, {Keys: bson.D{{Key: model.FieldHospitalID, Value: 1}}}},
		model.Patients:      {{Keys: bson.D{{Key: model.FieldPhone, Value: 1}}, Options: unique}, {Keys: bson.D{{Key: model.FieldDoctorID, Value: 1}}}},
		model.Reports:       {{Keys: bson.D{{Key: model.FieldPatientID, Value: 1}, {Key: model.FieldCreatedAt, Value: -1}}}},
		model.Reminders:     {{Keys: bson.D{{Key: model.FieldPatientID, Value: 1}, {Key: model.FieldCreatedAt, Value: -1}}}},
		model.Prescriptions: {{Keys: bson.D{{Key: model.FieldPatientID, Value: 1}, {Key: model.FieldCreatedAt, Value: -1}}}},
	}
	for c, idx := range plan {
		if _, err := m.db.Collection(string(c)).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("indexes on %s: %w", c, err)
		}
		m.log.Info().Str("collection", string(c)).Int("indexes", len(idx)).Msg("indexes ensured")
	}
	return nil
}

func (m *Mongo) Insert(ctx context.Context, c model.Collection, f Fields) (string, error) {
	doc := bson.M(f.clone())
	delete(doc, "_id")
	res, err := m.db.Collection(string(c)).InsertOne(ctx, doc)
	if err != nil {
		return "", mapErr(ctx, err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("insert %s: unexpected id type %T", c, res.InsertedID)
	}
	return oid.Hex(), nil
}

func (m *Mongo) Get(ctx context.Context, c model.Collection, id string) (Record, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Record{}, apperr.ErrNotFound
	}
	var doc bson.M
	if err := m.db.Collection(string(c)).FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return Record{}, mapErr(ctx, err)
	}
	return toRecord(doc), nil
}

func (m *Mongo) GetAll(ctx context.Context, c model.Collection) ([]Record, error) {
	return m.Find(ctx, c, nil)
}

func (m *Mongo) GetWhere(ctx context.Context, c model.Collection, field string, value any) ([]Record, error) {
	return m.Find(ctx, c, Predicate{{Field: field, Value: value}})
}

// Find returns matches in insertion order.
func (m *Mongo) Find(ctx context.Context, c model.Collection, p Predicate) ([]Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := m.db.Collection(string(c)).Find(ctx, filter(p), opts)
	if err != nil {
		return nil, mapErr(ctx, err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapErr(ctx, err)
	}
	out := make([]Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, toRecord(d))
	}
	return out, nil
}

func (m *Mongo) Update(ctx context.Context, c model.Collection, id string, f Fields) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperr.ErrNotFound
	}
	set := bson.M(f.clone())
	delete(set, "_id")
	res, err := m.db.Collection(string(c)).UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return mapErr(ctx, err)
	}
	if res.MatchedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (m *Mongo) Delete(ctx context.Context, c model.Collection, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperr.ErrNotFound
	}
	res, err := m.db.Collection(string(c)).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return mapErr(ctx, err)
	}
	if res.DeletedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// snapshotEvery bounds how often one subscription re-reads its snapshot.
// Events arriving in between are folded into the next read.
const snapshotEvery = 200 * time.Millisecond

// Subscribe opens a change stream on c. Delete events carry no document,
// so they always trigger a fresh snapshot. Needs a replica set.
func (m *Mongo) Subscribe(ctx context.Context, c model.Collection, p Predicate, fn Listener) (Unsubscribe, error) {
	match := bson.D{}
	for _, eq := range p {
		match = append(match, bson.E{Key: "fullDocument." + eq.Field, Value: eq.Value})
	}
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{"$or": bson.A{
		bson.M{"operationType": "delete"},
		match,
	}}}}}

	ctx, cancel := context.WithCancel(ctx)
	stream, err := m.db.Collection(string(c)).Watch(ctx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, mapErr(ctx, err)
	}

	snapshot := func() bool {
		recs, err := m.Find(ctx, c, p)
		if err != nil {
			if ctx.Err() == nil {
				fn(nil, err)
			}
			return false
		}
		fn(recs, nil)
		return true
	}

	lim := rate.NewLimiter(rate.Every(snapshotEvery), 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stream.Close(context.Background())
		if !snapshot() {
			return
		}
		for stream.Next(ctx) {
			if err := lim.Wait(ctx); err != nil {
				return
			}
			for stream.TryNext(ctx) {
			}
			if !snapshot() {
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			m.log.Warn().Err(err).Str("collection", string(c)).Msg("change stream ended")
			fn(nil, mapErr(ctx, err))
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}

func filter(p Predicate) bson.D {
	f := bson.D{}
	for _, eq := range p {
		f = append(f, bson.E{Key: eq.Field, Value: eq.Value})
	}
	return f
}

func toRecord(doc bson.M) Record {
	var id string
	switch v := doc["_id"].(type) {
	case primitive.ObjectID:
		id = v.Hex()
	case string:
		id = v
	}
	delete(doc, "_id")
	return Record{ID: id, Fields: Fields(doc)}
}

func mapErr(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return apperr.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", apperr.ErrDuplicateAccount, err)
	case errors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err):
		return fmt.Errorf("%w: %v", apperr.ErrTimeout, err)
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %v", apperr.FromContext(ctx), err)
	default:
		return fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
	}
}
