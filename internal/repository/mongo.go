package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sharifulalam-dev/todoserver/internal/model"
)

const tasksCollection = "tasks"

type taskDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	OwnerID     string             `bson:"userId"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	Category    string             `bson:"category"`
	Order       int                `bson:"order"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   *time.Time         `bson:"updatedAt,omitempty"`
}

func (d *taskDocument) toModel() *model.Task {
	return &model.Task{
		ID:          d.ID.Hex(),
		OwnerID:     d.OwnerID,
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		Order:       d.Order,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// MongoStore keeps tasks in a MongoDB collection. Ties in order are broken
// by _id, which grows with insertion time.
type MongoStore struct {
	client *mongo.Client
	tasks  *mongo.Collection
}

var _ TaskStore = (*MongoStore)(nil)

// NewMongoStore connects to uri, verifies the connection and ensures the
// indexes the board queries rely on.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := &MongoStore{
		client: client,
		tasks:  client.Database(database).Collection(tasksCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.tasks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "category", Value: 1}, {Key: "order", Value: 1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create task indexes: %w", err)
	}
	return nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Insert(ctx context.Context, task *model.Task) error {
	ctx, span := tracer.Start(ctx, "MongoStore.Insert",
		trace.WithAttributes(attribute.String("task.category", task.Category)),
	)
	defer span.End()

	doc := taskDocument{
		OwnerID:     task.OwnerID,
		Title:       task.Title,
		Description: task.Description,
		Category:    task.Category,
		Order:       task.Order,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
	res, err := s.tasks.InsertOne(ctx, doc)
	if err != nil {
		return spanError(span, fmt.Errorf("insert task: %w", err))
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return spanError(span, fmt.Errorf("insert task: unexpected id type %T", res.InsertedID))
	}
	task.ID = id.Hex()

	span.SetAttributes(attribute.String("task.id", task.ID))
	return nil
}

func (s *MongoStore) FindOwned(ctx context.Context, ownerID, id string) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "MongoStore.FindOwned",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	filter, ok := ownedFilter(ownerID, id)
	if !ok {
		return nil, model.ErrTaskNotFound
	}

	var doc taskDocument
	if err := s.tasks.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			span.SetAttributes(attribute.Bool("task.found", false))
			return nil, model.ErrTaskNotFound
		}
		return nil, spanError(span, fmt.Errorf("find task: %w", err))
	}

	span.SetAttributes(attribute.Bool("task.found", true))
	return doc.toModel(), nil
}

func (s *MongoStore) ListByOwner(ctx context.Context, ownerID string) ([]*model.Task, error) {
	ctx, span := tracer.Start(ctx, "MongoStore.ListByOwner")
	defer span.End()

	opts := options.Find().SetSort(bson.D{
		{Key: "category", Value: 1},
		{Key: "order", Value: 1},
		{Key: "_id", Value: 1},
	})
	cur, err := s.tasks.Find(ctx, bson.D{{Key: "userId", Value: ownerID}}, opts)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("list tasks: %w", err))
	}
	defer cur.Close(ctx)

	var docs []taskDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, spanError(span, fmt.Errorf("decode tasks: %w", err))
	}

	tasks := make([]*model.Task, len(docs))
	for i := range docs {
		tasks[i] = docs[i].toModel()
	}

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

func (s *MongoStore) MaxOrder(ctx context.Context, ownerID, category string) (int, bool, error) {
	ctx, span := tracer.Start(ctx, "MongoStore.MaxOrder",
		trace.WithAttributes(attribute.String("task.category", category)),
	)
	defer span.End()

	opts := options.FindOne().
		SetSort(bson.D{{Key: "order", Value: -1}}).
		SetProjection(bson.D{{Key: "order", Value: 1}})
	filter := bson.D{{Key: "userId", Value: ownerID}, {Key: "category", Value: category}}

	var doc struct {
		Order int `bson:"order"`
	}
	if err := s.tasks.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, false, nil
		}
		return 0, false, spanError(span, fmt.Errorf("max order: %w", err))
	}
	return doc.Order, true, nil
}

func (s *MongoStore) Update(ctx context.Context, ownerID, id string, patch model.TaskPatch, updatedAt time.Time) (bool, error) {
	ctx, span := tracer.Start(ctx, "MongoStore.Update",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	filter, ok := ownedFilter(ownerID, id)
	if !ok {
		return false, model.ErrTaskNotFound
	}
	if patch.IsEmpty() {
		return false, nil
	}

	set, differs := patchDocuments(patch)
	set = append(set, bson.E{Key: "updatedAt", Value: updatedAt})

	// Only match when some field differs, so an unchanged document is left
	// untouched including its updatedAt.
	changedFilter := append(bson.D{}, filter...)
	changedFilter = append(changedFilter, bson.E{Key: "$or", Value: differs})

	res, err := s.tasks.UpdateOne(ctx, changedFilter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return false, spanError(span, fmt.Errorf("update task: %w", err))
	}
	if res.MatchedCount > 0 {
		return res.ModifiedCount > 0, nil
	}

	n, err := s.tasks.CountDocuments(ctx, filter)
	if err != nil {
		return false, spanError(span, fmt.Errorf("update task: %w", err))
	}
	if n == 0 {
		span.SetAttributes(attribute.Bool("task.found", false))
		return false, model.ErrTaskNotFound
	}
	return false, nil
}

func (s *MongoStore) DeleteOwned(ctx context.Context, ownerID, id string) error {
	ctx, span := tracer.Start(ctx, "MongoStore.DeleteOwned",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	filter, ok := ownedFilter(ownerID, id)
	if !ok {
		return model.ErrTaskNotFound
	}
	res, err := s.tasks.DeleteOne(ctx, filter)
	if err != nil {
		return spanError(span, fmt.Errorf("delete task: %w", err))
	}
	if res.DeletedCount == 0 {
		span.SetAttributes(attribute.Bool("task.found", false))
		return model.ErrTaskNotFound
	}
	span.SetAttributes(attribute.Bool("task.found", true))
	return nil
}

func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	return s.tasks.EstimatedDocumentCount(ctx)
}

// ownedFilter returns false for ids that can never match a document.
func ownedFilter(ownerID, id string) (bson.D, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	return bson.D{{Key: "_id", Value: oid}, {Key: "userId", Value: ownerID}}, true
}

// patchDocuments returns the $set fields of the patch and one $ne clause per
// field for the change filter.
func patchDocuments(p model.TaskPatch) (bson.D, bson.A) {
	var set bson.D
	var differs bson.A
	add := func(key string, value any) {
		set = append(set, bson.E{Key: key, Value: value})
		differs = append(differs, bson.D{{Key: key, Value: bson.D{{Key: "$ne", Value: value}}}})
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.Category != nil {
		add("category", *p.Category)
	}
	if p.Order != nil {
		add("order", *p.Order)
	}
	return set, differs
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
