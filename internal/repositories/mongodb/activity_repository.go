package mongodb

import (
	"context"
	"fmt"
	"time"

	"prizedraw/internal/models"
	"prizedraw/internal/repositories"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Connect opens a client and checks the connection.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client, nil
}

// ActivityRepository implements repositories.ActivityRepository with one
// document per activity, ledger embedded.
type ActivityRepository struct {
	collection *mongo.Collection
}

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(db *mongo.Database, collection string) *ActivityRepository {
	return &ActivityRepository{
		collection: db.Collection(collection),
	}
}

var _ repositories.ActivityRepository = (*ActivityRepository)(nil)

// Save upserts the activity document
func (r *ActivityRepository) Save(ctx context.Context, rec *models.ActivityRecord) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, opts); err != nil {
		return fmt.Errorf("save activity %s: %w", rec.ID, err)
	}
	return nil
}

// LoadAll returns every activity ordered by creation time
func (r *ActivityRepository) LoadAll(ctx context.Context) ([]*models.ActivityRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find activities: %w", err)
	}
	defer cursor.Close(ctx)

	var recs []*models.ActivityRecord
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}
	if recs == nil {
		recs = []*models.ActivityRecord{}
	}
	return recs, nil
}

// Delete removes the activity document
func (r *ActivityRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete activity %s: %w", id, err)
	}
	return res.DeletedCount > 0, nil
}
