package memory

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tripmesh-ai/tripmesh/core"
)

const (
	collMemories    = "memories"
	collMetrics     = "learning_metrics"
	collPreferences = "user_preferences"
)

// MongoStoreOptions configures a MongoStore.
type MongoStoreOptions struct {
	// URI is the MongoDB connection string. Required.
	URI string
	// Database is the database name. Required.
	Database string
	// ConnectTimeout bounds initial connection and index creation.
	// Defaults to 10s.
	ConnectTimeout time.Duration
	// Logger defaults to a no-op logger.
	Logger core.Logger
}

// MongoStore is the MongoDB-backed DocumentStore.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger core.Logger
}

var _ DocumentStore = (*MongoStore)(nil)

// NewMongoStore connects, verifies the connection, and ensures the
// indexes the query paths depend on.
func NewMongoStore(ctx context.Context, opts MongoStoreOptions) (*MongoStore, error) {
	if opts.URI == "" || opts.Database == "" {
		return nil, &core.OrchestrationError{
			Op:   "NewMongoStore",
			Kind: "memory",
			Err:  core.ErrMissingConfiguration,
		}
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = &core.NoOpLogger{}
	}

	connectCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := &MongoStore{
		client: client,
		db:     client.Database(opts.Database),
		logger: opts.Logger,
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}

	s.logger.Info("Connected to MongoDB", map[string]interface{}{
		"operation": "mongo_connect",
		"database":  opts.Database,
	})
	return s, nil
}

// memoryIndexModels lists the indexes the memory query and ranking
// paths depend on: retrieval filters on agent, type, and tags, ranking
// sorts by importance then recency, and conversation lookups walk the
// session turn chain.
func memoryIndexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "memory_type", Value: 1}}},
		{Keys: bson.D{{Key: "tags", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "importance", Value: -1}}},
		{Keys: bson.D{
			{Key: "content.session_id", Value: 1},
			{Key: "content.conversation_turn_number", Value: -1},
		}},
	}
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.db.Collection(collMemories).Indexes().CreateMany(ctx, memoryIndexModels()); err != nil {
		return err
	}

	unique := options.Index().SetUnique(true)
	metricIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "agent_id", Value: 1}, {Key: "task_type", Value: 1}},
		Options: unique,
	}
	if _, err := s.db.Collection(collMetrics).Indexes().CreateOne(ctx, metricIdx); err != nil {
		return err
	}

	prefIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "preference_type", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.db.Collection(collPreferences).Indexes().CreateOne(ctx, prefIdx); err != nil {
		return err
	}
	return nil
}

// UpsertMemory writes one record keyed by its id.
func (s *MongoStore) UpsertMemory(ctx context.Context, rec *Record) error {
	filter := bson.M{"_id": rec.ID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":       rec.ID,
			"timestamp": rec.Timestamp,
			"agent_id":  rec.AgentID,
		},
		"$set": bson.M{
			"memory_type":   rec.Type,
			"content":       rec.Content,
			"importance":    rec.Importance,
			"access_count":  rec.AccessCount,
			"last_accessed": rec.LastAccessed,
			"tags":          rec.Tags,
			"associations":  rec.Associations,
		},
	}
	_, err := s.db.Collection(collMemories).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// FindConversationTurns returns a session's turns, newest turn first.
func (s *MongoStore) FindConversationTurns(ctx context.Context, sessionID string, limit int) ([]map[string]interface{}, error) {
	filter := bson.M{
		"content.kind":       kindConversationTurn,
		"content.session_id": sessionID,
	}
	return s.findTurns(ctx, filter, limit)
}

// FindRecentConversationTurns returns a user's turns since the given
// instant, newest first.
func (s *MongoStore) FindRecentConversationTurns(ctx context.Context, userID string, since time.Time, limit int) ([]map[string]interface{}, error) {
	filter := bson.M{
		"content.kind":    kindConversationTurn,
		"content.user_id": userID,
		"timestamp":       bson.M{"$gte": since},
	}
	return s.findTurns(ctx, filter, limit)
}

func (s *MongoStore) findTurns(ctx context.Context, filter bson.M, limit int) ([]map[string]interface{}, error) {
	if limit <= 0 {
		limit = 10
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "content.conversation_turn_number", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"content": 1})

	cur, err := s.db.Collection(collMemories).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var turns []map[string]interface{}
	for cur.Next(ctx) {
		var doc struct {
			Content map[string]interface{} `bson:"content"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		turns = append(turns, doc.Content)
	}
	return turns, cur.Err()
}

// UpsertMetric writes one learning metric keyed by (agent, task type).
func (s *MongoStore) UpsertMetric(ctx context.Context, metric *LearningMetric) error {
	filter := bson.M{"agent_id": metric.AgentID, "task_type": metric.TaskType}
	update := bson.M{
		"$setOnInsert": bson.M{
			"agent_id":  metric.AgentID,
			"task_type": metric.TaskType,
		},
		"$set": bson.M{
			"success_rate":          metric.SuccessRate,
			"average_response_time": metric.AverageResponseTime,
			"error_rate":            metric.ErrorRate,
			"total_tasks":           metric.TotalTasks,
			"successful_tasks":      metric.SuccessfulTasks,
			"last_updated":          metric.LastUpdated,
		},
	}
	_, err := s.db.Collection(collMetrics).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// UpsertPreference writes one preference keyed by (user, preference type).
func (s *MongoStore) UpsertPreference(ctx context.Context, pref *UserPreference) error {
	filter := bson.M{"user_id": pref.UserID, "preference_type": pref.PreferenceType}
	update := bson.M{
		"$setOnInsert": bson.M{
			"user_id":         pref.UserID,
			"preference_type": pref.PreferenceType,
		},
		"$set": bson.M{
			"value":                 pref.Value,
			"confidence":            pref.Confidence,
			"learned_from_sessions": pref.LearnedFromSessions,
			"last_reinforced":       pref.LastReinforced,
		},
	}
	_, err := s.db.Collection(collPreferences).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// Ping verifies connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
