package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

// MongoStore keeps each entity type in its own MongoDB collection
type MongoStore struct {
	client      *mongo.Client
	interviews  *mongoCollection[types.Interview, *types.Interview]
	transcripts *mongoCollection[types.Transcript, *types.Transcript]
	profiles    *mongoCollection[types.Profile, *types.Profile]
	contents    *mongoCollection[types.Content, *types.Content]
	projects    *mongoProjects
}

// NewMongoStore connects to uri and prepares the collections and indexes
func NewMongoStore(ctx context.Context, uri, databaseName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(databaseName)
	s := &MongoStore{
		client:      client,
		interviews:  &mongoCollection[types.Interview, *types.Interview]{coll: db.Collection("interviews"), refField: "callId"},
		transcripts: &mongoCollection[types.Transcript, *types.Transcript]{coll: db.Collection("transcripts"), refField: "interviewId"},
		profiles:    &mongoCollection[types.Profile, *types.Profile]{coll: db.Collection("profiles"), refField: "transcriptId", uniqueRef: true},
		contents:    &mongoCollection[types.Content, *types.Content]{coll: db.Collection("contents"), refField: "profileId", uniqueRef: true},
		projects:    &mongoProjects{coll: db.Collection("projects")},
	}

	for _, ensure := range []func(context.Context) error{
		s.interviews.ensureIndexes,
		s.transcripts.ensureIndexes,
		s.profiles.ensureIndexes,
		s.contents.ensureIndexes,
		s.projects.ensureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			client.Disconnect(context.Background())
			return nil, err
		}
	}

	return s, nil
}

func (s *MongoStore) Interviews() Collection[types.Interview]   { return s.interviews }
func (s *MongoStore) Transcripts() Collection[types.Transcript] { return s.transcripts }
func (s *MongoStore) Profiles() Collection[types.Profile]       { return s.profiles }
func (s *MongoStore) Contents() Collection[types.Content]       { return s.contents }
func (s *MongoStore) Projects() ProjectStore                    { return s.projects }

// Close closes the MongoDB connection
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type mongoCollection[T any, PT docPtr[T]] struct {
	coll      *mongo.Collection
	refField  string
	uniqueRef bool
}

func (c *mongoCollection[T, PT]) ensureIndexes(ctx context.Context) error {
	refIndex := options.Index()
	if c.uniqueRef {
		refIndex.SetUnique(true).SetPartialFilterExpression(bson.M{c.refField: bson.M{"$gt": ""}})
	}
	_, err := c.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: c.refField, Value: 1}}, Options: refIndex},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes on %s: %w", c.coll.Name(), err)
	}
	return nil
}

func (c *mongoCollection[T, PT]) Insert(ctx context.Context, doc *T) error {
	d := PT(doc)
	if d.GetID() == "" {
		d.SetID(uuid.New().String())
	}
	d.Stamp(time.Now().UTC())

	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s ref %q: %w", c.coll.Name(), d.RefID(), ErrDuplicate)
		}
		return fmt.Errorf("failed to insert into %s: %w", c.coll.Name(), err)
	}
	return nil
}

func (c *mongoCollection[T, PT]) Get(ctx context.Context, id string) (*T, error) {
	return c.findOne(ctx, bson.M{"_id": id})
}

func (c *mongoCollection[T, PT]) List(ctx context.Context) ([]*T, error) {
	return c.find(ctx, bson.M{})
}

func (c *mongoCollection[T, PT]) Update(ctx context.Context, doc *T) error {
	d := PT(doc)
	d.Stamp(time.Now().UTC())

	res, err := c.coll.ReplaceOne(ctx, bson.M{"_id": d.GetID()}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s ref %q: %w", c.coll.Name(), d.RefID(), ErrDuplicate)
		}
		return fmt.Errorf("failed to update %s: %w", c.coll.Name(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection[T, PT]) Delete(ctx context.Context, id string) error {
	res, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", c.coll.Name(), err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection[T, PT]) FindByRef(ctx context.Context, ref string) (*T, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return c.findOne(ctx, bson.M{c.refField: ref}, opts)
}

func (c *mongoCollection[T, PT]) ListByStatus(ctx context.Context, status types.Status) ([]*T, error) {
	return c.find(ctx, bson.M{"status": status})
}

func (c *mongoCollection[T, PT]) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*T, error) {
	var doc T
	if err := c.coll.FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", c.coll.Name(), err)
	}
	return &doc, nil
}

func (c *mongoCollection[T, PT]) find(ctx context.Context, filter bson.M) ([]*T, error) {
	cursor, err := c.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.coll.Name(), err)
	}
	defer cursor.Close(ctx)

	docs := []*T{}
	for cursor.Next(ctx) {
		var doc T
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s document: %w", c.coll.Name(), err)
		}
		docs = append(docs, &doc)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return docs, nil
}

type mongoProjects struct {
	coll *mongo.Collection
}

func (p *mongoProjects) ensureIndexes(ctx context.Context) error {
	_, err := p.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "projectId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes on projects: %w", err)
	}
	return nil
}

// Upsert uses projectId as the unique key
func (p *mongoProjects) Upsert(ctx context.Context, project *types.Project) error {
	now := time.Now().UTC()
	filter := bson.M{"projectId": project.ProjectID}
	update := bson.M{
		"$set": bson.M{
			"content":   project.Content,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{
			"name":      project.Name,
			"createdAt": now,
		},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := p.coll.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	project.UpdatedAt = now
	return nil
}

func (p *mongoProjects) Get(ctx context.Context, projectID string) (*types.Project, error) {
	var project types.Project
	err := p.coll.FindOne(ctx, bson.M{"projectId": projectID}).Decode(&project)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}
