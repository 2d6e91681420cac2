package dbclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"bankcap/internal/etl"
	"bankcap/internal/logger"
)

// MongoMirror implements etl.Destination for a MongoDB collection.
// Each Write connects, replaces the collection contents and disconnects.
type MongoMirror struct {
	URI        string
	Database   string
	Collection string
}

func (m *MongoMirror) Name() string {
	return "mongo:" + m.Database + "." + m.Collection
}

func (m *MongoMirror) Write(ctx context.Context, schema *etl.Schema, records []etl.EnrichedRecord) (int, error) {
	log := logger.GetLogger().WithComponent("mongo").WithFields(logger.Fields{
		"uri":        maskURI(m.URI),
		"database":   m.Database,
		"collection": m.Collection,
	})

	client, err := mongo.Connect(options.Client().ApplyURI(m.URI))
	if err != nil {
		return 0, fmt.Errorf("connect mongo: %w", err)
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(dctx); err != nil {
			log.WithError(err).Warn("disconnect failed")
		}
	}()

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pctx, nil); err != nil {
		return 0, fmt.Errorf("ping mongo: %w", err)
	}

	coll := client.Database(m.Database).Collection(m.Collection)
	deleted, err := coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("clear collection: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	docs := make([]any, len(records))
	for i, rec := range records {
		docs[i] = recordDocument(schema, i, rec)
	}
	res, err := coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err != nil {
		return 0, fmt.Errorf("insert documents: %w", err)
	}

	log.WithFields(logger.Fields{
		"deleted":  deleted.DeletedCount,
		"inserted": len(res.InsertedIDs),
	}).Info("collection replaced")
	return len(res.InsertedIDs), nil
}

// recordDocument builds an ordered document with the schema's field
// names plus a rank carrying the source order.
func recordDocument(schema *etl.Schema, index int, rec etl.EnrichedRecord) bson.D {
	doc := make(bson.D, 0, len(schema.Columns)+1)
	doc = append(doc, bson.E{Key: "rank", Value: index + 1})
	for i, v := range rec.Values() {
		doc = append(doc, bson.E{Key: schema.Columns[i].Name, Value: v})
	}
	return doc
}

// maskURI hides the password part of a connection string for logging.
func maskURI(uri string) string {
	scheme := strings.Index(uri, "://")
	at := strings.LastIndex(uri, "@")
	if scheme < 0 || at < scheme {
		return uri
	}
	creds := uri[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		return uri[:scheme+3] + creds[:colon] + ":***" + uri[at:]
	}
	return uri
}
