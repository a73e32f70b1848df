package match

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"AmoraGateway/tools/errs"
)

const matchesCollection = "matches"

// matchDoc mirrors the application's match documents. user_a/user_b are
// external IDs; status becomes "matched" once both sides liked.
type matchDoc struct {
	UserA  string `bson:"user_a"`
	UserB  string `bson:"user_b"`
	Status string `bson:"status"`
}

// MongoStore reads the match graph from the application's document
// database. The gateway treats it as strictly read-only.
type MongoStore struct {
	client *mongo.Client
	col    *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errs.WrapMsg(err, "match: mongo connect")
	}
	if err := client.Ping(cctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errs.WrapMsg(err, "match: mongo ping")
	}
	return &MongoStore{
		client: client,
		col:    client.Database(database).Collection(matchesCollection),
	}, nil
}

func (s *MongoStore) Matches(ctx context.Context, externalID string) ([]string, error) {
	filter := bson.M{
		"status": "matched",
		"$or": bson.A{
			bson.M{"user_a": externalID},
			bson.M{"user_b": externalID},
		},
	}
	cur, err := s.col.Find(ctx, filter)
	if err != nil {
		return nil, errs.WrapMsg(err, "match: find")
	}
	defer cur.Close(ctx)

	seen := make(map[string]struct{})
	var out []string
	for cur.Next(ctx) {
		var doc matchDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, errs.WrapMsg(err, "match: decode")
		}
		other := doc.UserB
		if other == externalID {
			other = doc.UserA
		}
		if other == "" || other == externalID {
			continue
		}
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		out = append(out, other)
	}
	if err := cur.Err(); err != nil {
		return nil, errs.WrapMsg(err, "match: cursor")
	}
	// Unknown users simply have no documents; an empty set is the
	// correct answer, not an error.
	return out, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
