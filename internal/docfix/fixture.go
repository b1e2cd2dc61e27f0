// Package docfix loads document fixtures into MongoDB for tests.
//
// Fixtures are strict-YAML files mapping collections to documents. Each
// fixture instance targets its own uniquely named database (qakit_<uuid>),
// so parallel test runs against a shared MongoDB server never collide, and
// Drop removes everything the fixture created.
//
// Tests needing a live server gate on the QAKIT_MONGO_URI environment
// variable and skip when it is unset.
package docfix

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"gopkg.in/yaml.v3"
)

// EnvMongoURI names the environment variable that gates live-server tests.
const EnvMongoURI = "QAKIT_MONGO_URI"

const connectTimeout = 5 * time.Second

// FixtureFile is the on-disk fixture format:
//
//	collections:
//	  - collection: users
//	    documents:
//	      - {_id: 1, name: alice}
//	      - {_id: 2, name: bob}
type FixtureFile struct {
	Collections []CollectionFixture `yaml:"collections"`
}

// CollectionFixture seeds one collection.
type CollectionFixture struct {
	Collection string           `yaml:"collection"`
	Documents  []map[string]any `yaml:"documents"`
}

// Fixture is a connected fixture bound to a unique database.
type Fixture struct {
	client *mongo.Client
	dbName string
}

// Connect dials MongoDB and binds the fixture to a fresh database name.
func Connect(ctx context.Context, uri string) (*Fixture, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	dbName := "qakit_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return &Fixture{client: client, dbName: dbName}, nil
}

// ForT connects a fixture scoped to the test, skipping when QAKIT_MONGO_URI
// is unset. The database is dropped and the client disconnected on cleanup.
func ForT(t *testing.T) *Fixture {
	t.Helper()

	uri := os.Getenv(EnvMongoURI)
	if uri == "" {
		t.Skipf("%s not set, skipping live MongoDB test", EnvMongoURI)
	}

	f, err := Connect(context.Background(), uri)
	if err != nil {
		t.Fatalf("docfix: connect: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		f.Drop(ctx)
		f.Close(ctx)
	})
	return f
}

// Database returns the fixture's database name.
func (f *Fixture) Database() string {
	return f.dbName
}

// Collection returns a handle on a collection in the fixture database.
func (f *Fixture) Collection(name string) *mongo.Collection {
	return f.client.Database(f.dbName).Collection(name)
}

// Load parses a fixture file and inserts all documents.
func (f *Fixture) Load(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixture file: %w", err)
	}
	fixture, err := ParseFixture(data)
	if err != nil {
		return fmt.Errorf("invalid fixture file %s: %w", path, err)
	}
	return f.Insert(ctx, fixture)
}

// ParseFixture parses fixture YAML with strict field validation.
func ParseFixture(data []byte) (*FixtureFile, error) {
	var fixture FixtureFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields (catches typos)
	if err := decoder.Decode(&fixture); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(fixture.Collections) == 0 {
		return nil, fmt.Errorf("collections list is required and must be non-empty")
	}
	for i, coll := range fixture.Collections {
		if coll.Collection == "" {
			return nil, fmt.Errorf("collections[%d]: collection name is required", i)
		}
		if len(coll.Documents) == 0 {
			return nil, fmt.Errorf("collections[%d] (%s): documents list is required and must be non-empty", i, coll.Collection)
		}
	}
	return &fixture, nil
}

// Insert writes all fixture documents into the fixture database.
func (f *Fixture) Insert(ctx context.Context, fixture *FixtureFile) error {
	for _, coll := range fixture.Collections {
		docs := make([]any, len(coll.Documents))
		for i, doc := range coll.Documents {
			docs[i] = bson.M(doc)
		}
		if _, err := f.Collection(coll.Collection).InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("insert into %s: %w", coll.Collection, err)
		}
	}
	return nil
}

// Count returns the number of documents matching filter. A nil filter
// counts the whole collection.
func (f *Fixture) Count(ctx context.Context, collection string, filter map[string]any) (int64, error) {
	if filter == nil {
		filter = map[string]any{}
	}
	n, err := f.Collection(collection).CountDocuments(ctx, bson.M(filter))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Drop removes the fixture database entirely.
func (f *Fixture) Drop(ctx context.Context) error {
	if err := f.client.Database(f.dbName).Drop(ctx); err != nil {
		return fmt.Errorf("drop %s: %w", f.dbName, err)
	}
	return nil
}

// Close disconnects the underlying client.
func (f *Fixture) Close(ctx context.Context) error {
	return f.client.Disconnect(ctx)
}
