//go:build e2e

// Package e2e contains end-to-end integration tests using real DynamoDB tables.
// Run with: go test -tags=e2e -v ./e2e/...
package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/lattice/cell"
	"github.com/jacentio/lattice/codec"
	"github.com/jacentio/lattice/lookup"
	"github.com/jacentio/lattice/store"
	"github.com/jacentio/lattice/table/dynamo"
)

// Test configuration
const (
	awsProfile = "jacent-alpha-cp"

	// Table names are prefixed with a unique id per test run to avoid conflicts
	tablePrefix = "lattice-e2e-test"
)

var (
	ddbClient *dynamodb.Client
	repo      *dynamo.Repository
	testStore *store.Store
	studios   *store.Table[Studio]
	tables    []string
)

// --- Test Records ---

// Studio belongs to an organization and is indexed by name and owner.
type Studio struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	Tags           []string
}

var studioCodec = codec.Record(
	codec.Prop("ID", func(s *Studio) *uuid.UUID { return &s.ID }, codec.GUID()),
	codec.Prop("OrganizationID", func(s *Studio) *uuid.UUID { return &s.OrganizationID }, codec.Ref()),
	codec.Prop("Name", func(s *Studio) *string { return &s.Name }, codec.String()),
	codec.Prop("Tags", func(s *Studio) *[]string { return &s.Tags }, codec.Array(codec.String())),
)

func studioKey(s *Studio) cell.Key {
	return cell.Key{PartitionKey: lookup.IDHex(s.ID)[:2], RowKey: lookup.IDHex(s.ID)}
}

func orgKey(id uuid.UUID) cell.Key {
	return cell.Key{PartitionKey: "organizations", RowKey: lookup.IDHex(id)}
}

func nameKey(name string) cell.Key {
	return cell.Key{PartitionKey: lookup.HashPrefix(2)(name), RowKey: name}
}

func defineStudios() *store.TableDef[Studio] {
	return store.DefineTable("Studio", studioCodec, studioKey).
		Index("OrganizationID", lookup.Field(func(s *Studio) uuid.UUID { return s.OrganizationID },
			lookup.Identity(lookup.Fixed("organizations")).IgnoreZero())).
		Index("Name", lookup.Field(func(s *Studio) string { return s.Name },
			lookup.Text(lookup.HashPrefix(2)).IgnoreZero())).
		Index("Tags", lookup.Field(func(s *Studio) []string { return s.Tags },
			lookup.Each[string](lookup.Text(lookup.Fixed("tags")).IgnoreZero())))
}

// --- Test Setup & Teardown ---

func TestMain(m *testing.M) {
	ctx := context.Background()
	prefix := fmt.Sprintf("%s-%s-", tablePrefix, uuid.New().String()[:8])
	fmt.Printf("Table prefix: %s\n", prefix)

	// Initialize AWS client (uses region from profile config)
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithSharedConfigProfile(awsProfile),
	)
	if err != nil {
		fmt.Printf("Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}
	ddbClient = dynamodb.NewFromConfig(awsCfg)

	cfg := dynamo.DefaultConfig()
	cfg.TablePrefix = prefix
	repo = dynamo.New(ddbClient, cfg)

	def := defineStudios()
	testStore = store.New(repo, store.NewRegistry().MustRegister(def), store.DefaultConfig())
	if studios, err = store.Open(testStore, def); err != nil {
		fmt.Printf("Failed to open table: %v\n", err)
		os.Exit(1)
	}

	tables = []string{repo.TableName(def.Name())}
	for _, field := range def.IndexFields() {
		name, err := testStore.IndexTable(def.Name(), field)
		if err != nil {
			fmt.Printf("Failed to resolve index table: %v\n", err)
			os.Exit(1)
		}
		tables = append(tables, repo.TableName(name))
	}

	if err := createTables(ctx); err != nil {
		fmt.Printf("Failed to create tables: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := deleteTables(ctx); err != nil {
		fmt.Printf("Failed to delete tables: %v\n", err)
	}

	os.Exit(code)
}

func createTables(ctx context.Context) error {
	fmt.Println("Creating test tables...")

	for _, tableName := range tables {
		_, err := ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(tableName),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(dynamo.AttrPartitionKey), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(dynamo.AttrRowKey), KeyType: types.KeyTypeRange},
			},
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(dynamo.AttrPartitionKey), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String(dynamo.AttrRowKey), AttributeType: types.ScalarAttributeTypeS},
			},
			BillingMode: types.BillingModePayPerRequest,
		})
		if err != nil {
			return fmt.Errorf("create table %s: %w", tableName, err)
		}
	}

	// Wait for all tables to be active
	for _, tableName := range tables {
		waiter := dynamodb.NewTableExistsWaiter(ddbClient)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(tableName),
		}, 2*time.Minute); err != nil {
			return fmt.Errorf("wait for table %s: %w", tableName, err)
		}
	}

	fmt.Println("All tables created and active")
	return nil
}

func deleteTables(ctx context.Context) error {
	fmt.Println("Deleting test tables...")

	for _, tableName := range tables {
		_, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
			TableName: aws.String(tableName),
		})
		if err != nil {
			fmt.Printf("Warning: failed to delete table %s: %v\n", tableName, err)
		}
	}

	fmt.Println("Tables deleted")
	return nil
}

func members(t *testing.T, field string, key cell.Key) []cell.Key {
	t.Helper()
	name, err := testStore.IndexTable("Studio", field)
	if err != nil {
		t.Fatal(err)
	}
	row, err := testStore.Indexes().Get(context.Background(), name, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		t.Fatalf("index Get failed: %v", err)
	}
	return row.Members
}

// --- CRUD Tests ---

func TestInsert_IndexesEveryField(t *testing.T) {
	ctx := context.Background()
	org := uuid.New()
	s := &Studio{ID: uuid.New(), OrganizationID: org, Name: "insert-" + org.String(), Tags: []string{"anim", "vfx"}}

	rec, err := studios.Insert(ctx, s)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if rec.ETag != 1 {
		t.Errorf("expected ETag 1, got %d", rec.ETag)
	}

	got, err := studios.Load(ctx, studioKey(s))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Name != s.Name || got.OrganizationID != org || !slices.Equal(got.Tags, s.Tags) {
		t.Errorf("expected %+v, got %+v", s, got)
	}

	if m := members(t, "OrganizationID", orgKey(org)); !slices.Equal(m, []cell.Key{rec.Key}) {
		t.Errorf("expected organization entry, got %v", m)
	}
	if m := members(t, "Name", nameKey(s.Name)); !slices.Equal(m, []cell.Key{rec.Key}) {
		t.Errorf("expected name entry, got %v", m)
	}

	if _, err := studios.Insert(ctx, s); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	if m := members(t, "Name", nameKey(s.Name)); len(m) != 1 {
		t.Errorf("expected failed insert to leave one name entry, got %v", m)
	}
}

func TestUpdate_MovesIndexEntries(t *testing.T) {
	ctx := context.Background()
	s := &Studio{ID: uuid.New(), Name: "before-" + uuid.NewString()}
	rec, err := studios.Insert(ctx, s)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	oldName := s.Name
	s.Name = "after-" + uuid.NewString()

	updated, err := studios.Update(ctx, s, rec.ETag)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.ETag != rec.ETag+1 {
		t.Errorf("expected ETag %d, got %d", rec.ETag+1, updated.ETag)
	}
	if m := members(t, "Name", nameKey(oldName)); len(m) != 0 {
		t.Errorf("expected old name entry removed, got %v", m)
	}
	if m := members(t, "Name", nameKey(s.Name)); !slices.Equal(m, []cell.Key{rec.Key}) {
		t.Errorf("expected new name entry, got %v", m)
	}

	// A stale ETag is rejected.
	if _, err := studios.Update(ctx, s, rec.ETag); !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestDelete_RemovesIndexEntries(t *testing.T) {
	ctx := context.Background()
	s := &Studio{ID: uuid.New(), Name: "delete-" + uuid.NewString(), Tags: []string{"doomed"}}
	if _, err := studios.Insert(ctx, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if _, err := studios.Delete(ctx, studioKey(s)); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := studios.Get(ctx, studioKey(s)); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if m := members(t, "Name", nameKey(s.Name)); len(m) != 0 {
		t.Errorf("expected name entry removed, got %v", m)
	}
}

// --- Concurrency Tests ---

func TestConcurrentInserts_SameIndexRow(t *testing.T) {
	ctx := context.Background()
	org := uuid.New()
	const n = 10

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := studios.Insert(ctx, &Studio{ID: uuid.New(), OrganizationID: org, Name: fmt.Sprintf("c%d-%s", i, org)})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Insert failed: %v", err)
	}

	recs, err := studios.LookupKey(ctx, "OrganizationID", orgKey(org))
	if err != nil {
		t.Fatalf("LookupKey failed: %v", err)
	}
	if len(recs) != n {
		t.Errorf("expected %d studios, got %d", n, len(recs))
	}
}

// --- Cascade & Repair Tests ---

func TestCascadeDelete_Organization(t *testing.T) {
	ctx := context.Background()
	org := uuid.New()
	var names []string
	for i := 0; i < 3; i++ {
		s := &Studio{ID: uuid.New(), OrganizationID: org, Name: fmt.Sprintf("cascade%d-%s", i, org)}
		if _, err := studios.Insert(ctx, s); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		names = append(names, s.Name)
	}

	deleted, err := studios.CascadeDelete(ctx, "OrganizationID", orgKey(org))
	if err != nil {
		t.Fatalf("CascadeDelete failed: %v", err)
	}
	if len(deleted) != 3 {
		t.Errorf("expected 3 deleted studios, got %d", len(deleted))
	}
	for _, name := range names {
		if m := members(t, "Name", nameKey(name)); len(m) != 0 {
			t.Errorf("expected name entry for %s removed, got %v", name, m)
		}
	}
	if m := members(t, "OrganizationID", orgKey(org)); m != nil {
		t.Errorf("expected organization index row deleted, got %v", m)
	}
}

func TestRepairAndReindex(t *testing.T) {
	ctx := context.Background()
	s := &Studio{ID: uuid.New(), Name: "repair-" + uuid.NewString()}
	rec, err := studios.Insert(ctx, s)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	indexTable, err := testStore.IndexTable("Studio", "Name")
	if err != nil {
		t.Fatal(err)
	}
	if err := testStore.Indexes().Purge(ctx, indexTable, []cell.Key{nameKey(s.Name)}, rec.Key); err != nil {
		t.Fatal(err)
	}

	if err := testStore.Repair(ctx, "Studio", rec.Key); err != nil {
		t.Fatalf("Repair failed: %v", err)
	}
	if m := members(t, "Name", nameKey(s.Name)); !slices.Equal(m, []cell.Key{rec.Key}) {
		t.Errorf("expected name entry repaired, got %v", m)
	}

	n, err := testStore.Reindex(ctx, "Studio")
	if err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}
	if n == 0 {
		t.Error("expected Reindex to scan at least one row")
	}
}
