// Package tabletest checks table.Repository implementations against the
// repository contract.
package tabletest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/lattice/cell"
	"github.com/jacentio/lattice/table"
)

// Run runs the contract tests. newRepo is called once per subtest.
func Run(t *testing.T, newRepo func(t *testing.T) table.Repository) {
	t.Run("FindMissing", func(t *testing.T) { testFindMissing(t, newRepo(t)) })
	t.Run("CreateOrGet", func(t *testing.T) { testCreateOrGet(t, newRepo(t)) })
	t.Run("CellKinds", func(t *testing.T) { testCellKinds(t, newRepo(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newRepo(t)) })
	t.Run("UpdateNoChange", func(t *testing.T) { testUpdateNoChange(t, newRepo(t)) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, newRepo(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newRepo(t)) })
	t.Run("TablesAreSeparate", func(t *testing.T) { testTablesAreSeparate(t, newRepo(t)) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, newRepo(t)) })
	t.Run("Scan", func(t *testing.T) { testScan(t, newRepo(t)) })
}

var key = cell.Key{RowKey: "r1", PartitionKey: "p1"}

func testFindMissing(t *testing.T, repo table.Repository) {
	_, err := repo.Find(context.Background(), "things", key)
	if !errors.Is(err, table.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testCreateOrGet(t *testing.T, repo table.Repository) {
	ctx := context.Background()

	created, row, err := repo.CreateOrGet(ctx, "things", key, table.Put(cell.Bag{"Name": cell.String("a")}))
	if err != nil {
		t.Fatalf("CreateOrGet failed: %v", err)
	}
	if !created {
		t.Error("expected row to be created")
	}
	if row.Key != key || row.ETag != 1 {
		t.Errorf("unexpected row %+v", row)
	}
	if row.Timestamp.IsZero() {
		t.Error("expected commit timestamp")
	}

	called := false
	created, row, err = repo.CreateOrGet(ctx, "things", key, func(*table.Row) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("CreateOrGet failed: %v", err)
	}
	if created || called {
		t.Error("expected existing row to be returned untouched")
	}
	if s, _ := row.Cells["Name"].AsString(); s != "a" {
		t.Errorf("expected existing cells, got %v", row.Cells)
	}
}

func testCellKinds(t *testing.T, repo table.Repository) {
	ctx := context.Background()
	want := cell.Bag{
		"Bin":   cell.Binary([]byte{0, 1, 2}),
		"Empty": cell.Binary([]byte{}),
		"Bool":  cell.Bool(true),
		"Time":  cell.Timestamp(mustTime(t, "2024-03-05T14:30:15.123456789Z")),
		"Dbl":   cell.Double(1.25),
		"Id":    cell.GUID(uuid.MustParse("0b4f6b8e-2a51-4f6c-8d35-1c3f1f6f2a01")),
		"I32":   cell.Int32(-7),
		"I64":   cell.Int64(1 << 40),
		"Str":   cell.String("x"),
		"Blank": cell.String(""),
	}
	if _, _, err := repo.CreateOrGet(ctx, "things", key, table.Put(want)); err != nil {
		t.Fatalf("CreateOrGet failed: %v", err)
	}
	row, err := repo.Find(ctx, "things", key)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !row.Cells.Equal(want) {
		t.Errorf("cells did not round trip:\nexpected %v\ngot      %v", want, row.Cells)
	}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func testUpdate(t *testing.T, repo table.Repository) {
	ctx := context.Background()
	if _, _, err := repo.CreateOrGet(ctx, "things", key, table.Put(cell.Bag{"N": cell.Int64(1)})); err != nil {
		t.Fatal(err)
	}

	row, err := repo.Update(ctx, "things", key, func(row *table.Row) error {
		if row.ETag != 1 {
			t.Errorf("expected mutator to see ETag 1, got %d", row.ETag)
		}
		row.Cells["N"] = cell.Int64(2)
		delete(row.Cells, "Gone")
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if row.ETag != 2 {
		t.Errorf("expected ETag 2, got %d", row.ETag)
	}
	found, err := repo.Find(ctx, "things", key)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := found.Cells["N"].AsInt64(); n != 2 || found.ETag != 2 {
		t.Errorf("expected committed update, got %+v", found)
	}
}

func testUpdateNoChange(t *testing.T, repo table.Repository) {
	ctx := context.Background()
	_, orig, err := repo.CreateOrGet(ctx, "things", key, table.Put(cell.Bag{"N": cell.Int64(1)}))
	if err != nil {
		t.Fatal(err)
	}

	row, err := repo.Update(ctx, "things", key, func(row *table.Row) error {
		row.Cells["N"] = cell.Int64(99)
		return table.ErrNoChange
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if row.ETag != orig.ETag {
		t.Errorf("expected ETag %d unchanged, got %d", orig.ETag, row.ETag)
	}
	found, _ := repo.Find(ctx, "things", key)
	if n, _ := found.Cells["N"].AsInt64(); n != 1 || found.ETag != orig.ETag {
		t.Errorf("expected row unwritten, got %+v", found)
	}
}

func testUpdateMissing(t *testing.T, repo table.Repository) {
	_, err := repo.Update(context.Background(), "things", key, func(*table.Row) error { return nil })
	if !errors.Is(err, table.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testDelete(t *testing.T, repo table.Repository) {
	ctx := context.Background()
	if _, _, err := repo.CreateOrGet(ctx, "things", key, table.Put(cell.Bag{"N": cell.Int64(1)})); err != nil {
		t.Fatal(err)
	}

	row, err := repo.Delete(ctx, "things", key)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n, _ := row.Cells["N"].AsInt64(); n != 1 {
		t.Errorf("expected deleted row cells, got %v", row.Cells)
	}
	if _, err := repo.Find(ctx, "things", key); !errors.Is(err, table.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := repo.Delete(ctx, "things", key); !errors.Is(err, table.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func testTablesAreSeparate(t *testing.T, repo table.Repository) {
	ctx := context.Background()
	if _, _, err := repo.CreateOrGet(ctx, "a", key, table.Put(cell.Bag{})); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Find(ctx, "b", key); !errors.Is(err, table.ErrNotFound) {
		t.Errorf("expected ErrNotFound in other table, got %v", err)
	}
	other := cell.Key{RowKey: key.RowKey, PartitionKey: "p2"}
	if _, err := repo.Find(ctx, "a", other); !errors.Is(err, table.ErrNotFound) {
		t.Errorf("expected ErrNotFound in other partition, got %v", err)
	}
}

func testConcurrentUpdates(t *testing.T, repo table.Repository) {
	ctx := context.Background()
	if _, _, err := repo.CreateOrGet(ctx, "things", key, table.Put(cell.Bag{"N": cell.Int64(0)})); err != nil {
		t.Fatal(err)
	}

	const workers = 4
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, "things", key, func(row *table.Row) error {
				n, _ := row.Cells["N"].AsInt64()
				row.Cells["N"] = cell.Int64(n + 1)
				return nil
			})
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		if !errors.Is(err, table.ErrConflict) {
			t.Errorf("unexpected error: %v", err)
		}
		failed++
	}
	row, err := repo.Find(ctx, "things", key)
	if err != nil {
		t.Fatal(err)
	}
	// Every successful update must be counted exactly once.
	if n, _ := row.Cells["N"].AsInt64(); n != int64(workers-failed) {
		t.Errorf("expected %d, got %d", workers-failed, n)
	}
	if row.ETag != int64(1+workers-failed) {
		t.Errorf("expected ETag %d, got %d", 1+workers-failed, row.ETag)
	}
}

func testScan(t *testing.T, repo table.Repository) {
	scanner, ok := repo.(table.Scanner)
	if !ok {
		t.Skip("repository does not implement table.Scanner")
	}
	ctx := context.Background()
	for _, rk := range []string{"a", "b", "c"} {
		k := cell.Key{RowKey: rk, PartitionKey: "p"}
		if _, _, err := repo.CreateOrGet(ctx, "things", k, table.Put(cell.Bag{})); err != nil {
			t.Fatal(err)
		}
	}
	seen := make(map[string]bool)
	err := scanner.Scan(ctx, "things", func(row *table.Row) error {
		seen[row.Key.RowKey] = true
		return nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 rows, got %v", seen)
	}

	stop := errors.New("stop")
	if err := scanner.Scan(ctx, "things", func(*table.Row) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("expected callback error, got %v", err)
	}
}
