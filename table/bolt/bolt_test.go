package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jacentio/lattice/cell"
	"github.com/jacentio/lattice/table"
	"github.com/jacentio/lattice/table/tabletest"
)

func openTemp(t *testing.T, opt Options) *Repository {
	t.Helper()
	opt.IsTesting = true
	repo, err := Open(filepath.Join(t.TempDir(), "lattice.db"), opt)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestContract(t *testing.T) {
	tabletest.Run(t, func(t *testing.T) table.Repository {
		return openTemp(t, Options{})
	})
}

func TestRowKey_RoundTrip(t *testing.T) {
	tests := []cell.Key{
		{PartitionKey: "p", RowKey: "r"},
		{PartitionKey: "", RowKey: "r"},
		{PartitionKey: "a\x00b", RowKey: ""},
	}
	for _, k := range tests {
		got, err := parseRowKey(rowKey(k))
		if err != nil {
			t.Fatalf("parseRowKey(%v): %v", k, err)
		}
		if got != k {
			t.Errorf("expected %v, got %v", k, got)
		}
	}
	if _, err := parseRowKey([]byte{5, 'a'}); err == nil {
		t.Error("expected error for truncated key")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lattice.db")
	at := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	k := cell.Key{RowKey: "r", PartitionKey: "p"}

	repo, err := Open(path, Options{IsTesting: true, Now: func() time.Time { return at }})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := repo.CreateOrGet(context.Background(), "things", k, table.Put(cell.Bag{"Name": cell.String("a")})); err != nil {
		t.Fatal(err)
	}
	if err := repo.Close(); err != nil {
		t.Fatal(err)
	}

	repo, err = Open(path, Options{IsTesting: true})
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()

	row, err := repo.Find(context.Background(), "things", k)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if s, _ := row.Cells["Name"].AsString(); s != "a" {
		t.Errorf("expected 'a', got %v", row.Cells["Name"])
	}
	if row.ETag != 1 || !row.Timestamp.Equal(at) {
		t.Errorf("unexpected metadata: etag=%d timestamp=%v", row.ETag, row.Timestamp)
	}
}

func TestDecodeRow_UnknownKind(t *testing.T) {
	raw, err := encodeRow(&table.Row{Cells: cell.Bag{"x": cell.String("y")}})
	if err != nil {
		t.Fatal(err)
	}
	sc := storedCell{Name: "x", Kind: "?"}
	if _, err := sc.cell(); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := decodeRow(cell.Key{}, raw[:len(raw)-1]); err == nil {
		t.Error("expected error for truncated row")
	}
}
