package cell

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestKindCodes(t *testing.T) {
	for k := KindBinary; k <= KindString; k++ {
		code := k.Code()
		if code == "" {
			t.Errorf("expected code for %v", k)
			continue
		}
		back, ok := KindFromCode(code)
		if !ok || back != k {
			t.Errorf("expected %v from code %q, got %v", k, code, back)
		}
	}
	if _, ok := KindFromCode("X"); ok {
		t.Error("expected unknown code to fail")
	}
}

func TestCellAccessors(t *testing.T) {
	id := uuid.New()
	now := time.Date(2024, 3, 5, 14, 30, 0, 123, time.FixedZone("x", 3600))

	if v, ok := Int32(7).AsInt32(); !ok || v != 7 {
		t.Errorf("expected 7, got %v %v", v, ok)
	}
	if _, ok := Int32(7).AsInt64(); ok {
		t.Error("expected int32 cell not to read as int64")
	}
	if v, ok := Bool(true).AsBool(); !ok || !v {
		t.Error("expected true")
	}
	if v, ok := GUID(id).AsGUID(); !ok || v != id {
		t.Errorf("expected %v, got %v", id, v)
	}
	ts, ok := Timestamp(now).AsTime()
	if !ok || !ts.Equal(now) || ts.Location() != time.UTC {
		t.Errorf("expected UTC %v, got %v", now, ts)
	}
	if (Cell{}).IsValid() {
		t.Error("expected zero cell to be invalid")
	}
}

func TestCellEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Cell
		want bool
	}{
		{"same string", String("a"), String("a"), true},
		{"different kind", Int32(1), Int64(1), false},
		{"binary", Binary([]byte{1, 2}), Binary([]byte{1, 2}), true},
		{"binary differs", Binary([]byte{1, 2}), Binary([]byte{1}), false},
		{"empty string vs binary", String(""), Binary(nil), false},
		{"bool", Bool(false), Bool(false), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestBagEqualAndClone(t *testing.T) {
	b := Bag{"a": String("x"), "b": Int64(3)}
	c := b.Clone()
	if !b.Equal(c) {
		t.Fatal("expected clone to be equal")
	}
	c["a"] = String("y")
	if b.Equal(c) {
		t.Error("expected modified clone to differ")
	}
	if b["a"].str != "x" {
		t.Error("expected original untouched")
	}
	if got := b.String(); got != `{a="x", b=3}` {
		t.Errorf("unexpected String(): %s", got)
	}
}

func TestKeyLess(t *testing.T) {
	a := Key{RowKey: "b", PartitionKey: "1"}
	b := Key{RowKey: "a", PartitionKey: "2"}
	if !a.Less(b) || b.Less(a) {
		t.Error("expected partition key to order first")
	}
	if a.String() != "1/b" {
		t.Errorf("expected 1/b, got %s", a.String())
	}
}
