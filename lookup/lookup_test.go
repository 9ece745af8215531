package lookup

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/lattice/cell"
)

type Status int

const (
	StatusUnknown Status = iota
	StatusActive
	StatusRetired
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusRetired:
		return "Retired"
	}
	return "Unknown"
}

type Asset struct {
	ID      uuid.UUID
	Name    string
	Path    string
	Owners  []uuid.UUID
	Parent  *uuid.UUID
	Status  Status
	Version int64
	Taken   time.Time
}

func key(row, part string) cell.Key {
	return cell.Key{RowKey: row, PartitionKey: part}
}

func TestPartitioners(t *testing.T) {
	tests := []struct {
		name     string
		p        Partitioner
		rowKey   string
		expected string
	}{
		{"fixed", Fixed("all"), "alpha", "all"},
		{"hash prefix 2", HashPrefix(2), "alpha", "5d"},
		{"hash prefix 1", HashPrefix(1), "beta", "a"},
		{"prefix", Prefix(3), "alphabet", "alp"},
		{"short prefix", Prefix(10), "ab", "ab"},
		{"buckets", Buckets(16), "alpha", "0b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p(tt.rowKey); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestIdentity(t *testing.T) {
	id := uuid.MustParse("0b4f6b8e-2a51-4f6c-8d35-1c3f1f6f2a01")
	keys := Identity(Prefix(2)).Keys(id)
	want := []cell.Key{key("0b4f6b8e2a514f6c8d351c3f1f6f2a01", "0b")}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("expected %v, got %v", want, keys)
	}

	if keys := Identity(Fixed("x")).IgnoreZero().Keys(uuid.Nil); len(keys) != 0 {
		t.Errorf("expected nil id to be ignored, got %v", keys)
	}
	if keys := Identity(Fixed("x")).Keys(uuid.Nil); len(keys) != 1 {
		t.Errorf("expected nil id to be indexed without IgnoreZero, got %v", keys)
	}
}

func TestText_IgnoreZero(t *testing.T) {
	s := Text(HashPrefix(2)).IgnoreZero()
	if keys := s.Keys(""); keys != nil {
		t.Errorf("expected no keys, got %v", keys)
	}
	if keys := s.Keys("alpha"); !reflect.DeepEqual(keys, []cell.Key{key("alpha", "5d")}) {
		t.Errorf("unexpected keys %v", keys)
	}
}

func TestNumber(t *testing.T) {
	if keys := Number[int64](Fixed("n")).Keys(-42); keys[0].RowKey != "-42" {
		t.Errorf("expected -42, got %q", keys[0].RowKey)
	}
	if keys := Number[uint8](Fixed("n")).Keys(255); keys[0].RowKey != "255" {
		t.Errorf("expected 255, got %q", keys[0].RowKey)
	}
	if keys := Number[int](Fixed("n")).IgnoreZero().Keys(0); len(keys) != 0 {
		t.Errorf("expected zero to be ignored, got %v", keys)
	}
}

func TestNamed(t *testing.T) {
	s := Named[Status](Fixed("status")).IgnoreZero()
	if keys := s.Keys(StatusRetired); !reflect.DeepEqual(keys, []cell.Key{key("Retired", "status")}) {
		t.Errorf("unexpected keys %v", keys)
	}
	if keys := s.Keys(StatusUnknown); len(keys) != 0 {
		t.Errorf("expected zero member to be ignored, got %v", keys)
	}
}

func TestTemporal(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 30, 15, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		g        Granularity
		expected cell.Key
	}{
		{Year, key("2024", "years")},
		{Month, key("2024-03", "2024")},
		{Week, key("2024-W10", "2024")},
		{Day, key("2024-03-05", "2024-03")},
		{Hour, key("2024-03-05T13", "2024-03-05")},
		{Minute, key("2024-03-05T13:30", "2024-03-05T13")},
	}

	for _, tt := range tests {
		t.Run(tt.g.String(), func(t *testing.T) {
			keys := Temporal(tt.g).Keys(ts)
			if len(keys) != 1 || keys[0] != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, keys)
			}
		})
	}
}

func TestTemporal_WeekAcrossYearBoundary(t *testing.T) {
	// 2024-12-30 is in ISO week 1 of 2025.
	keys := Temporal(Week).Keys(time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC))
	if want := key("2025-W01", "2025"); keys[0] != want {
		t.Errorf("expected %v, got %v", want, keys[0])
	}
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("Hour")
	if err != nil || g != Hour {
		t.Errorf("expected Hour, got %v (%v)", g, err)
	}
	if _, err := ParseGranularity("fortnight"); err == nil {
		t.Error("expected error for unknown granularity")
	}
}

func TestCanonicalURL(t *testing.T) {
	all := URLHost | URLPath | URLQuery

	tests := []struct {
		raw      string
		parts    URLPart
		expected string
	}{
		{"HTTPS://Example.COM:443/a/b/?z=1&a=2#frag", all, "https://example.com/a/b?a=2&z=1"},
		{"http://example.com:8080/a/../c", all, "http://example.com:8080/c"},
		{"https://example.com/", all, "https://example.com"},
		{"https://example.com/a?x=1", URLHost, "https://example.com"},
		{"https://example.com/a/b/?x=1", URLPath, "/a/b"},
		{"  not a url  ", all, "not a url"},
	}

	for _, tt := range tests {
		if got := CanonicalURL(tt.raw, tt.parts); got != tt.expected {
			t.Errorf("CanonicalURL(%q) = %q, want %q", tt.raw, got, tt.expected)
		}
	}
}

func TestURL_Hashed(t *testing.T) {
	s := URL(URLHost|URLPath, Fixed("u")).Hashed()
	a := s.Keys("https://Example.com/a/")
	b := s.Keys("https://example.com/a")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("expected equivalent URLs to share a key: %v vs %v", a, b)
	}
	if len(a[0].RowKey) != 32 {
		t.Errorf("expected 32-char hashed key, got %q", a[0].RowKey)
	}
}

func TestField_Each(t *testing.T) {
	o1 := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	o2 := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	byOwner := Field(func(a *Asset) []uuid.UUID { return a.Owners }, Each[uuid.UUID](Identity(Fixed("o"))))

	keys := byOwner(&Asset{Owners: []uuid.UUID{o1, o2, o1}})
	want := []cell.Key{
		key("11111111111111111111111111111111", "o"),
		key("22222222222222222222222222222222", "o"),
	}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("expected %v, got %v", want, keys)
	}
	if keys := byOwner(&Asset{}); len(keys) != 0 {
		t.Errorf("expected no keys for no owners, got %v", keys)
	}
}

func TestField_Optional(t *testing.T) {
	byParent := Field(func(a *Asset) *uuid.UUID { return a.Parent }, Optional[uuid.UUID](Identity(Fixed("p"))))
	if keys := byParent(&Asset{}); len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
	p := uuid.New()
	if keys := byParent(&Asset{Parent: &p}); len(keys) != 1 {
		t.Errorf("expected one key, got %v", keys)
	}
}

func TestScoped_DeterministicAcrossDeclarationOrder(t *testing.T) {
	path := Part[Asset]{Order: 1, Value: func(a *Asset) string { return a.Path }}
	day := Part[Asset]{Order: 2, Separator: "|", Value: func(a *Asset) string { return Bucket(Day, a.Taken) }}
	id := Part[Asset]{Order: 3, Separator: "#", Value: func(a *Asset) string { return IDHex(a.ID) }}

	first := Scoped(Scope[Asset]{Row: []Part[Asset]{path, day, id}, Partitioner: HashPrefix(2)})
	second := Scoped(Scope[Asset]{Row: []Part[Asset]{id, path, day}, Partitioner: HashPrefix(2)})

	a := Asset{
		ID:    uuid.MustParse("0b4f6b8e-2a51-4f6c-8d35-1c3f1f6f2a01"),
		Path:  "/cams/front",
		Taken: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
	}
	k1, k2 := first(&a), second(&a)
	if !reflect.DeepEqual(k1, k2) {
		t.Fatalf("expected identical keys, got %v and %v", k1, k2)
	}
	if want := "/cams/front|2024-03-05#0b4f6b8e2a514f6c8d351c3f1f6f2a01"; k1[0].RowKey != want {
		t.Errorf("expected %q, got %q", want, k1[0].RowKey)
	}
}

func TestScoped_PartitionPartsAndIgnoreEmpty(t *testing.T) {
	s := Scoped(Scope[Asset]{
		Row: []Part[Asset]{
			{Order: 0, Value: func(a *Asset) string { return a.Name }},
		},
		Partition: []Part[Asset]{
			{Order: 1, Separator: "/", Value: func(a *Asset) string { return a.Status.String() }},
			{Order: 0, Value: func(a *Asset) string { return a.Path }},
		},
		IgnoreEmpty: true,
	})

	keys := s(&Asset{Name: "n", Path: "p", Status: StatusActive})
	if want := []cell.Key{key("n", "p/Active")}; !reflect.DeepEqual(keys, want) {
		t.Errorf("expected %v, got %v", want, keys)
	}
	if keys := s(&Asset{Name: "n"}); len(keys) != 0 {
		t.Errorf("expected empty part to suppress keys, got %v", keys)
	}
}

func TestDedup(t *testing.T) {
	in := []cell.Key{key("a", "1"), key("b", "1"), key("a", "1"), key("a", "2")}
	want := []cell.Key{key("a", "1"), key("b", "1"), key("a", "2")}
	if got := Dedup(in); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDiff(t *testing.T) {
	prev := []cell.Key{key("a", "1"), key("b", "1")}
	next := []cell.Key{key("b", "1"), key("c", "1")}

	added, removed := Diff(prev, next)
	if !reflect.DeepEqual(added, []cell.Key{key("c", "1")}) {
		t.Errorf("unexpected added %v", added)
	}
	if !reflect.DeepEqual(removed, []cell.Key{key("a", "1")}) {
		t.Errorf("unexpected removed %v", removed)
	}

	added, removed = Diff(prev, prev)
	if len(added) != 0 || len(removed) != 0 {
		t.Errorf("expected no difference, got %v / %v", added, removed)
	}
}
