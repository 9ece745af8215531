package lookup

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity keys by a unique id or reference, as 32 lowercase hex digits.
func Identity(p Partitioner) Simple[uuid.UUID] {
	return newSimple(IDHex, func(id uuid.UUID) bool { return id == uuid.Nil }, p)
}

// IDHex formats id as 32 lowercase hex digits without dashes.
func IDHex(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}

// Text keys by the literal string.
func Text(p Partitioner) Simple[string] {
	return newSimple(func(s string) string { return s }, func(s string) bool { return s == "" }, p)
}

// Integer is the set of integer types Number accepts.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Number keys by the decimal text of an integer.
func Number[I Integer](p Partitioner) Simple[I] {
	return newSimple(func(v I) string {
		if v < 0 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatUint(uint64(v), 10)
	}, func(v I) bool { return v == 0 }, p)
}

// Enum is a comparable value with a member name.
type Enum interface {
	comparable
	fmt.Stringer
}

// Named keys by the member name of an enum value. The zero member counts
// as zero.
func Named[E Enum](p Partitioner) Simple[E] {
	var zero E
	return newSimple(func(v E) string { return v.String() }, func(v E) bool { return v == zero }, p)
}

// Granularity is the calendar bucket size of a Temporal strategy.
type Granularity int

const (
	Year Granularity = iota
	Month
	Week
	Day
	Hour
	Minute
)

var granularityNames = [...]string{"year", "month", "week", "day", "hour", "minute"}

func (g Granularity) String() string {
	if g < 0 || int(g) >= len(granularityNames) {
		return "Granularity(" + strconv.Itoa(int(g)) + ")"
	}
	return granularityNames[g]
}

// ParseGranularity parses the name returned by Granularity.String.
func ParseGranularity(s string) (Granularity, error) {
	for i, name := range granularityNames {
		if strings.EqualFold(s, name) {
			return Granularity(i), nil
		}
	}
	return 0, fmt.Errorf("lookup: unknown granularity %q", s)
}

// coarser returns the bucket that partitions buckets of g.
func (g Granularity) coarser() Granularity {
	switch g {
	case Minute:
		return Hour
	case Hour:
		return Day
	case Day:
		return Month
	default:
		return Year
	}
}

// allYears is the partition of Year buckets.
const allYears = "years"

// Bucket formats t (in UTC) truncated to g. Finer buckets extend the text of
// coarser ones, so a bucket prefix selects a time range:
//
//	Year   2024
//	Month  2024-03
//	Week   2024-W10
//	Day    2024-03-05
//	Hour   2024-03-05T14
//	Minute 2024-03-05T14:30
func Bucket(g Granularity, t time.Time) string {
	t = t.UTC()
	switch g {
	case Year:
		return t.Format("2006")
	case Month:
		return t.Format("2006-01")
	case Week:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	case Day:
		return t.Format("2006-01-02")
	case Hour:
		return t.Format("2006-01-02T15")
	default:
		return t.Format("2006-01-02T15:04")
	}
}

// Temporal keys by the calendar bucket of a timestamp. The partition key is
// the next coarser bucket: minutes by hour, hours by day, days by month,
// weeks by ISO year, months by year.
func Temporal(g Granularity) Simple[time.Time] {
	return Simple[time.Time]{
		row:  func(t time.Time) string { return Bucket(g, t) },
		zero: time.Time.IsZero,
		partition: func(t time.Time, _ string) string {
			switch g {
			case Year:
				return allYears
			case Week:
				y, _ := t.UTC().ISOWeek()
				return fmt.Sprintf("%04d", y)
			}
			return Bucket(g.coarser(), t)
		},
	}
}

// URLPart selects the components of a URL that make up its key.
type URLPart uint8

const (
	URLHost URLPart = 1 << iota
	URLPath
	URLQuery
)

// URL keys by the canonical form of the selected components of a URL:
// lowercase scheme and host, default port removed, dot segments resolved,
// no trailing slash, query parameters sorted, fragment dropped. Values that
// do not parse as absolute URLs are keyed by their trimmed text.
func URL(parts URLPart, p Partitioner) Simple[string] {
	return newSimple(func(raw string) string {
		return CanonicalURL(raw, parts)
	}, func(s string) bool { return strings.TrimSpace(s) == "" }, p)
}

// CanonicalURL returns the canonical form of the selected components of raw.
func CanonicalURL(raw string, parts URLPart) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	var b strings.Builder
	if parts&URLHost != 0 {
		b.WriteString(strings.ToLower(u.Scheme))
		b.WriteString("://")
		host := strings.ToLower(u.Hostname())
		port := u.Port()
		if port != "" && !defaultPort(u.Scheme, port) {
			host += ":" + port
		}
		b.WriteString(host)
	}
	if parts&URLPath != 0 {
		path := u.EscapedPath()
		if path != "" {
			path = (&url.URL{Path: "/"}).ResolveReference(&url.URL{Path: u.Path}).EscapedPath()
		}
		b.WriteString(strings.TrimSuffix(path, "/"))
	}
	if parts&URLQuery != 0 && u.RawQuery != "" {
		if q := u.Query().Encode(); q != "" {
			b.WriteByte('?')
			b.WriteString(q)
		}
	}
	return b.String()
}

func defaultPort(scheme, port string) bool {
	switch strings.ToLower(scheme) {
	case "http":
		return port == "80"
	case "https":
		return port == "443"
	}
	return false
}
