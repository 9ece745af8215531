package dynamo

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// IsExpired checks if an item has an expired TTL. DynamoDB removes such items
// lazily, so reads must treat them as absent.
func IsExpired(item map[string]types.AttributeValue, now time.Time) bool {
	ttlAttr, exists := item[AttrTTL]
	if !exists {
		return false // No TTL = live
	}
	ttlNum, ok := ttlAttr.(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(ttlNum.Value, 10, 64)
	if err != nil {
		return false
	}
	return ttl <= now.Unix()
}

// TTLFilterExpr returns the filter expression to exclude expired items.
func TTLFilterExpr() string {
	return "attribute_not_exists(#ttl) OR #ttl > :now"
}

func nowValue(now time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)}
}

// condition is a conditional-write expression with exactly the names and
// values it references.
type condition struct {
	expr   string
	names  map[string]string
	values map[string]types.AttributeValue
}

// absentCond holds when no live item exists at the key.
func absentCond(now time.Time) condition {
	return condition{
		expr:   "attribute_not_exists(#pk) OR #ttl <= :now",
		names:  map[string]string{"#pk": AttrPartitionKey, "#ttl": AttrTTL},
		values: map[string]types.AttributeValue{":now": nowValue(now)},
	}
}

// liveCond holds when a live item exists at the key.
func liveCond(now time.Time) condition {
	return condition{
		expr:   "attribute_exists(#pk) AND (" + TTLFilterExpr() + ")",
		names:  map[string]string{"#pk": AttrPartitionKey, "#ttl": AttrTTL},
		values: map[string]types.AttributeValue{":now": nowValue(now)},
	}
}

// versionCond holds when the live item at the key has the given ETag.
func versionCond(etag int64, now time.Time) condition {
	return condition{
		expr:  "#etag = :etag AND (" + TTLFilterExpr() + ")",
		names: map[string]string{"#etag": AttrETag, "#ttl": AttrTTL},
		values: map[string]types.AttributeValue{
			":etag": &types.AttributeValueMemberN{Value: strconv.FormatInt(etag, 10)},
			":now":  nowValue(now),
		},
	}
}
