// Package stream provides DynamoDB Streams handlers for index repair.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/cell"
	"github.com/jacentio/lattice/metrics"
	"github.com/jacentio/lattice/store"
	"github.com/jacentio/lattice/table/dynamo"
)

// Handler processes DynamoDB stream events from primary tables and repairs
// the index rows of every changed record.
type Handler struct {
	store       *store.Store
	logger      *slog.Logger
	tablePrefix string
}

// NewHandler creates a new stream handler.
func NewHandler(s *store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		logger: logger,
	}
}

// SetTablePrefix sets the prefix the dynamo repository adds to table names,
// so stream sources map back to registered tables.
func (h *Handler) SetTablePrefix(prefix string) {
	h.tablePrefix = prefix
}

// HandleIndexRepair processes DynamoDB stream events and reconciles index
// rows with the changed records.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleIndexRepair(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			metrics.StreamRecords.WithLabelValues(record.EventName, "failed").Inc()
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	switch record.EventName {
	case "INSERT", "MODIFY", "REMOVE":
	default:
		return nil
	}

	tableName, ok := strings.CutPrefix(TableFromARN(record.EventSourceArn), h.tablePrefix)
	if !ok {
		return nil
	}
	if _, isIndex := h.store.IndexOwner(tableName); isIndex {
		return nil
	}
	if _, known := h.store.Registry().Table(tableName); !known {
		h.logger.Debug("skipping record from unregistered table",
			"table", tableName,
			"eventID", record.EventID,
		)
		metrics.StreamRecords.WithLabelValues(record.EventName, "skipped").Inc()
		return nil
	}

	key := cell.Key{
		PartitionKey: getStringAttr(record.Change.Keys, dynamo.AttrPartitionKey),
		RowKey:       getStringAttr(record.Change.Keys, dynamo.AttrRowKey),
	}
	var images []cell.Bag
	for _, image := range []map[string]events.DynamoDBAttributeValue{record.Change.OldImage, record.Change.NewImage} {
		if len(image) == 0 {
			continue
		}
		row, err := dynamo.DecodeItem(ConvertImage(image))
		if err != nil {
			return fmt.Errorf("decode image: %w", err)
		}
		images = append(images, row.Cells)
	}

	h.logger.Info("repairing index entries",
		"table", tableName,
		"key", key,
		"event", record.EventName,
	)
	if err := h.store.Repair(ctx, tableName, key, images...); err != nil {
		return fmt.Errorf("repair %s %v: %w", tableName, key, err)
	}
	metrics.StreamRecords.WithLabelValues(record.EventName, "ok").Inc()
	return nil
}

// TableFromARN extracts the table name from a stream ARN of the form
// arn:aws:dynamodb:region:account:table/NAME/stream/LABEL.
func TableFromARN(arn string) string {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// ConvertImage converts a DynamoDB stream image to SDK attribute values.
// Null attributes are dropped.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		if av := convertValue(v); av != nil {
			result[k] = av
		}
	}
	return result
}

func convertValue(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertImage(v.Map())}
	case events.DataTypeList:
		list := make([]types.AttributeValue, 0, len(v.List()))
		for _, item := range v.List() {
			if av := convertValue(item); av != nil {
				list = append(list, av)
			}
		}
		return &types.AttributeValueMemberL{Value: list}
	}
	return nil
}
