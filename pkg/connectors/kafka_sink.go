package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/twmb/franz-go/pkg/kgo"

	helpers "github.com/sandboxws/isotope/frameunion/pkg/arrow/helpers"
	"github.com/sandboxws/isotope/frameunion/pkg/operator"
)

// KafkaSink produces one JSON message per row to a Kafka topic.
// Null values, including padded columns, are encoded as JSON null.
type KafkaSink struct {
	topic            string
	bootstrapServers string
	keyBy            []string
	client           *kgo.Client
	ctx              *operator.Context
}

// NewKafkaSink creates a Kafka sink connector. Rows are keyed by the JSON
// object of the keyBy columns when any are given.
func NewKafkaSink(topic, bootstrapServers string, keyBy []string) *KafkaSink {
	return &KafkaSink{
		topic:            topic,
		bootstrapServers: bootstrapServers,
		keyBy:            keyBy,
	}
}

func (k *KafkaSink) Open(ctx *operator.Context) error {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(k.bootstrapServers),
		kgo.DefaultProduceTopic(k.topic),
	)
	if err != nil {
		return fmt.Errorf("kafka sink: create client: %w", err)
	}
	k.client = client
	k.ctx = ctx
	return nil
}

func (k *KafkaSink) WriteBatch(batch arrow.Record) error {
	records, err := encodeRows(batch, k.keyBy)
	if err != nil {
		return fmt.Errorf("kafka sink: %w", err)
	}

	ctx := context.Background()
	if k.ctx != nil {
		ctx = k.ctx.Ctx
	}
	if err := k.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("kafka sink: produce to %s: %w", k.topic, err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	if k.client != nil {
		k.client.Close()
	}
	return nil
}

// encodeRows converts every row of batch to a Kafka record whose value is a
// JSON object with one member per column, in column order.
func encodeRows(batch arrow.Record, keyBy []string) ([]*kgo.Record, error) {
	keyCols := make([]int, len(keyBy))
	for i, col := range keyBy {
		idx := helpers.ColumnIndex(batch, col)
		if idx < 0 {
			return nil, fmt.Errorf("key column %q not in schema", col)
		}
		keyCols[i] = idx
	}

	allCols := make([]int, batch.NumCols())
	for i := range allCols {
		allCols[i] = i
	}

	numRows := int(batch.NumRows())
	records := make([]*kgo.Record, 0, numRows)
	for row := 0; row < numRows; row++ {
		value, err := encodeObject(batch, allCols, row)
		if err != nil {
			return nil, fmt.Errorf("marshal row %d: %w", row, err)
		}
		rec := &kgo.Record{Value: value}

		if len(keyCols) > 0 {
			key, err := encodeObject(batch, keyCols, row)
			if err != nil {
				return nil, fmt.Errorf("marshal key of row %d: %w", row, err)
			}
			rec.Key = key
		}
		records = append(records, rec)
	}
	return records, nil
}

// encodeObject writes the given columns of one row as a JSON object. Members
// follow cols order and repeated column names are written as they appear.
func encodeObject(batch arrow.Record, cols []int, row int) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(batch.ColumnName(col))
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(batch.Column(col).GetOneForMarshal(row))
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", batch.ColumnName(col), err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
