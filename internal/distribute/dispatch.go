package distribute

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"
)

// ShardDispatcher sends a serialized shard argv (Split.ShardArgv) to one
// shard, reporting only whether the send succeeded; shard replies are not
// returned through this interface. Two implementations exist: a
// direct in-process call for a coordinator sharing an address space with
// its shards, and a Kafka-topic publish for a coordinator fronting a
// fleet of standalone shard processes, grounded on the teacher's
// kafka.Writer wrapper in internal/tools/kafka.
type ShardDispatcher interface {
	Dispatch(ctx context.Context, shardID int, argv []string) error
}

// ShardHandler is the direct-dispatch target: a function that executes
// argv against shard shardID in-process (e.g. a local RP chain build+run).
type ShardHandler func(ctx context.Context, shardID int, argv []string) error

// DirectDispatcher calls a ShardHandler synchronously, used when shards
// run as goroutines inside the same process as the coordinator (tests,
// single-binary deployments).
type DirectDispatcher struct {
	Handler ShardHandler
}

func NewDirectDispatcher(h ShardHandler) *DirectDispatcher {
	return &DirectDispatcher{Handler: h}
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, shardID int, argv []string) error {
	return d.Handler(ctx, shardID, argv)
}

// kafkaWriter is the subset of *kafka.Writer this package depends on,
// letting tests supply a fake.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaDispatcher publishes the serialized shard argv, keyed by shard id,
// to a single topic that every shard process consumes from (filtering on
// key or partition). One topic per index is the expected deployment
// shape; each message carries a fresh "correlation_id" header for tracing
// across the coordinator/shard boundary.
type KafkaDispatcher struct {
	Writer kafkaWriter
	Topic  string
}

func NewKafkaDispatcher(w kafkaWriter, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{Writer: w, Topic: topic}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, shardID int, argv []string) error {
	correlationID := uuid.New().String()
	msg := kafka.Message{
		Topic: d.Topic,
		Key:   []byte(strconv.Itoa(shardID)),
		Value: []byte(FormatArgv(argv)),
		Headers: []kafka.Header{
			{Key: "correlation_id", Value: []byte(correlationID)},
		},
	}
	if err := d.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("distribute: dispatch to shard %d: %w", shardID, err)
	}
	return nil
}
