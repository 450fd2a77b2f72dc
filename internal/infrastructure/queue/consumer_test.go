package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kfake"
	"github.com/twmb/franz-go/pkg/kgo"
)

// startRequestCluster runs an in-memory broker with the request topic on a
// single partition and seeds it with the given payloads in order.
func startRequestCluster(t *testing.T, bodies ...string) []string {
	t.Helper()

	cluster, err := kfake.NewCluster(kfake.SeedTopics(1, TopicRequests))
	if err != nil {
		t.Fatalf("start fake cluster: %v", err)
	}
	t.Cleanup(cluster.Close)
	brokers := cluster.ListenAddrs()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(TopicRequests),
	)
	if err != nil {
		t.Fatalf("create seed producer: %v", err)
	}
	defer client.Close()

	records := make([]*kgo.Record, len(bodies))
	for i, body := range bodies {
		records[i] = &kgo.Record{Value: []byte(body)}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		t.Fatalf("seed records: %v", err)
	}
	return brokers
}

// committedOffset reads the group's committed offset for the request topic's
// only partition, -1 when nothing is committed.
func committedOffset(t *testing.T, brokers []string, group string) int64 {
	t.Helper()

	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		t.Fatalf("create admin client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	offsets, err := kadm.NewClient(client).FetchOffsets(ctx, group)
	if err != nil {
		t.Fatalf("fetch group offsets: %v", err)
	}
	resp, ok := offsets.Lookup(TopicRequests, 0)
	if !ok {
		return -1
	}
	return resp.At
}

func testConsumerConfig(brokers []string, group string) ConsumerConfig {
	cfg := DefaultConsumerConfig()
	cfg.Brokers = brokers
	cfg.GroupID = group
	return cfg
}

func waitDeliveries(t *testing.T, delivered <-chan int64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-delivered:
		case <-time.After(15 * time.Second):
			t.Fatalf("timed out waiting for delivery %d of %d", i+1, n)
		}
	}
}

// A handler failure must leave that record's offset uncommitted even when an
// earlier record in the same fetch succeeded, and shutdown must not commit it
// either. Otherwise the broker would never redeliver the failed request and
// the prescription would be silently lost.
func TestCommitStopsAtFailedRecord(t *testing.T) {
	brokers := startRequestCluster(t, "first", "second")
	const group = "commit-stops"

	delivered := make(chan int64, 4)
	consumer, err := NewConsumer(testConsumerConfig(brokers, group), func(_ context.Context, msg *Message) error {
		delivered <- msg.Offset
		if string(msg.Value) == "second" {
			return errors.New("insert failed")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("create consumer: %v", err)
	}
	consumer.Start()
	waitDeliveries(t, delivered, 2)
	consumer.Stop()

	if got := committedOffset(t, brokers, group); got != 1 {
		t.Fatalf("committed offset = %d, want 1 (only the record before the failure)", got)
	}
}

// A record whose handler failed comes back: the next group member resumes at
// the failed record, and once its handler succeeds the offset advances.
func TestFailedRecordIsRedelivered(t *testing.T) {
	brokers := startRequestCluster(t, "first", "second")
	const group = "redelivery"

	delivered := make(chan int64, 4)
	failing, err := NewConsumer(testConsumerConfig(brokers, group), func(_ context.Context, msg *Message) error {
		delivered <- msg.Offset
		if msg.Offset == 1 {
			return errors.New("database unavailable")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("create consumer: %v", err)
	}
	failing.Start()
	waitDeliveries(t, delivered, 2)
	failing.Stop()

	redelivered := make(chan int64, 4)
	retry, err := NewConsumer(testConsumerConfig(brokers, group), func(_ context.Context, msg *Message) error {
		redelivered <- msg.Offset
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("create retry consumer: %v", err)
	}
	retry.Start()

	select {
	case off := <-redelivered:
		if off != 1 {
			t.Fatalf("retry pass started at offset %d, want the failed record at 1", off)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("failed record was never redelivered")
	}
	retry.Stop()

	if got := committedOffset(t, brokers, group); got != 2 {
		t.Fatalf("committed offset after retry = %d, want 2", got)
	}
}
