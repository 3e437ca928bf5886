package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"fleet-ops-dashboard/internal/models"
	"fleet-ops-dashboard/internal/parser"

	"github.com/IBM/sarama"
)

// Accumulator folds a stream of per-vehicle records into the latest record
// per vehicle. A newer record for an id fully replaces the older one, and a
// vehicle whose latest record falls staleAfter behind the newest record in the
// stream is forgotten.
type Accumulator struct {
	mu         sync.Mutex
	order      []string
	latest     map[string]models.VehicleRecord
	staleAfter time.Duration
	dropped    int
}

// NewAccumulator creates an empty accumulator. A zero staleAfter keeps every
// vehicle forever.
func NewAccumulator(staleAfter time.Duration) *Accumulator {
	return &Accumulator{latest: make(map[string]models.VehicleRecord), staleAfter: staleAfter}
}

// Apply decodes one message and records it. Messages that go back in time for
// a vehicle are ignored because timestamps are monotonic per vehicle.
func (a *Accumulator) Apply(payload []byte) error {
	var rec models.VehicleRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		a.drop()
		return &models.MalformedRecordError{Reason: err.Error()}
	}
	if rec.VehicleID == "" {
		a.drop()
		return &models.MalformedRecordError{Reason: "missing vehicle_id"}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	prev, seen := a.latest[rec.VehicleID]
	if !seen {
		a.order = append(a.order, rec.VehicleID)
	} else if rec.Timestamp < prev.Timestamp {
		return nil
	}
	a.latest[rec.VehicleID] = rec
	return nil
}

// forgetStaleLocked measures age against record timestamps, not the wall
// clock, so replayed or delayed topics behave the same as live ones.
func (a *Accumulator) forgetStaleLocked() {
	if a.staleAfter <= 0 || len(a.order) == 0 {
		return
	}
	var newest int64
	for _, id := range a.order {
		newest = max(newest, a.latest[id].Timestamp)
	}
	cutoff := newest - int64(a.staleAfter/time.Second)

	kept := a.order[:0]
	for _, id := range a.order {
		if a.latest[id].Timestamp < cutoff {
			delete(a.latest, id)
			continue
		}
		kept = append(kept, id)
	}
	a.order = kept
}

func (a *Accumulator) drop() {
	a.mu.Lock()
	a.dropped++
	a.mu.Unlock()
}

// Dropped returns how many messages could not be used
func (a *Accumulator) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Snapshot returns the latest record of every vehicle still reporting
func (a *Accumulator) Snapshot() *models.FleetSnapshot {
	a.mu.Lock()
	a.forgetStaleLocked()
	records := make([]models.VehicleRecord, 0, len(a.order))
	for _, id := range a.order {
		records = append(records, a.latest[id])
	}
	a.mu.Unlock()

	snap, problems := parser.Normalize(records)
	parser.LogProblems("kafka", problems)
	return snap
}

// KafkaSource consumes vehicle records pushed to a Kafka topic and exposes
// them through the same Poll contract as the HTTP source.
type KafkaSource struct {
	acc    *Accumulator
	group  sarama.ConsumerGroup
	topics []string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	lastErr error
	closed  bool
}

// NewKafkaSource joins the consumer group and starts consuming
func NewKafkaSource(brokers []string, topic, groupID, version string, staleAfter time.Duration) (*KafkaSource, error) {
	kafkaVersion, err := sarama.ParseKafkaVersion(version)
	if err != nil {
		return nil, fmt.Errorf("invalid kafka version: %w", err)
	}

	cfg := sarama.NewConfig()
	cfg.Version = kafkaVersion
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	k := &KafkaSource{
		acc:    NewAccumulator(staleAfter),
		group:  group,
		topics: []string{topic},
		ctx:    ctx,
		cancel: cancel,
	}
	k.start()
	return k, nil
}

func (k *KafkaSource) start() {
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		for {
			err := k.group.Consume(k.ctx, k.topics, k)
			if err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				log.Printf("❌ kafka consume: %v", err)
				k.setErr(err)
			}
			if k.ctx.Err() != nil {
				return
			}
		}
	}()

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		for {
			select {
			case <-k.ctx.Done():
				return
			case err, ok := <-k.group.Errors():
				if !ok {
					return
				}
				log.Printf("⚠️  kafka group error: %v", err)
				k.setErr(err)
			}
		}
	}()
}

func (k *KafkaSource) setErr(err error) {
	k.mu.Lock()
	k.lastErr = err
	k.mu.Unlock()
}

// Poll returns the latest record of every vehicle received so far
func (k *KafkaSource) Poll(ctx context.Context) (*models.FleetSnapshot, error) {
	k.mu.Lock()
	closed, lastErr := k.closed, k.lastErr
	k.lastErr = nil
	k.mu.Unlock()

	if closed {
		return nil, &models.TransientFetchError{Source: "kafka", Err: errors.New("consumer closed")}
	}
	if lastErr != nil {
		return nil, &models.TransientFetchError{Source: "kafka", Err: lastErr}
	}
	return k.acc.Snapshot(), nil
}

// Close leaves the consumer group
func (k *KafkaSource) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	k.mu.Unlock()

	k.cancel()
	err := k.group.Close()
	k.wg.Wait()
	return err
}

// Setup implements sarama.ConsumerGroupHandler
func (k *KafkaSource) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler
func (k *KafkaSource) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim implements sarama.ConsumerGroupHandler
func (k *KafkaSource) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := k.acc.Apply(msg.Value); err != nil {
				log.Printf("⚠️  kafka %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
