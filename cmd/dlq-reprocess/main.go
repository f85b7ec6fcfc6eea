package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/app"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers       []string
	sourceTopic   string
	fallbackTopic string
	limit         int
	execute       bool
	idleTimeout   time.Duration
}

// offsetSource: часть sarama.Client, нужная для определения границ партиций.
type offsetSource interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
}

type partitionReader interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionOpener func(topic string, partition int32, offset int64) (partitionReader, error)

// replayPublisher реализуется kafka.Producer.
type replayPublisher interface {
	PublishMessage(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
}

func (s *replayStats) add(other replayStats) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.skipped += other.skipped
}

func main() {
	app.SetupLogger(nil)

	cfg, err := parseConfig(flag.CommandLine, os.Args[1:], os.LookupEnv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func parseConfig(fs *flag.FlagSet, args []string, lookup app.EnvLookup) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: SHOP_KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&cfg.fallbackTopic, "fallback-topic", kafka.TopicOrderEvents, "target topic when a letter has no original topic")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of letters to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "republish letters; default is dry-run")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" && lookup != nil {
		brokersRaw, _ = lookup("SHOP_KAFKA_BROKERS")
	}
	cfg.brokers = parseBrokers(brokersRaw)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or SHOP_KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, fmt.Errorf("source-topic is required")
	case strings.TrimSpace(cfg.fallbackTopic) == "":
		return config{}, fmt.Errorf("fallback-topic is required")
	case cfg.limit <= 0:
		return config{}, fmt.Errorf("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}
	return cfg, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, saramaCfg)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer func() { _ = client.Close() }()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	open := func(topic string, partition int32, offset int64) (partitionReader, error) {
		return consumer.ConsumePartition(topic, partition, offset)
	}

	var publisher replayPublisher
	if cfg.execute {
		producer, err := kafka.NewProducer(cfg.brokers)
		if err != nil {
			return err
		}
		defer func() { _ = producer.Close() }()
		publisher = producer
	}

	_, err = replay(ctx, cfg, client, open, publisher)
	return err
}

// replay сканирует партиции DLQ до текущего конца и переотправляет
// исходные сообщения в их топики. Без publisher работает как dry-run.
func replay(ctx context.Context, cfg config, offsets offsetSource, open partitionOpener, publisher replayPublisher) (replayStats, error) {
	var total replayStats
	if cfg.execute && publisher == nil {
		return total, fmt.Errorf("publisher is required in execute mode")
	}

	partitions, err := offsets.Partitions(cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		remaining := cfg.limit - total.scanned
		if remaining <= 0 {
			break
		}
		stats, err := replayPartition(ctx, cfg, offsets, open, publisher, partition, remaining)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":     mode,
		"scanned":  total.scanned,
		"replayed": total.replayed,
		"skipped":  total.skipped,
	}).Info("dlq replay finished")

	return total, nil
}

func replayPartition(
	ctx context.Context,
	cfg config,
	offsets offsetSource,
	open partitionOpener,
	publisher replayPublisher,
	partition int32,
	limit int,
) (replayStats, error) {
	var stats replayStats

	oldest, err := offsets.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := offsets.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	reader, err := open(cfg.sourceTopic, partition, oldest)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = reader.Close() }()

	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()
	errs := reader.Errors()

	for stats.scanned < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-reader.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(cfg.idleTimeout)
			stats.scanned++

			if err := replayLetter(ctx, cfg, publisher, msg); err != nil {
				if cfg.execute && !isMalformed(err) {
					return stats, err
				}
				stats.skipped++
				log.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip dlq message")
			} else {
				stats.replayed++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

type malformedLetterError struct{ reason string }

func (e malformedLetterError) Error() string { return "malformed dead letter: " + e.reason }

func isMalformed(err error) bool {
	_, ok := err.(malformedLetterError)
	return ok
}

func replayLetter(ctx context.Context, cfg config, publisher replayPublisher, msg *sarama.ConsumerMessage) error {
	letter, err := kafka.ParseDeadLetter(msg)
	if err != nil {
		return malformedLetterError{reason: err.Error()}
	}
	if len(letter.OriginalValue) == 0 {
		return malformedLetterError{reason: "empty original value"}
	}

	topic := strings.TrimSpace(letter.OriginalTopic)
	if topic == "" {
		topic = cfg.fallbackTopic
	}
	value := originalBytes(letter.OriginalValue)

	entry := log.WithFields(log.Fields{
		"partition":    msg.Partition,
		"offset":       msg.Offset,
		"target_topic": topic,
		"key":          letter.OriginalKey,
		"event_type":   letter.EventType,
		"retry_count":  letter.RetryCount,
	})
	if !cfg.execute {
		entry.Info("dlq replay candidate")
		return nil
	}

	headers := map[string]string{kafka.HeaderRetryCount: fmt.Sprint(letter.RetryCount)}
	if letter.EventType != "" {
		headers[kafka.HeaderEventType] = letter.EventType
	}
	if err := publisher.PublishMessage(ctx, topic, letter.OriginalKey, value, headers); err != nil {
		return fmt.Errorf("republish offset %d: %w", msg.Offset, err)
	}
	entry.Info("dlq message replayed")
	return nil
}

// originalBytes снимает строковую обёртку, которой DLQ сохраняет не-JSON значения.
func originalBytes(raw []byte) []byte {
	if len(raw) > 1 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []byte(s)
		}
	}
	return raw
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
