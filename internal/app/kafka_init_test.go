package app

import (
	"reflect"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	producer, err := initKafkaProducer(" , ", log.WithField("test", "kafka"))
	if err != nil {
		t.Errorf("expected no error for empty brokers, got %v", err)
	}
	if producer != nil {
		t.Error("expected nil producer for empty brokers")
	}
}

func TestInitKafkaProducer_InvalidBrokers(t *testing.T) {
	producer, err := initKafkaProducer("127.0.0.1:1", log.WithField("test", "kafka"))
	if err == nil {
		t.Error("expected error for unreachable broker")
	}
	if producer != nil {
		t.Error("expected nil producer on error")
	}
}

func TestSplitBrokers(t *testing.T) {
	got := splitBrokers(" broker1:9092, ,broker2:9092 ")
	want := []string{"broker1:9092", "broker2:9092"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCloseKafka_Nil(t *testing.T) {
	closeKafka(nil, log.WithField("test", "kafka"))
}

func TestInitOrderEventConsumer_DisabledWithoutBrokers(t *testing.T) {
	consumer, dlq := initOrderEventConsumer("", nil, log.WithField("test", "kafka"))
	if consumer != nil || dlq != nil {
		t.Fatal("expected no consumer without brokers")
	}
	stopOrderEvents(consumer, dlq, log.WithField("test", "kafka"))
}

func TestInitOrderEventConsumer_UnreachableBrokers(t *testing.T) {
	consumer, dlq := initOrderEventConsumer("127.0.0.1:1", nil, log.WithField("test", "kafka"))
	if consumer != nil || dlq != nil {
		t.Fatal("expected service to continue without consumer on unreachable broker")
	}
}
