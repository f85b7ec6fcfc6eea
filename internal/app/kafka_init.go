package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
)

// initKafkaProducer создаёт producer, если brokers не пустой.
// Пустой список возвращает nil, nil.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	list := splitBrokers(brokers)
	if len(list) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(list)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", list).Info("kafka producer initialized")
	return producer, nil
}

// catalogConsumerGroup: consumer group catalog-service для уведомлений о заказах.
const catalogConsumerGroup = "shop-catalog"

// initOrderEventConsumer подписывает handler на TopicOrderNotifications.
// Сообщения, не обработанные за три попытки, уходят в DLQ. Ошибки подключения
// не останавливают сервис: он продолжает работать без подписки.
func initOrderEventConsumer(brokers string, handler kafka.MessageHandler, logger *log.Entry) (*kafka.Consumer, *kafka.Producer) {
	list := splitBrokers(brokers)
	if len(list) == 0 {
		return nil, nil
	}

	dlq, err := initKafkaProducer(brokers, logger)
	if err != nil {
		dlq = nil
	}
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:    list,
		GroupID:    catalogConsumerGroup,
		Topics:     []string{kafka.TopicOrderNotifications},
		MaxRetries: 3,
	}, handler, dlq)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka consumer, continuing without order events")
		closeKafka(dlq, logger)
		return nil, nil
	}
	return consumer, dlq
}

func stopOrderEvents(consumer *kafka.Consumer, dlq *kafka.Producer, logger *log.Entry) {
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop order event consumer")
		}
	}
	closeKafka(dlq, logger)
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
