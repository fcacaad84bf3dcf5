package services

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Типы событий аудита сборки
const (
	EventScanAccepted  = "scan_accepted"
	EventMarkingAdded  = "marking_added"
	EventFinalized     = "finalized"
	EventLabelPrinted  = "label_printed"
	EventSupplyCreated = "supply_created"
	EventSupplyClosed  = "supply_closed"
)

// AssemblyEvent — событие аудита, публикуемое в Kafka
type AssemblyEvent struct {
	Type        string      `json:"type"`
	Marketplace string      `json:"marketplace"`
	OrderID     string      `json:"order_id,omitempty"`
	ShipmentID  string      `json:"shipment_id,omitempty"`
	SupplyID    string      `json:"supply_id,omitempty"`
	Payload     interface{} `json:"payload,omitempty"`
	At          time.Time   `json:"at"`
}

// EventPublisher публикует события сборки в Kafka для внешнего аудита.
// Отправка асинхронная и необязательная: недоступность брокера не должна
// останавливать конвейер сканирования
type EventPublisher struct {
	writer *kafka.Writer
}

// NewEventPublisher создает публикатор событий. Если brokers пуст,
// возвращается nil — вызывающие проверяют на nil
func NewEventPublisher(kafkaBrokers, username, password, caCert string) *EventPublisher {
	brokers := parseKafkaBrokers(kafkaBrokers)
	if len(brokers) == 0 {
		return nil
	}
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    "assembly-events",
		Balancer: &kafka.LeastBytes{},
		Async:    true, // Аудит не должен тормозить сканирование
	}
	if transport := newKafkaTransport(username, password, caCert); transport != nil {
		writer.Transport = transport
	}
	log.Printf("✅ Kafka producer подключен к %s (топик assembly-events)", kafkaBrokers)
	return &EventPublisher{writer: writer}
}

// Publish отправляет событие. Ошибки логируются и не возвращаются:
// аудит — best effort
func (p *EventPublisher) Publish(event AssemblyEvent) {
	if p == nil || p.writer == nil {
		return
	}
	event.At = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("⚠️ Kafka: ошибка сериализации события %s: %v", event.Type, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(event.Type),
			Value: data,
		})
		if err != nil {
			errStr := err.Error()
			// Топик создастся автоматически при первой отправке
			if !strings.Contains(errStr, "Unknown Topic Or Partition") &&
				!strings.Contains(errStr, "context canceled") {
				log.Printf("⚠️ Kafka: ошибка отправки события %s: %v", event.Type, err)
			}
		}
	}()
}

// Close закрывает Kafka writer
func (p *EventPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
