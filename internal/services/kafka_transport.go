package services

import (
	"crypto/tls"
	"crypto/x509"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// newKafkaTransport создает транспорт для Kafka с поддержкой SASL/PLAIN
// и TLS (для managed-брокеров вроде Aiven). Без учетных данных и
// сертификата возвращает nil — writer использует транспорт по умолчанию
func newKafkaTransport(username, password, caCert string) *kafka.Transport {
	if username == "" && password == "" && caCert == "" {
		return nil
	}

	transport := &kafka.Transport{
		DialTimeout: 10 * time.Second,
	}

	if username != "" && password != "" {
		transport.SASL = plain.Mechanism{
			Username: username,
			Password: password,
		}
		log.Printf("🔐 Kafka: SASL/PLAIN аутентификация включена (username: %s)", username)
	}

	tlsConfig := &tls.Config{}
	if caCert != "" {
		caCertPool := x509.NewCertPool()
		if ok := caCertPool.AppendCertsFromPEM([]byte(caCert)); ok {
			tlsConfig.RootCAs = caCertPool
			log.Printf("🔒 Kafka: TLS с CA сертификатом включен")
		} else {
			log.Printf("⚠️ Kafka: не удалось распарсить CA сертификат, используем системные сертификаты")
		}
	}
	// SASL у managed-брокеров работает только поверх TLS
	if transport.SASL != nil || caCert != "" {
		transport.TLS = tlsConfig
	}

	return transport
}

// parseKafkaBrokers разбирает строку брокеров через запятую
func parseKafkaBrokers(brokers string) []string {
	parts := strings.Split(strings.ReplaceAll(brokers, " ", ""), ",")
	var result []string
	for _, broker := range parts {
		if broker != "" {
			result = append(result, broker)
		}
	}
	return result
}
