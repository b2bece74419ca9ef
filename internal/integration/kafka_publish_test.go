//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/parcel-valuation-service/internal/adapter/kafka"
	"github.com/couchcryptid/parcel-valuation-service/internal/config"
	"github.com/couchcryptid/parcel-valuation-service/internal/domain"
	"github.com/couchcryptid/parcel-valuation-service/internal/observability"
	"github.com/couchcryptid/parcel-valuation-service/internal/valuation"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twpayne/go-geom"
)

const testTopic = "test-valuation-records"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestSessionPublishesCommittedResolution runs a real session against a Kafka
// broker and reads the published record back.
func TestSessionPublishesCommittedResolution(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	parcel := domain.ParcelCandidate{
		ID: "00-43-43-27-05-005-0010",
		Geometry: geom.NewPolygonFlat(geom.XY, []float64{
			-80.06, 26.71, -80.05, 26.71, -80.05, 26.72, -80.06, 26.72, -80.06, 26.71,
		}, []int{10}),
		Properties: map[string]any{"estimated_value": "425000", "confidence": "92%"},
	}
	candidates := staticFetcher{parcel}

	svc := valuation.NewService(nil, candidates, nil, 5*time.Second, discardLogger(), observability.NewMetricsForTesting())
	session := valuation.NewSession(svc, writer)

	res, committed := session.Resolve(ctx, domain.GeoPoint{Lat: 26.7153, Lon: -80.0534}, "10 SE 3rd Street")
	require.True(t, committed)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read published resolution")

	assert.Equal(t, res.ID, string(msg.Key))

	var got valuation.Resolution
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, res.Record, got.Record)
	assert.Equal(t, "425000", got.Record.EstimatedPrice)
	assert.Equal(t, "10 SE 3rd Street", got.Record.Address)

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "true", headers["matched"])
}

type staticFetcher []domain.ParcelCandidate

func (s staticFetcher) FetchCandidates(context.Context, domain.GeoPoint) ([]domain.ParcelCandidate, error) {
	return s, nil
}
