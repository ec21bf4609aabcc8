//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"flightproxy/internal/lookuplog"
	"flightproxy/internal/lookuplog/store/kafka"
	"flightproxy/pkg/testutil/containers"
)

type KafkaSinkSuite struct {
	suite.Suite
	broker string
	client *kgo.Client
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	s.broker = containers.GetManager().GetRedpanda(s.T()).Broker
}

func (s *KafkaSinkSuite) TearDownTest() {
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
}

func (s *KafkaSinkSuite) TestEntriesArriveKeyedByFlight() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "lookups-" + uuid.NewString()[:8]

	client, err := kafka.NewClient([]string{s.broker}, topic)
	s.Require().NoError(err)
	s.client = client
	s.Require().NoError(kafka.EnsureTopic(ctx, client, topic, 1))
	s.Require().NoError(kafka.EnsureTopic(ctx, client, topic, 1), "existing topic is fine")

	id := uuid.New()
	sink := kafka.New(client, topic)
	s.Require().NoError(sink.Append(ctx, []lookuplog.Entry{
		{ID: id, Requested: "br805", Normalized: "BR805", Outcome: "found", Status: 200, At: time.Now()},
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal("BR805", string(records[0].Key))

	var got lookuplog.Entry
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(id, got.ID)
}
