package events

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fieldtour/fieldtour/internal/tour"
)

func sampleTransition() tour.Transition {
	return tour.Transition{
		Tour: &tour.Tour{
			ID:   "tour_abc",
			Name: "North loop",
			Stops: []tour.Stop{
				{SiteID: "a", Status: tour.StatusVisited},
				{SiteID: "b", Status: tour.StatusSkipped},
			},
		},
		SiteID:     "b",
		From:       tour.StatusPending,
		To:         tour.StatusSkipped,
		OccurredAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestFromTransition(t *testing.T) {
	e := FromTransition(sampleTransition())

	assert.Equal(t, TypeStopTransitioned, e.Type)
	assert.Equal(t, "tour_abc", e.TourID)
	assert.Equal(t, "b", e.SiteID)
	assert.Equal(t, "skipped", e.Status)
	assert.Equal(t, 50.0, e.Progress)
	assert.True(t, e.Completed)
	assert.Equal(t, 2, e.Total)
	assert.Equal(t, 1, e.Visited)
	assert.Equal(t, 1, e.Skipped)
	assert.Contains(t, e.ID, "evt_")
}

func TestDecode(t *testing.T) {
	e := FromTransition(sampleTransition())
	data, err := e.Encode()
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = Decode([]byte(`{"type":""}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func TestListener_PublishesTransition(t *testing.T) {
	pub := &recordingPublisher{}
	l := NewListener(pub, zerolog.Nop())

	// A cancelled request context does not drop the event.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.OnStopTransition(ctx, sampleTransition())

	require.Len(t, pub.events, 1)
	assert.Equal(t, "tour_abc", pub.events[0].TourID)
}

func TestListener_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	pub := &recordingPublisher{err: errors.New("topic gone")}
	l := NewListener(pub, zerolog.New(&buf))

	l.OnStopTransition(context.Background(), sampleTransition())

	assert.Contains(t, buf.String(), "failed to publish tour event")
	assert.Contains(t, buf.String(), "topic gone")
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := LogPublisher{Logger: zerolog.New(&buf)}

	require.NoError(t, p.Publish(context.Background(), FromTransition(sampleTransition())))
	assert.Contains(t, buf.String(), `"tour_id":"tour_abc"`)
	assert.Contains(t, buf.String(), `"status":"skipped"`)
	assert.NoError(t, p.Close())
}

func TestPubSubPublisher(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	opts := []option.ClientOption{
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}

	pub, err := NewPubSubPublisher(ctx, PubSubConfig{
		ProjectID:     "test-project",
		Topic:         "tour-events",
		Logger:        zerolog.Nop(),
		ClientOptions: opts,
	})
	require.NoError(t, err)
	defer pub.Close()

	_, err = pub.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: "projects/test-project/topics/tour-events"})
	require.NoError(t, err)

	e := FromTransition(sampleTransition())
	require.NoError(t, pub.Publish(ctx, e))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "tour_abc", msgs[0].Attributes["tour_id"])
	assert.Equal(t, TypeStopTransitioned, msgs[0].Attributes["type"])

	got, err := Decode(msgs[0].Data)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
}

func TestPubSubPublisher_MissingTopic(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	pub, err := NewPubSubPublisher(ctx, PubSubConfig{
		ProjectID: "test-project",
		Topic:     "nowhere",
		Logger:    zerolog.Nop(),
		ClientOptions: []option.ClientOption{
			option.WithEndpoint(srv.Addr),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		},
	})
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	assert.Error(t, pub.Publish(ctx, FromTransition(sampleTransition())))
}
