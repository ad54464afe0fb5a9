package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/cause_registry/internal/app/domain/cause"
	"github.com/R3E-Network/cause_registry/internal/logging"
)

type recordingPublisher struct {
	got []cause.Event
	err error
}

func (r *recordingPublisher) Publish(_ context.Context, ev cause.Event) error {
	r.got = append(r.got, ev)
	return r.err
}

func TestMultiPublishesToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingPublisher{err: boom}
	b := &recordingPublisher{}

	err := Multi{a, nil, b}.Publish(context.Background(), cause.Event{Seq: 1})
	require.ErrorIs(t, err, boom)
	require.Len(t, a.got, 1)
	require.Len(t, b.got, 1)
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(logging.NewDiscard())
	require.NoError(t, p.Publish(context.Background(), cause.Event{Seq: 3, Kind: cause.EventDonationReceived, CauseID: 1, Amount: 5}))
}

type fakeRedis struct {
	channel string
	message interface{}
	err     error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message = message
	return redis.NewIntResult(1, f.err)
}

func TestRedisPublisherSendsJSON(t *testing.T) {
	client := &fakeRedis{}
	p := NewRedisPublisher(client, "")

	ev := cause.Event{Seq: 9, Kind: cause.EventCauseAdded, CauseID: 4, Name: "wells"}
	require.NoError(t, p.Publish(context.Background(), ev))
	require.Equal(t, DefaultChannel, client.channel)

	var decoded cause.Event
	require.NoError(t, json.Unmarshal(client.message.([]byte), &decoded))
	require.Equal(t, ev.Seq, decoded.Seq)
	require.Equal(t, ev.Name, decoded.Name)
}

func TestRedisPublisherWrapsErrors(t *testing.T) {
	p := NewRedisPublisher(&fakeRedis{err: errors.New("down")}, "custom")
	err := p.Publish(context.Background(), cause.Event{Seq: 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "custom")
}

func TestHubStreamsEvents(t *testing.T) {
	hub := NewHub(logging.NewDiscard())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), cause.Event{Seq: 7, Kind: cause.EventCauseUpdated, CauseID: 2}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev cause.Event
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, uint64(7), ev.Seq)
	require.Equal(t, cause.EventCauseUpdated, ev.Kind)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}
