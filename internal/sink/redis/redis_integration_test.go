//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/rollcall/internal/model"
	"github.com/crimson-sun/rollcall/internal/testutil/containers"
)

func TestWriteAppendsToSessionStream(t *testing.T) {
	ctx := context.Background()
	url, reader := containers.NewRedis(t)

	client, err := Dial(ctx, url)
	require.NoError(t, err)
	s := New(client)
	defer s.Close()

	ts := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Write(ctx, model.Event{
		ID: "r1", Type: model.EventJoin, Identity: "name:alice", EventID: "ev-7", Timestamp: ts,
	}))
	require.NoError(t, s.Write(ctx, model.Event{
		ID: "r2", Type: model.EventLeave, Identity: "name:alice", EventID: "ev-7", Timestamp: ts.Add(time.Minute),
	}))

	msgs, err := reader.XRange(ctx, Stream("ev-7"), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "join", msgs[0].Values["type"])
	assert.Equal(t, "name:alice", msgs[0].Values["attendee_id"])
	assert.Equal(t, "2026-02-28T12:00:00.000Z", msgs[0].Values["timestamp"])
	assert.Equal(t, "leave", msgs[1].Values["type"])
}
