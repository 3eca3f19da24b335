package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/notify"
)

func TestRedisChannelNaming(t *testing.T) {
	r := notify.Redis{}
	require.Equal(t, "fixer:notify:alice", r.Channel("alice"))
	r.Prefix = "game:"
	require.Equal(t, "game:bob", r.Channel("bob"))
}

func TestRedisPublishUnreachable(t *testing.T) {
	r := notify.NewRedis("127.0.0.1:1", "", 0)
	defer r.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := r.Publish(ctx, domain.Notification{ActorID: "alice", Kind: "contract.accepted"})
	require.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	var p notify.Publisher = notify.Nop{}
	require.NoError(t, p.Publish(context.Background(), domain.Notification{}))
}
