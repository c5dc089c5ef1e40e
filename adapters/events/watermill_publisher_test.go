package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestWatermillPublisher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	audits, err := pubSub.Subscribe(ctx, AuditTopic)
	require.NoError(t, err)
	orphans, err := pubSub.Subscribe(ctx, ReconciliationTopic)
	require.NoError(t, err)

	pub := NewWatermillPublisher(pubSub)

	entry := core.NewAuditEntry("u1", core.ActionCertIssued, core.ResourceCertificate, "c1", core.AuditSuccess, nil)
	entry.ID = "e1"
	require.NoError(t, pub.PublishAudit(ctx, entry))

	msg := receive(t, audits)
	assert.Equal(t, "e1", msg.UUID)
	var gotEntry core.AuditEntry
	require.NoError(t, json.Unmarshal(msg.Payload, &gotEntry))
	assert.Equal(t, core.ActionCertIssued, gotEntry.Action)

	orphan := ports.OrphanedAnchor{Hash: "h", Nonce: "n", TxRef: "0x1", Stage: "artifact", Reason: "boom"}
	require.NoError(t, pub.PublishOrphanedAnchor(ctx, orphan))

	msg = receive(t, orphans)
	var gotOrphan ports.OrphanedAnchor
	require.NoError(t, json.Unmarshal(msg.Payload, &gotOrphan))
	assert.Equal(t, orphan, gotOrphan)
}
