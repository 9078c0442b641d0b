package rsrpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/metadata"
)

func TestIsUrgentFalseByDefault(t *testing.T) {
	assert.False(t, IsUrgent(context.Background()))
}

func TestWithUrgentRoundTripsThroughIncomingContext(t *testing.T) {
	ctx := WithUrgent(context.Background())
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata to be set")
	}

	// Simulate what the transport does: outgoing metadata on the client
	// side arrives as incoming metadata on the server side.
	incoming := metadata.NewIncomingContext(context.Background(), md)
	assert.True(t, IsUrgent(incoming))
}
