package rsrpc

import (
	context "context"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// urgentMetadataKey is the gRPC metadata key carrying the URGENT header
// on recovery traffic. A recovery operation sets it so the transport can
// bypass normal request throttling.
const urgentMetadataKey = "x-recovery-urgent"

// WithUrgent marks ctx's outbound RPC as urgent.
func WithUrgent(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, urgentMetadataKey, "true")
}

// IsUrgent reports whether the incoming RPC carried the URGENT header.
func IsUrgent(ctx context.Context) bool {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return false
	}
	vals := md.Get(urgentMetadataKey)
	return len(vals) > 0 && vals[0] == "true"
}

// ThrottleInterceptor rate-limits every non-urgent unary RPC through
// limiter, letting urgent recovery traffic bypass it entirely so a
// failover never queues behind routine load.
func ThrottleInterceptor(limiter *rate.Limiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !IsUrgent(ctx) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return handler(ctx, req)
	}
}
