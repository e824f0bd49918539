package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// SecurityProvider supplies transport credentials for the health endpoint.
type SecurityProvider interface {
	// GetServerCredentials returns credentials for server connections
	GetServerCredentials(ctx context.Context) (grpc.ServerOption, error)

	// Close cleans up any resources
	Close() error
}
