package node

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"loanpipe/internal/api"
)

// ReplicaConn is a connection handle to one record store.
type ReplicaConn struct {
	addr   string
	conn   *grpc.ClientConn
	client api.RecordStoreClient
}

// Dial creates a handle to the store at addr. Connecting is lazy: the first
// exchange establishes the transport, so Dial succeeds for a store that is
// down and only a later exchange proves it is reachable.
func Dial(addr string) (*ReplicaConn, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}
	return &ReplicaConn{
		addr:   addr,
		conn:   conn,
		client: api.NewRecordStoreClient(conn),
	}, nil
}

// Addr returns the store address.
func (c *ReplicaConn) Addr() string {
	return c.addr
}

// Exchange sends one request and waits for its reply or for ctx to expire.
// A returned error means no reply was received; an application failure is a
// Result with status ERROR.
func (c *ReplicaConn) Exchange(ctx context.Context, req api.StoreRequest) (api.Result, error) {
	in, err := api.ToStruct(req)
	if err != nil {
		return api.Result{}, err
	}
	out, err := c.client.Exchange(ctx, in)
	if err != nil {
		return api.Result{}, err
	}
	var res api.Result
	if err := api.FromStruct(out, &res); err != nil {
		return api.Result{}, err
	}
	return res, nil
}

// Close tears down the connection.
func (c *ReplicaConn) Close() error {
	return c.conn.Close()
}
