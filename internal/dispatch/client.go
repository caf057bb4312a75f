package dispatch

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"loanpipe/internal/api"
	"loanpipe/internal/book"
)

// Client talks to a dispatcher. Requesters use Submit; workers use
// Subscribe and Reply.
type Client struct {
	addr   string
	conn   *grpc.ClientConn
	client api.DispatcherClient
}

// Dial creates a client for the dispatcher at addr. Connecting is lazy.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create dispatcher client for %s", addr)
	}
	return &Client{
		addr:   addr,
		conn:   conn,
		client: api.NewDispatcherClient(conn),
	}, nil
}

// Addr returns the dispatcher address.
func (c *Client) Addr() string {
	return c.addr
}

// Submit sends req and blocks until the dispatcher returns the worker's
// result.
func (c *Client) Submit(ctx context.Context, req book.Request) (api.Result, error) {
	in, err := api.ToStruct(req)
	if err != nil {
		return api.Result{}, err
	}
	out, err := c.client.Submit(ctx, in, grpc.WaitForReady(true))
	if err != nil {
		return api.Result{}, errors.Wrap(err, "submit")
	}
	var res api.Result
	if err := api.FromStruct(out, &res); err != nil {
		return api.Result{}, err
	}
	return res, nil
}

// Reply sends a worker result.
func (c *Client) Reply(ctx context.Context, res api.Result) error {
	in, err := api.ToStruct(res)
	if err != nil {
		return err
	}
	if _, err := c.client.Reply(ctx, in); err != nil {
		return errors.Wrap(err, "reply")
	}
	return nil
}

// Subscription is an open request stream.
type Subscription struct {
	stream api.DispatcherSubscribeClient
}

// Subscribe opens a request stream for topics. The stream ends when ctx is
// cancelled or the dispatcher goes away.
func (c *Client) Subscribe(ctx context.Context, topics []book.Kind) (*Subscription, error) {
	in, err := api.ToStruct(api.Subscription{Topics: topics})
	if err != nil {
		return nil, err
	}
	stream, err := c.client.Subscribe(ctx, in)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe")
	}
	return &Subscription{stream: stream}, nil
}

// Recv blocks for the next request.
func (s *Subscription) Recv() (book.Request, error) {
	out, err := s.stream.Recv()
	if err != nil {
		return book.Request{}, err
	}
	var req book.Request
	if err := api.FromStruct(out, &req); err != nil {
		return book.Request{}, err
	}
	return req, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
