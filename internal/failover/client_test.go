package failover

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"loanpipe/internal/api"
	"loanpipe/internal/book"
)

var errNoReply = errors.New("no reply")

// fakeStore simulates one record store that can be taken down, slowed or
// told to reject particular updates.
type fakeStore struct {
	mu       sync.Mutex
	up       bool
	delay    time.Duration
	reject   func(api.StoreRequest) bool
	fail     error
	records  map[string]*book.Record
	received []api.StoreRequest

	inflight   int32
	overlapped int32
}

func newFakeStore(up bool) *fakeStore {
	return &fakeStore{up: up, records: map[string]*book.Record{}}
}

func (f *fakeStore) setUp(up bool) {
	f.mu.Lock()
	f.up = up
	f.mu.Unlock()
}

func (f *fakeStore) seed(rec *book.Record) {
	f.mu.Lock()
	f.records[rec.ISBN] = rec.Clone()
	f.mu.Unlock()
}

func (f *fakeStore) record(isbn string) *book.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[isbn].Clone()
}

func (f *fakeStore) updates() []api.StoreRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []api.StoreRequest
	for _, r := range f.received {
		if r.IsWrite() {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeStore) exchange(ctx context.Context, req api.StoreRequest) (api.Result, error) {
	if atomic.AddInt32(&f.inflight, 1) > 1 {
		atomic.StoreInt32(&f.overlapped, 1)
	}
	defer atomic.AddInt32(&f.inflight, -1)

	f.mu.Lock()
	up, delay := f.up, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return api.Result{}, ctx.Err()
		}
	}
	if !up {
		return api.Result{}, errNoReply
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, req)
	if f.fail != nil {
		return api.Result{}, f.fail
	}

	switch req.Type {
	case api.TypeGetRecord:
		rec, ok := f.records[req.ISBN]
		if !ok {
			return api.Error("book not found: " + req.ISBN), nil
		}
		return api.OK("record found", rec.Clone()), nil
	case api.TypeUpdateRecord:
		if f.reject != nil && f.reject(req) {
			return api.Error("rejected"), nil
		}
		f.records[req.Record.ISBN] = req.Record.Clone()
		return api.OK("record updated", nil), nil
	}
	return api.Error("unknown type: " + req.Type), nil
}

type fakeReplica struct {
	store  *fakeStore
	closed int32
}

func (r *fakeReplica) Exchange(ctx context.Context, req api.StoreRequest) (api.Result, error) {
	if atomic.LoadInt32(&r.closed) == 1 {
		return api.Result{}, errors.New("use of closed handle")
	}
	return r.store.exchange(ctx, req)
}

func (r *fakeReplica) Close() error {
	atomic.StoreInt32(&r.closed, 1)
	return nil
}

// fakeNetwork maps addresses to stores and counts dials.
type fakeNetwork struct {
	mu     sync.Mutex
	stores map[string]*fakeStore
	dials  map[string]int
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{stores: map[string]*fakeStore{}, dials: map[string]int{}}
}

func (n *fakeNetwork) add(addr string, s *fakeStore) {
	n.mu.Lock()
	n.stores[addr] = s
	n.mu.Unlock()
}

func (n *fakeNetwork) dial(addr string) (Replica, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dials[addr]++
	s, ok := n.stores[addr]
	if !ok {
		return nil, errors.New("unknown address " + addr)
	}
	return &fakeReplica{store: s}, nil
}

func (n *fakeNetwork) dialCount(addr string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dials[addr]
}

type fixture struct {
	net       *fakeNetwork
	primary   *fakeStore
	secondary *fakeStore
	client    *Client
}

func newFixture(t *testing.T, primaryUp, secondaryUp bool) *fixture {
	t.Helper()
	f := &fixture{
		net:       newFakeNetwork(),
		primary:   newFakeStore(primaryUp),
		secondary: newFakeStore(secondaryUp),
	}
	f.net.add("primary:1", f.primary)
	f.net.add("secondary:1", f.secondary)

	seed := book.NewRecord("B1", "Rayuela", 1)
	f.primary.seed(seed)
	f.secondary.seed(seed)

	f.client = New(Options{
		PrimaryAddr:   "primary:1",
		SecondaryAddr: "secondary:1",
		Timeout:       100 * time.Millisecond,
		Dialer:        f.net.dial,
		Logger:        zaptest.NewLogger(t),
	})
	t.Cleanup(func() { f.client.Close() })
	return f
}

func borrowed(isbn, user string) *book.Record {
	rec := book.NewRecord(isbn, "t", 1)
	_ = rec.Borrow(user, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	return rec
}

func TestExecute_PrimaryAnswers(t *testing.T) {
	f := newFixture(t, true, true)

	res := f.client.Execute(context.Background(), api.GetRecord("B1"))
	require.True(t, res.IsOK())
	assert.Equal(t, "B1", res.Record.ISBN)
	assert.Empty(t, f.secondary.received, "secondary must not be contacted")
}

func TestExecute_PrimaryApplicationErrorIsFinal(t *testing.T) {
	f := newFixture(t, true, true)

	res := f.client.Execute(context.Background(), api.GetRecord("missing"))
	assert.False(t, res.IsOK())
	assert.Contains(t, res.Message, "not found")
	assert.Empty(t, f.secondary.received, "an answer from the primary must not trigger fallback")
}

func TestExecute_PrimaryStatusErrorIsFinal(t *testing.T) {
	f := newFixture(t, true, true)
	f.primary.fail = status.Error(codes.InvalidArgument, "malformed store request")

	res := f.client.Execute(context.Background(), api.UpdateRecord(borrowed("B1", "alice")))
	assert.Equal(t, api.Error("malformed store request"), res)
	assert.Len(t, f.primary.received, 1)
	assert.Empty(t, f.secondary.received, "a status sent by the primary must not trigger fallback")
	assert.Equal(t, 1, f.net.dialCount("primary:1"), "the primary handle must be kept")
	assert.Equal(t, 0, f.client.PendingLen())
}

func TestExecute_PrimaryUnavailableStatusFallsBack(t *testing.T) {
	f := newFixture(t, true, true)
	f.primary.fail = status.Error(codes.Unavailable, "connection refused")

	res := f.client.Execute(context.Background(), api.GetRecord("B1"))
	require.True(t, res.IsOK(), res.Message)
	assert.Len(t, f.secondary.received, 1)
	assert.Equal(t, 2, f.net.dialCount("primary:1"))
}

func TestExecute_PrimaryWriteIsNotQueued(t *testing.T) {
	f := newFixture(t, true, true)

	res := f.client.Execute(context.Background(), api.UpdateRecord(borrowed("B1", "alice")))
	require.True(t, res.IsOK())
	assert.Equal(t, 0, f.client.PendingLen())
}

func TestExecute_ReadFallsBackWithoutQueueing(t *testing.T) {
	f := newFixture(t, false, true)

	res := f.client.Execute(context.Background(), api.GetRecord("B1"))
	require.True(t, res.IsOK())
	assert.Equal(t, 0, f.client.PendingLen())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.client.metrics.secondaryServed))
}

func TestExecute_WriteOnSecondaryIsQueued(t *testing.T) {
	f := newFixture(t, false, true)

	update := api.UpdateRecord(borrowed("B1", "carol"))
	res := f.client.Execute(context.Background(), update)
	require.True(t, res.IsOK())

	require.Equal(t, 1, f.client.PendingLen())
	assert.Equal(t, []api.StoreRequest{update}, f.client.Pending())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.client.metrics.pending))
	assert.True(t, f.secondary.record("B1").HasBorrowed("carol"))
	assert.False(t, f.primary.record("B1").HasBorrowed("carol"))
}

func TestExecute_WriteRejectedBySecondaryIsNotQueued(t *testing.T) {
	f := newFixture(t, false, true)
	f.secondary.reject = func(api.StoreRequest) bool { return true }

	res := f.client.Execute(context.Background(), api.UpdateRecord(borrowed("B1", "carol")))
	assert.False(t, res.IsOK())
	assert.Equal(t, 0, f.client.PendingLen())
}

func TestExecute_BothDown(t *testing.T) {
	f := newFixture(t, false, false)

	res := f.client.Execute(context.Background(), api.UpdateRecord(borrowed("B1", "dave")))
	assert.False(t, res.IsOK())
	assert.Equal(t, UnavailableMessage, res.Message)
	assert.Equal(t, 0, f.client.PendingLen(), "nothing was written, nothing to replay")
	assert.Equal(t, float64(1), testutil.ToFloat64(f.client.metrics.unavailable))
}

func TestExecute_PrimaryTimeoutRecreatesHandle(t *testing.T) {
	f := newFixture(t, true, true)
	f.primary.delay = time.Second
	require.Equal(t, 1, f.net.dialCount("primary:1"))

	start := time.Now()
	res := f.client.Execute(context.Background(), api.GetRecord("B1"))
	require.True(t, res.IsOK(), "secondary should answer after primary timeout")
	assert.Less(t, time.Since(start), 900*time.Millisecond, "primary wait must be bounded by the timeout")
	assert.Equal(t, 2, f.net.dialCount("primary:1"), "timed-out primary handle must be replaced")
}

func TestExecute_AbsentPrimaryIsRedialed(t *testing.T) {
	net := newFakeNetwork()
	secondary := newFakeStore(true)
	secondary.seed(book.NewRecord("B1", "t", 1))
	net.add("secondary:1", secondary)

	c := New(Options{
		PrimaryAddr:   "primary:1",
		SecondaryAddr: "secondary:1",
		Timeout:       100 * time.Millisecond,
		Dialer:        net.dial,
		Logger:        zaptest.NewLogger(t),
	})
	defer c.Close()

	res := c.Execute(context.Background(), api.GetRecord("B1"))
	require.True(t, res.IsOK())
	assert.Equal(t, 2, net.dialCount("primary:1"))

	// Primary comes up: the next call goes to it.
	primary := newFakeStore(true)
	primary.seed(book.NewRecord("B1", "from-primary", 1))
	net.add("primary:1", primary)
	c.Execute(context.Background(), api.GetRecord("B1")) // redials
	res = c.Execute(context.Background(), api.GetRecord("B1"))
	require.True(t, res.IsOK())
	assert.Equal(t, "from-primary", res.Record.Title)
}

func TestResync_PrimaryDownLeavesQueue(t *testing.T) {
	f := newFixture(t, false, true)
	f.client.Execute(context.Background(), api.UpdateRecord(borrowed("B1", "carol")))

	report := f.client.Resync(context.Background())
	assert.False(t, report.PrimaryLive)
	assert.Equal(t, 0, report.Replayed)
	assert.Equal(t, 1, f.client.PendingLen())
}

func TestResync_DrainsQueuedWrite(t *testing.T) {
	f := newFixture(t, false, true)
	f.client.Execute(context.Background(), api.UpdateRecord(borrowed("B1", "carol")))
	require.Equal(t, 1, f.client.PendingLen())

	f.primary.setUp(true)
	report := f.client.Resync(context.Background())

	assert.True(t, report.PrimaryLive)
	assert.Equal(t, 1, report.Replayed)
	assert.Equal(t, 0, report.Remaining)
	assert.Equal(t, 0, f.client.PendingLen())
	assert.Equal(t, f.secondary.record("B1"), f.primary.record("B1"))
	assert.Len(t, f.primary.updates(), 1, "exactly the queued entry is replayed")
}

func TestResync_StopsAtFirstRejection(t *testing.T) {
	f := newFixture(t, false, true)

	u1 := api.UpdateRecord(borrowed("U1", "a"))
	u2 := api.UpdateRecord(borrowed("U2", "b"))
	u3 := api.UpdateRecord(borrowed("U3", "c"))
	for _, u := range []api.StoreRequest{u1, u2, u3} {
		require.True(t, f.client.Execute(context.Background(), u).IsOK())
	}
	require.Equal(t, 3, f.client.PendingLen())

	f.primary.reject = func(req api.StoreRequest) bool { return req.Record.ISBN == "U2" }
	f.primary.setUp(true)

	report := f.client.Resync(context.Background())
	assert.Equal(t, 1, report.Replayed)
	assert.Equal(t, []api.StoreRequest{u2, u3}, f.client.Pending())

	updates := f.primary.updates()
	require.Len(t, updates, 2, "U1 applied, U2 attempted, U3 never sent")
	assert.Equal(t, "U1", updates[0].Record.ISBN)
	assert.Equal(t, "U2", updates[1].Record.ISBN)

	// The blocked head is retried on the next pass and unblocks the rest.
	f.primary.reject = nil
	report = f.client.Resync(context.Background())
	assert.Equal(t, 2, report.Replayed)
	assert.Equal(t, 0, f.client.PendingLen())
}

func TestResync_SameISBNReplayedInOrder(t *testing.T) {
	f := newFixture(t, false, true)

	first := borrowed("B1", "alice")
	second := first.Clone()
	require.NoError(t, second.Return("alice"))
	f.client.Execute(context.Background(), api.UpdateRecord(first))
	f.client.Execute(context.Background(), api.UpdateRecord(second))

	f.primary.setUp(true)
	f.client.Resync(context.Background())

	assert.Equal(t, second, f.primary.record("B1"), "last queued write wins")
}

func TestResync_ProbeUsesSentinel(t *testing.T) {
	f := newFixture(t, true, true)
	f.client.Resync(context.Background())

	f.primary.mu.Lock()
	defer f.primary.mu.Unlock()
	require.Len(t, f.primary.received, 1)
	assert.Equal(t, api.GetRecord(api.PingISBN), f.primary.received[0])
}

func TestClient_SerializesExchanges(t *testing.T) {
	f := newFixture(t, true, true)
	f.primary.delay = 5 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.client.Execute(context.Background(), api.GetRecord("B1"))
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.client.Resync(context.Background())
	}()
	wg.Wait()

	assert.Equal(t, int32(0), atomic.LoadInt32(&f.primary.overlapped), "exchanges on one handle must never overlap")
}
