package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"loanpipe/internal/book"
)

func TestParseKinds(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []book.Kind
		wantErr bool
	}{
		{
			name:  "empty string",
			input: "",
			want:  []book.Kind{},
		},
		{
			name:  "single kind",
			input: "BORROW",
			want:  []book.Kind{book.Borrow},
		},
		{
			name:  "multiple kinds",
			input: "RENEW,RETURN",
			want:  []book.Kind{book.Renew, book.Return},
		},
		{
			name:  "with spaces and case",
			input: " renew , Return ",
			want:  []book.Kind{book.Renew, book.Return},
		},
		{
			name:  "legacy names",
			input: "PRESTAMO,DEVOLUCION",
			want:  []book.Kind{book.Borrow, book.Return},
		},
		{
			name:  "duplicates dropped",
			input: "BORROW,borrow,PRESTAMO",
			want:  []book.Kind{book.Borrow},
		},
		{
			name:    "unknown kind",
			input:   "BORROW,LEND",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKinds(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func validStore() Store {
	return Store{
		NodeID:        "ga1",
		ListenAddr:    "127.0.0.1:7001",
		PeerAddr:      "127.0.0.1:7002",
		MirrorTimeout: 2 * time.Second,
		Backend:       BackendFile,
		DataPath:      "books.json",
	}
}

func TestStore_Validate(t *testing.T) {
	c := validStore()
	assert.NoError(t, c.Validate())

	c.PeerAddr = ""
	assert.NoError(t, c.Validate(), "mirroring is optional")

	c = validStore()
	c.PeerAddr = c.ListenAddr
	assert.Error(t, c.Validate())

	c = validStore()
	c.Backend = "sqlite"
	c.NodeID = ""
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node id")
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestDispatcher_Validate(t *testing.T) {
	c := Dispatcher{ListenAddr: ":7000", ReplyTimeout: 10 * time.Second, Buffer: 16}
	assert.NoError(t, c.Validate())

	c.ReplyTimeout = 0
	assert.Error(t, c.Validate())
}

func TestWorker_Validate(t *testing.T) {
	valid := Worker{
		Name:           "borrow-1",
		DispatcherAddr: "127.0.0.1:7000",
		PrimaryAddr:    "127.0.0.1:7001",
		SecondaryAddr:  "127.0.0.1:7002",
		Topics:         []book.Kind{book.Borrow},
		StoreTimeout:   2 * time.Second,
		ResyncInterval: 20 * time.Second,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Worker)
	}{
		{"no topics", func(c *Worker) { c.Topics = nil }},
		{"same stores", func(c *Worker) { c.SecondaryAddr = c.PrimaryAddr }},
		{"no secondary", func(c *Worker) { c.SecondaryAddr = "" }},
		{"no timeout", func(c *Worker) { c.StoreTimeout = 0 }},
		{"no interval", func(c *Worker) { c.ResyncInterval = 0 }},
		{"no dispatcher", func(c *Worker) { c.DispatcherAddr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSubmit_Validate(t *testing.T) {
	c := Submit{DispatcherAddr: "127.0.0.1:7000", RequestsPath: "requests.txt"}
	assert.NoError(t, c.Validate())

	c.RequestsPath = ""
	assert.Error(t, c.Validate())
}
