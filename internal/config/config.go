package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"loanpipe/internal/book"
)

// Persistence backends for a record store.
const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

// Store configures a record store process.
type Store struct {
	NodeID     string
	ListenAddr string
	// PeerAddr is the store every update is mirrored to. Empty disables
	// mirroring.
	PeerAddr      string
	MirrorTimeout time.Duration
	Backend       string
	DataPath      string
	// SeedPath is loaded when the persisted record set is empty.
	SeedPath string
}

// Validate reports every problem with c.
func (c *Store) Validate() error {
	var result *multierror.Error
	if c.NodeID == "" {
		result = multierror.Append(result, fmt.Errorf("node id cannot be empty"))
	}
	if c.ListenAddr == "" {
		result = multierror.Append(result, fmt.Errorf("listen address cannot be empty"))
	}
	if c.PeerAddr != "" && c.PeerAddr == c.ListenAddr {
		result = multierror.Append(result, fmt.Errorf("peer address %s is the store's own address", c.PeerAddr))
	}
	if c.MirrorTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("mirror timeout cannot be negative"))
	}
	switch c.Backend {
	case BackendFile, BackendBolt:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown backend %q (expected %s or %s)", c.Backend, BackendFile, BackendBolt))
	}
	if c.DataPath == "" {
		result = multierror.Append(result, fmt.Errorf("data path cannot be empty"))
	}
	return result.ErrorOrNil()
}

// Dispatcher configures the load dispatcher.
type Dispatcher struct {
	ListenAddr   string
	ReplyTimeout time.Duration
	// Buffer is the per-subscriber request queue length.
	Buffer int
}

// Validate reports every problem with c.
func (c *Dispatcher) Validate() error {
	var result *multierror.Error
	if c.ListenAddr == "" {
		result = multierror.Append(result, fmt.Errorf("listen address cannot be empty"))
	}
	if c.ReplyTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("reply timeout must be positive"))
	}
	if c.Buffer <= 0 {
		result = multierror.Append(result, fmt.Errorf("buffer must be positive"))
	}
	return result.ErrorOrNil()
}

// Worker configures an actor worker and its failover client.
type Worker struct {
	Name           string
	DispatcherAddr string
	PrimaryAddr    string
	SecondaryAddr  string
	Topics         []book.Kind
	StoreTimeout   time.Duration
	ResyncInterval time.Duration
}

// Validate reports every problem with c.
func (c *Worker) Validate() error {
	var result *multierror.Error
	if c.Name == "" {
		result = multierror.Append(result, fmt.Errorf("worker name cannot be empty"))
	}
	if c.DispatcherAddr == "" {
		result = multierror.Append(result, fmt.Errorf("dispatcher address cannot be empty"))
	}
	if c.PrimaryAddr == "" || c.SecondaryAddr == "" {
		result = multierror.Append(result, fmt.Errorf("primary and secondary store addresses are required"))
	} else if c.PrimaryAddr == c.SecondaryAddr {
		result = multierror.Append(result, fmt.Errorf("primary and secondary must be different stores"))
	}
	if len(c.Topics) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one topic is required"))
	}
	if c.StoreTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("store timeout must be positive"))
	}
	if c.ResyncInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("resync interval must be positive"))
	}
	return result.ErrorOrNil()
}

// Submit configures a request source run.
type Submit struct {
	DispatcherAddr string
	RequestsPath   string
	// OutputPath, when set, receives one line per result.
	OutputPath string
	Pause      time.Duration
}

// Validate reports every problem with c.
func (c *Submit) Validate() error {
	var result *multierror.Error
	if c.DispatcherAddr == "" {
		result = multierror.Append(result, fmt.Errorf("dispatcher address cannot be empty"))
	}
	if c.RequestsPath == "" {
		result = multierror.Append(result, fmt.Errorf("requests file is required"))
	}
	if c.Pause < 0 {
		result = multierror.Append(result, fmt.Errorf("pause cannot be negative"))
	}
	return result.ErrorOrNil()
}

// ParseKinds parses a comma-separated list of request kinds, such as
// "RENEW,RETURN", into topics. Duplicates are dropped.
func ParseKinds(kindsStr string) ([]book.Kind, error) {
	if strings.TrimSpace(kindsStr) == "" {
		return []book.Kind{}, nil
	}

	parts := strings.Split(kindsStr, ",")
	kinds := make([]book.Kind, 0, len(parts))
	seen := make(map[book.Kind]bool, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kind, err := book.ParseKind(part)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}

	return kinds, nil
}
