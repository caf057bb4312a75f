package source

import (
	"context"
	"encoding/csv"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"loanpipe/internal/api"
	"loanpipe/internal/book"
)

// DefaultPause is the delay between two submissions.
const DefaultPause = 200 * time.Millisecond

// Submitter sends one request and waits for its result. *dispatch.Client
// satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req book.Request) (api.Result, error)
}

// Options configures a Source.
type Options struct {
	// Pause is the delay between submissions. Zero means no delay.
	Pause time.Duration
	// Output, when set, receives one kind,isbn,user,status,message line
	// per result.
	Output io.Writer
	Logger *zap.Logger
}

// Summary counts the outcomes of a run.
type Summary struct {
	Submitted int
	OK        int
	Failed    int
}

// Source submits requests in order, waiting for each result before sending
// the next.
type Source struct {
	submitter Submitter
	pause     time.Duration
	out       *csv.Writer
	logger    *zap.Logger
}

// New creates a source that submits through s.
func New(s Submitter, opts Options) *Source {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	src := &Source{
		submitter: s,
		pause:     opts.Pause,
		logger:    opts.Logger.With(zap.String("service", "source")),
	}
	if opts.Output != nil {
		src.out = csv.NewWriter(opts.Output)
	}
	return src
}

// Run submits reqs. It stops at the first transport failure or when ctx is
// cancelled; error results from workers are counted and do not stop it.
func (s *Source) Run(ctx context.Context, reqs []book.Request) (Summary, error) {
	var sum Summary
	for i, req := range reqs {
		if i > 0 && s.pause > 0 {
			t := time.NewTimer(s.pause)
			select {
			case <-ctx.Done():
				t.Stop()
				return sum, ctx.Err()
			case <-t.C:
			}
		}

		s.logger.Info("Submitting request",
			zap.String("kind", string(req.Kind)),
			zap.String("isbn", req.ISBN),
			zap.String("user", req.User))

		res, err := s.submitter.Submit(ctx, req)
		if err != nil {
			return sum, errors.Wrapf(err, "request %d (%s %s)", i+1, req.Kind, req.ISBN)
		}
		sum.Submitted++
		if res.IsOK() {
			sum.OK++
		} else {
			sum.Failed++
		}

		s.logger.Info("Received result",
			zap.String("kind", string(req.Kind)),
			zap.String("isbn", req.ISBN),
			zap.String("status", res.Status),
			zap.String("message", res.Message))

		if err := s.record(req, res); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (s *Source) record(req book.Request, res api.Result) error {
	if s.out == nil {
		return nil
	}
	if err := s.out.Write([]string{string(req.Kind), req.ISBN, req.User, res.Status, res.Message}); err != nil {
		return errors.Wrap(err, "failed to write result")
	}
	s.out.Flush()
	return errors.Wrap(s.out.Error(), "failed to write result")
}
