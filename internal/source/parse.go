package source

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"loanpipe/internal/book"
)

// UnknownUser is the user recorded for a line without one.
const UnknownUser = "UNKNOWN"

// ParseFields builds a request from the fields of one line.
func ParseFields(fields []string) (book.Request, error) {
	if len(fields) < 2 {
		return book.Request{}, errors.Errorf("expected KIND,isbn[,user], got %d field(s)", len(fields))
	}
	kind, err := book.ParseKind(fields[0])
	if err != nil {
		return book.Request{}, err
	}
	isbn := strings.TrimSpace(fields[1])
	if isbn == "" {
		return book.Request{}, errors.New("isbn cannot be empty")
	}
	user := UnknownUser
	if len(fields) > 2 {
		if u := strings.TrimSpace(fields[2]); u != "" {
			user = u
		}
	}
	return book.Request{Kind: kind, ISBN: isbn, User: user}, nil
}

// Read parses every request in r. The first malformed line aborts the read
// with an error naming its line number.
func Read(r io.Reader) ([]book.Request, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var reqs []book.Request
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			return reqs, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read requests")
		}
		first := strings.TrimSpace(fields[0])
		if (len(fields) == 1 && first == "") || strings.HasPrefix(first, "#") {
			continue
		}
		req, err := ParseFields(fields)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, errors.Wrapf(err, "line %d", line)
		}
		reqs = append(reqs, req)
	}
}

// ReadFile parses the request file at path.
func ReadFile(path string) ([]book.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open request file %s", path)
	}
	defer f.Close()

	reqs, err := Read(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return reqs, nil
}
