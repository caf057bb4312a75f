package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"loanpipe/internal/book"
)

func TestParseFields(t *testing.T) {
	tests := []struct {
		name    string
		fields  []string
		want    book.Request
		wantErr bool
	}{
		{
			name:   "full line",
			fields: []string{"BORROW", "978-1", "alice"},
			want:   book.Request{Kind: book.Borrow, ISBN: "978-1", User: "alice"},
		},
		{
			name:   "lower case kind",
			fields: []string{"renew", " 978-1 ", " bob "},
			want:   book.Request{Kind: book.Renew, ISBN: "978-1", User: "bob"},
		},
		{
			name:   "legacy kind",
			fields: []string{"DEVOLUCION", "978-1", "carol"},
			want:   book.Request{Kind: book.Return, ISBN: "978-1", User: "carol"},
		},
		{
			name:   "missing user",
			fields: []string{"PRESTAMO", "978-1"},
			want:   book.Request{Kind: book.Borrow, ISBN: "978-1", User: UnknownUser},
		},
		{
			name:   "blank user",
			fields: []string{"BORROW", "978-1", ""},
			want:   book.Request{Kind: book.Borrow, ISBN: "978-1", User: UnknownUser},
		},
		{
			name:    "unknown kind",
			fields:  []string{"LEND", "978-1", "alice"},
			wantErr: true,
		},
		{
			name:    "missing isbn",
			fields:  []string{"BORROW"},
			wantErr: true,
		},
		{
			name:    "empty isbn",
			fields:  []string{"BORROW", " ", "alice"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFields(tt.fields)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRead_SkipsCommentsAndBlankLines(t *testing.T) {
	input := `# morning batch
BORROW,B1,alice

  # indented comment
RENEW,B1,alice

RETURN,B1
`
	reqs, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []book.Request{
		{Kind: book.Borrow, ISBN: "B1", User: "alice"},
		{Kind: book.Renew, ISBN: "B1", User: "alice"},
		{Kind: book.Return, ISBN: "B1", User: UnknownUser},
	}, reqs)
}

func TestRead_ReportsLine(t *testing.T) {
	input := "BORROW,B1,alice\nBORROW,B1,bob\nSTEAL,B1,eve\n"
	_, err := Read(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.txt")
	require.NoError(t, os.WriteFile(path, []byte("BORROW,B1,alice\n"), 0o644))

	reqs, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, reqs, 1)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
