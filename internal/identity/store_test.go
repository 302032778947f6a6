package identity

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/campovivo/platform/internal/shared/types"
)

// idRows is a canned pgx.Rows over a single id column. The embedded nil
// interface covers the methods the scan loop never touches.
type idRows struct {
	pgx.Rows
	ids    []types.ID
	pos    int
	rowErr error
	closed bool
}

func (r *idRows) Next() bool {
	if r.pos >= len(r.ids) {
		return false
	}
	r.pos++
	return true
}

func (r *idRows) Scan(dest ...any) error {
	*dest[0].(*types.ID) = r.ids[r.pos-1]
	return nil
}

func (r *idRows) Err() error { return r.rowErr }

func (r *idRows) Close() { r.closed = true }

func TestScanSessionIDs(t *testing.T) {
	want := []types.ID{types.NewID(), types.NewID()}
	rows := &idRows{ids: want}

	ids, err := scanSessionIDs(rows)
	if err != nil {
		t.Fatalf("scanSessionIDs: %v", err)
	}
	if len(ids) != len(want) || ids[0] != want[0] || ids[1] != want[1] {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if !rows.closed {
		t.Error("rows not closed")
	}
}

func TestScanSessionIDsSurfacesIterationError(t *testing.T) {
	// The iteration error shows up after Next returns false; a loop that
	// skips Err() would report the rows read so far as the complete set.
	rowErr := errors.New("connection reset")
	rows := &idRows{ids: []types.ID{types.NewID()}, rowErr: rowErr}

	if _, err := scanSessionIDs(rows); !errors.Is(err, rowErr) {
		t.Fatalf("err = %v, want %v", err, rowErr)
	}
	if !rows.closed {
		t.Error("rows not closed after error")
	}
}
