// Package store defines the durable event log backends.
package store

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

// LogStore is an append-only ordered record log that can be truncated.
// Implementations must be safe for concurrent use.
type LogStore interface {
	// Init prepares storage. It is idempotent and never discards rows.
	Init(ctx context.Context) error
	Append(ctx context.Context, rec types.Record) error
	// Clear removes every row, leaving an empty (header-only) log.
	Clear(ctx context.Context) error
	// ReadAll returns every row, oldest first.
	ReadAll(ctx context.Context) ([]types.Record, error)
	// Export writes the log in its text form: header row, then one line
	// per record.
	Export(ctx context.Context, w io.Writer) error
}

// WriteText renders recs in the durable text format. Fields are joined
// with bare commas; the format has no quoting.
func WriteText(w io.Writer, withState bool, recs []types.Record) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(types.Header(withState), ",") + "\n"); err != nil {
		return err
	}
	for _, r := range recs {
		if _, err := bw.WriteString(r.Line(withState) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
