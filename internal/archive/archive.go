// Package archive exports the audit event log as zstd-compressed JSON lines.
package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/repo"
)

const defaultBatch = 500

type Exporter struct {
	Repo  repo.Repo
	Batch int
}

// Export streams every event matching f to w and returns how many were written
// and the id of the last one, which callers can pass back as AfterID.
func (x Exporter) Export(ctx context.Context, w io.Writer, f repo.EventFilter) (int, int64, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return 0, f.AfterID, err
	}
	bw := bufio.NewWriter(enc)
	batch := x.Batch
	if batch <= 0 {
		batch = defaultBatch
	}
	f.Limit = batch
	var (
		count int
		last  = f.AfterID
	)
	for {
		evs, err := x.Repo.ListEvents(ctx, x.Repo.DB, f)
		if err != nil {
			enc.Close()
			return count, last, fmt.Errorf("list events: %w", err)
		}
		for _, ev := range evs {
			b, err := json.Marshal(ev)
			if err != nil {
				enc.Close()
				return count, last, err
			}
			if _, err := bw.Write(b); err != nil {
				enc.Close()
				return count, last, err
			}
			if err := bw.WriteByte('\n'); err != nil {
				enc.Close()
				return count, last, err
			}
			count++
			last = ev.ID
		}
		if len(evs) < batch {
			break
		}
		f.AfterID = last
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return count, last, err
	}
	return count, last, enc.Close()
}

// Read decodes an archive produced by Export.
func Read(r io.Reader) ([]domain.Event, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var out []domain.Event
	for sc.Scan() {
		var ev domain.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return out, fmt.Errorf("decode event %d: %w", len(out)+1, err)
		}
		out = append(out, ev)
	}
	return out, sc.Err()
}
