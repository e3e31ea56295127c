package journal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"
)

// ErrNoRecords is returned when no journal record matches a query.
var ErrNoRecords = errors.New("no journal records found")

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	Session   string
	Service   string
	EventName string
	// Since excludes records stamped before it.
	Since time.Time
	// Limit keeps only the newest Limit records.
	Limit int
}

func (f Filter) match(r Record) bool {
	if f.Session != "" && r.Session != partitionValue(f.Session) {
		return false
	}
	if f.Service != "" && r.Service != partitionValue(f.Service) {
		return false
	}
	if f.EventName != "" && r.EventName != f.EventName {
		return false
	}
	if !f.Since.IsZero() && r.Time().Before(f.Since) {
		return false
	}
	return true
}

// Query reads matching records from ds, ordered by timestamp then sequence.
// Returns ErrNoRecords if nothing matches.
func Query(ctx context.Context, ds lode.Dataset, f Filter) ([]Record, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	var out []Record
	for _, snap := range snapshots {
		// Manifest paths are a coarse pre-filter; record fields decide.
		if !snapshotMatchesFilter(snap, "session", f.Session) {
			continue
		}
		if !snapshotMatchesFilter(snap, "service", f.Service) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}
		for _, item := range data {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			r := recordFromMap(m)
			if f.match(r) {
				out = append(out, r)
			}
		}
	}

	if len(out) == 0 {
		return nil, ErrNoRecords
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].Time(), out[j].Time()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].Seq < out[j].Seq
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

// snapshotMatchesFilter reports whether any file in the snapshot sits under
// the key=value partition. An empty value matches.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	if snap.Manifest == nil {
		return false
	}
	// Lode path-escapes partition values when it writes them.
	value = url.PathEscape(partitionValue(value))
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue matches whole path segments so that
// session=a does not match session=ab.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
