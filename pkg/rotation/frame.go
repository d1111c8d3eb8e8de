package rotation

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Frame timestamp utilities
//
// Full frames are persisted as per-position rows keyed by a time-of-day string HH:MM:SS.mmm
// (milliseconds since local midnight). Rows are indexed in a ZSET with score 0, so Redis orders
// them lexicographically:
//   - Key: rota:{date}[:sandbox:{instance}]:frames
//   - Member: {timestamp}|{position_id}
//
// Hours are never wrapped at 24, so a timestamp bumped past the end of the day still sorts after
// every earlier timestamp of the same date key.

// frameMemberSep separates timestamp and position id in index members. Position ids never contain it.
const frameMemberSep = "|"

// MillisOfDay returns the milliseconds elapsed since midnight in t's location.
func MillisOfDay(t time.Time) int64 {
	h, m, s := t.Clock()
	return int64(h)*3600000 + int64(m)*60000 + int64(s)*1000 + int64(t.Nanosecond()/int(time.Millisecond))
}

// FormatFrameTimestamp renders milliseconds since midnight as HH:MM:SS.mmm.
func FormatFrameTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := (ms / 60000) % 60
	s := (ms / 1000) % 60
	milli := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, milli)
}

// ParseFrameTimestamp parses HH:MM:SS.mmm (hours may exceed 23) back to milliseconds.
func ParseFrameTimestamp(ts string) (int64, error) {
	var h, m, s, milli int64
	if _, err := fmt.Sscanf(ts, "%d:%d:%d.%d", &h, &m, &s, &milli); err != nil {
		return 0, fmt.Errorf("invalid frame timestamp %q: %w", ts, err)
	}
	if h < 0 || m < 0 || m > 59 || s < 0 || s > 59 || milli < 0 || milli > 999 {
		return 0, fmt.Errorf("invalid frame timestamp %q: field out of range", ts)
	}
	return h*3600000 + m*60000 + s*1000 + milli, nil
}

// NextFrameTimestamp returns the timestamp for a new frame written at now. The result always sorts
// strictly after prevMax: when the clock has not advanced past it, one millisecond is added to it.
// An empty or unparsable prevMax is ignored.
func NextFrameTimestamp(now time.Time, prevMax string) string {
	current := MillisOfDay(now)
	if prevMax == "" {
		return FormatFrameTimestamp(current)
	}
	prev, err := ParseFrameTimestamp(prevMax)
	if err != nil {
		return FormatFrameTimestamp(current)
	}
	if candidate := FormatFrameTimestamp(current); current > prev && candidate > prevMax {
		return candidate
	}
	return FormatFrameTimestamp(prev + 1)
}

// LatestBoard picks, per position, the row with the lexicographically greatest timestamp.
// Input order does not matter. Equal timestamps are broken by the greater frame id.
func LatestBoard(rows []FrameRow) map[string]FrameRow {
	latest := make(map[string]FrameRow)
	for _, row := range rows {
		current, ok := latest[row.PositionID]
		if !ok || row.Timestamp > current.Timestamp ||
			(row.Timestamp == current.Timestamp && row.FrameID > current.FrameID) {
			latest[row.PositionID] = row
		}
	}
	return latest
}

// BoardAssignment converts a latest-row board into an Assignment.
func BoardAssignment(board map[string]FrameRow) Assignment {
	a := make(Assignment, len(board))
	for pos, row := range board {
		a[pos] = row.PersonnelID
	}
	return a
}

// FrameRows expands an assignment into the rows of one frame, sorted by position id.
func FrameRows(a Assignment, timestamp, frameID string, tick int) []FrameRow {
	positions := a.Positions()
	rows := make([]FrameRow, 0, len(positions))
	for _, pos := range positions {
		rows = append(rows, FrameRow{
			Timestamp:   timestamp,
			PositionID:  pos,
			PersonnelID: a[pos],
			FrameID:     frameID,
			Tick:        tick,
		})
	}
	return rows
}

func frameMember(row FrameRow) string {
	return row.Timestamp + frameMemberSep + row.PositionID
}

func timestampOfMember(member string) string {
	ts, _, _ := strings.Cut(member, frameMemberSep)
	return ts
}

func sortFrameRows(rows []FrameRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Timestamp != rows[j].Timestamp {
			return rows[i].Timestamp < rows[j].Timestamp
		}
		return rows[i].PositionID < rows[j].PositionID
	})
}
