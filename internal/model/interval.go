package model

import (
	"slices"
	"time"
)

// Interval は半開区間 [Start, End) です
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration は区間の長さを返します
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Empty は長さ0以下の区間かどうかを返します
func (i Interval) Empty() bool {
	return !i.Start.Before(i.End)
}

// Overlaps は2つの区間が重なるかを返します
// 端点が接するだけの区間は重ならないものとして扱います
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Clip は区間を window の範囲に切り詰めます
func (i Interval) Clip(window Interval) Interval {
	out := i
	if out.Start.Before(window.Start) {
		out.Start = window.Start
	}
	if out.End.After(window.End) {
		out.End = window.End
	}
	return out
}

// FreeIntervals は window から busy を除いた空き区間を昇順で返します
// busy は順不同・重複ありでも構いません
func FreeIntervals(window Interval, busy []Interval) []Interval {
	if window.Empty() {
		return nil
	}

	clipped := make([]Interval, 0, len(busy))
	for _, b := range busy {
		c := b.Clip(window)
		if !c.Empty() {
			clipped = append(clipped, c)
		}
	}
	slices.SortFunc(clipped, func(a, b Interval) int {
		return a.Start.Compare(b.Start)
	})

	free := make([]Interval, 0, len(clipped)+1)
	cursor := window.Start
	for _, b := range clipped {
		if b.Start.After(cursor) {
			free = append(free, Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(window.End) {
		free = append(free, Interval{Start: cursor, End: window.End})
	}
	return free
}
