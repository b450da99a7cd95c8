// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pedometer

import "time"

// DateLayout is the calendar key of a daily record.
const DateLayout = "2006-01-02"

// DateKey formats t as a record date in t's location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// NewRecord returns an empty record for date.
func NewRecord(date string, now time.Time) DailyStepRecord {
	return DailyStepRecord{Date: date, LastUpdate: now}
}

// ResolveStartup picks the record to run with. A stored record for today is
// resumed; anything else, including no record at all, starts today at zero.
// The stored record itself is never modified.
func ResolveStartup(stored *DailyStepRecord, now time.Time) (rec DailyStepRecord, resumed bool) {
	today := DateKey(now)
	if stored != nil && stored.Date == today {
		return *stored, true
	}
	return NewRecord(today, now), false
}

// rolloverGuard makes sure each date transition is handled once.
type rolloverGuard struct {
	lastDate string
}

// due reports whether now falls on a later day than the current record
// and that day has not been rolled over to yet. Dates compare as strings.
// A clock that steps backwards (NTP, RTC resync) never reopens a day.
func (g *rolloverGuard) due(recordDate string, now time.Time) (string, bool) {
	today := DateKey(now)
	if today <= recordDate || today <= g.lastDate {
		return today, false
	}
	return today, true
}

func (g *rolloverGuard) mark(date string) {
	g.lastDate = date
}
