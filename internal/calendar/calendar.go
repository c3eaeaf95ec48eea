// Package calendar parses course calendar files and expands their day
// blocks over the teaching weekdays, skipping announced holidays.
package calendar

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Entry is one expanded calendar day.
type Entry struct {
	Date time.Time
	// Week numbers the teaching week starting at 1; 0 rows carry no label.
	Week    int
	Text    string
	Skipped bool
}

// Calendar is a parsed course calendar. Blocks hold one activity per
// teaching day; Skip maps ISO dates to the reason classes are off.
type Calendar struct {
	Start    time.Time
	End      time.Time
	Blocks   []string
	Weekdays []time.Weekday
	Skip     map[string]string

	width   int
	maxDay  time.Weekday
	weekMap map[time.Weekday]int
}

// New builds a calendar, normalizing the weekday set and advancing Start to
// the first teaching day. An empty weekday set means Monday through Friday.
func New(start, end time.Time, blocks []string, weekdays []time.Weekday, skip map[string]string) *Calendar {
	if len(weekdays) == 0 {
		weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	}
	days := sortWeekdays(weekdays)
	for !containsWeekday(days, start.Weekday()) {
		start = start.AddDate(0, 0, 1)
	}
	if skip == nil {
		skip = map[string]string{}
	}

	c := &Calendar{
		Start:    start,
		End:      end,
		Blocks:   blocks,
		Weekdays: days,
		Skip:     skip,
		maxDay:   days[len(days)-1],
		weekMap:  map[time.Weekday]int{},
	}
	for i, day := range days {
		next := days[(i+1)%len(days)]
		gap := (mondayIndex(next) - mondayIndex(day) + 7) % 7
		if gap == 0 {
			gap = 7
		}
		c.weekMap[day] = gap
	}

	c.width = 10
	for _, block := range blocks {
		for _, line := range strings.Split(block, "\n") {
			if n := utf8.RuneCountInString(line); n > c.width {
				c.width = n
			}
		}
	}
	for _, reason := range skip {
		if n := utf8.RuneCountInString(reason); n > c.width {
			c.width = n
		}
	}
	return c
}

// NextDate returns the teaching day following date.
func (c *Calendar) NextDate(date time.Time) time.Time {
	return date.AddDate(0, 0, c.weekMap[date.Weekday()])
}

// Entries expands the day blocks over teaching days. A skipped date shows
// its reason and pushes the pending activity to the next teaching day.
func (c *Calendar) Entries() []Entry {
	var out []Entry
	date := c.Start
	startDay := date.Weekday()
	queue := append([]string(nil), c.Blocks...)

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		week := 0
		if date.Weekday() == startDay {
			week = int(date.Sub(c.Start).Hours())/24/7 + 1
		}
		if reason, off := c.Skip[isoDate(date)]; off {
			queue = append([]string{item}, queue...)
			out = append(out, Entry{Date: date, Week: week, Text: reason, Skipped: true})
		} else {
			out = append(out, Entry{Date: date, Week: week, Text: item})
		}
		date = c.NextDate(date)
	}
	return out
}

// Describe summarizes the calendar's real span once skips are accounted for.
func (c *Calendar) Describe() string {
	date := c.Start
	n := len(c.Blocks) - 1
	for n > 0 {
		if _, off := c.Skip[isoDate(date)]; !off {
			n--
		}
		date = c.NextDate(date)
	}
	return strings.Join([]string{
		"Start date: " + isoDate(c.Start),
		"Expected End: " + isoDate(c.End),
		"Real End: " + isoDate(date),
	}, "\n")
}

// Render draws the calendar as a reStructuredText grid table.
func (c *Calendar) Render() string {
	tail := strings.Repeat("-", c.width+2) + "+"
	full := "+--------+-------+" + tail
	inner := "|        +-------+" + tail

	lines := []string{
		full,
		fmt.Sprintf("| Week   | Day   | Activity%s |", strings.Repeat(" ", c.width-8)),
		strings.ReplaceAll(full, "-", "="),
	}
	entries := c.Entries()
	for _, e := range entries {
		lines = append(lines, c.itemLines(e)...)
		if e.Date.Weekday() == c.maxDay {
			lines = append(lines, full)
		} else {
			lines = append(lines, inner)
		}
	}
	if len(entries) > 0 {
		lines[len(lines)-1] = full
	}
	return strings.Join(lines, "\n")
}

func (c *Calendar) itemLines(e Entry) []string {
	week := "   "
	if e.Week > 0 {
		week = fmt.Sprintf("%3d", e.Week)
	}
	parts := strings.Split(e.Text, "\n")
	out := []string{fmt.Sprintf("|  %s   | %02d/%02d | %-*s|",
		week, e.Date.Day(), int(e.Date.Month()), c.width+1, parts[0])}
	for _, rest := range parts[1:] {
		out = append(out, fmt.Sprintf("|        |       | %-*s|", c.width+1, rest))
	}
	return out
}

func isoDate(d time.Time) string {
	return d.Format("2006-01-02")
}

func mondayIndex(w time.Weekday) int {
	return (int(w) + 6) % 7
}

func sortWeekdays(days []time.Weekday) []time.Weekday {
	seen := map[time.Weekday]bool{}
	var out []time.Weekday
	for _, day := range days {
		if !seen[day] {
			seen[day] = true
			out = append(out, day)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && mondayIndex(out[j]) < mondayIndex(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func containsWeekday(days []time.Weekday, want time.Weekday) bool {
	for _, day := range days {
		if day == want {
			return true
		}
	}
	return false
}
