package calendar

import (
	"strings"
	"testing"
	"time"
)

const courseFile = `Start: 2026-03-01
End: 2026-03-20
Weekdays: Mon, Fri
Skip:
- 2026-03-09: Carnival break

---------------------
Course presentation

Install the toolchain
---------------------
Variables and types
---------------------
Functions
---------------------
Slices and maps
---------------------
`

func mustParse(t *testing.T, src string) *Calendar {
	t.Helper()
	cal, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return cal
}

func date(t *testing.T, iso string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", iso)
	if err != nil {
		t.Fatalf("bad date %q: %v", iso, err)
	}
	return d
}

func TestParseNormalizesStart(t *testing.T) {
	cal := mustParse(t, courseFile)

	// 2026-03-01 is a Sunday; the first teaching day is the Monday after.
	if got, want := isoDate(cal.Start), "2026-03-02"; got != want {
		t.Fatalf("Start = %s, want %s", got, want)
	}
	if len(cal.Blocks) != 4 {
		t.Fatalf("Blocks = %d, want 4", len(cal.Blocks))
	}
	if cal.Blocks[0] != "Course presentation\n\nInstall the toolchain" {
		t.Fatalf("first block = %q", cal.Blocks[0])
	}
}

func TestNextDateWrapsWeek(t *testing.T) {
	cal := mustParse(t, courseFile)

	if got := cal.NextDate(date(t, "2026-03-02")); isoDate(got) != "2026-03-06" {
		t.Fatalf("NextDate(Mon) = %s, want 2026-03-06", isoDate(got))
	}
	if got := cal.NextDate(date(t, "2026-03-06")); isoDate(got) != "2026-03-09" {
		t.Fatalf("NextDate(Fri) = %s, want 2026-03-09", isoDate(got))
	}
}

func TestSingleWeekdayAdvancesOneWeek(t *testing.T) {
	cal := New(date(t, "2026-03-04"), date(t, "2026-04-01"), []string{"a", "b"}, []time.Weekday{time.Wednesday}, nil)

	if got := cal.NextDate(cal.Start); isoDate(got) != "2026-03-11" {
		t.Fatalf("NextDate = %s, want 2026-03-11", isoDate(got))
	}
}

func TestEntriesDeferActivityOnSkipDates(t *testing.T) {
	cal := mustParse(t, courseFile)
	entries := cal.Entries()

	if len(entries) != 5 {
		t.Fatalf("Entries = %d, want 5", len(entries))
	}
	wantDates := []string{"2026-03-02", "2026-03-06", "2026-03-09", "2026-03-13", "2026-03-16"}
	wantWeeks := []int{1, 0, 2, 0, 3}
	for i, e := range entries {
		if isoDate(e.Date) != wantDates[i] {
			t.Fatalf("entry %d date = %s, want %s", i, isoDate(e.Date), wantDates[i])
		}
		if e.Week != wantWeeks[i] {
			t.Fatalf("entry %d week = %d, want %d", i, e.Week, wantWeeks[i])
		}
	}
	if !entries[2].Skipped || entries[2].Text != "Carnival break" {
		t.Fatalf("entry 2 = %+v, want the skip reason", entries[2])
	}
	if entries[3].Text != "Functions" {
		t.Fatalf("entry 3 = %q, want the deferred activity", entries[3].Text)
	}
}

func TestDescribeAccountsForSkips(t *testing.T) {
	got := mustParse(t, courseFile).Describe()

	for _, want := range []string{
		"Start date: 2026-03-02",
		"Expected End: 2026-03-20",
		"Real End: 2026-03-16",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("Describe() = %q, missing %q", got, want)
		}
	}
}

func TestRenderGridTable(t *testing.T) {
	got := mustParse(t, courseFile).Render()
	lines := strings.Split(got, "\n")

	if lines[1] != "| Week   | Day   | Activity              |" {
		t.Fatalf("header = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "+========+=======+") {
		t.Fatalf("rule = %q", lines[2])
	}
	for _, want := range []string{
		"|    1   | 02/03 | Course presentation   |",
		"|        |       | Install the toolchain |",
		"|    2   | 09/03 | Carnival break        |",
		"|        | 13/03 | Functions             |",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("rendered table missing %q in:\n%s", want, got)
		}
	}
	if !strings.HasSuffix(got, "+--------+-------+-----------------------+") {
		t.Fatalf("table does not close with a full rule:\n%s", got)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"no blocks", "Start: 2026-03-02\nEnd: 2026-03-20\nWeekdays: Mon\nSkip:\n", "no day blocks"},
		{"missing end", "Start: 2026-03-02\nWeekdays: Mon\nSkip:\n---\nx\n", "expected End"},
		{"bad date", "Start: yesterday\nEnd: 2026-03-20\nWeekdays: Mon\nSkip:\n---\nx\n", "bad date"},
		{"unknown weekday", "Start: 2026-03-02\nEnd: 2026-03-20\nWeekdays: Monday\nSkip:\n---\nx\n", "unknown weekday"},
		{"bad skip entry", "Start: 2026-03-02\nEnd: 2026-03-20\nWeekdays: Mon\nSkip:\n- whenever: party\n---\nx\n", "bad skip entry"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.src)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Parse error = %v, want %q", err, tc.want)
			}
		})
	}
}
