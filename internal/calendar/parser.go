package calendar

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	sepLine  = regexp.MustCompile(`^-{3,}\s*$`)
	skipLine = regexp.MustCompile(`^-\s*(\d{4}-\d{2}-\d{2})\s*:\s*(.*)$`)
	commaSep = regexp.MustCompile(`\s*,\s*`)
)

var dayNames = map[string]time.Weekday{
	"Mon": time.Monday,
	"Tue": time.Tuesday,
	"Wed": time.Wednesday,
	"Thu": time.Thursday,
	"Fri": time.Friday,
	"Sat": time.Saturday,
	"Sun": time.Sunday,
}

// Parse reads a calendar file: a header with Start, End, Weekdays and Skip
// lines, followed by dash-separated blocks holding one activity per day.
func Parse(src string) (*Calendar, error) {
	sections := splitSections(src)
	if len(sections) < 2 {
		return nil, fmt.Errorf("calendar: no day blocks found")
	}

	start, end, weekdays, skip, err := parseHead(sections[0])
	if err != nil {
		return nil, err
	}

	blocks := make([]string, 0, len(sections)-1)
	for _, section := range sections[1:] {
		blocks = append(blocks, tidyBlock(section))
	}
	return New(start, end, blocks, weekdays, skip), nil
}

func splitSections(src string) []string {
	var sections []string
	var current []string
	for _, line := range strings.Split(src, "\n") {
		if sepLine.MatchString(line) {
			sections = append(sections, strings.Join(current, "\n"))
			current = nil
			continue
		}
		current = append(current, line)
	}
	sections = append(sections, strings.Join(current, "\n"))

	var out []string
	for i, section := range sections {
		if i > 0 && strings.TrimSpace(section) == "" {
			continue
		}
		out = append(out, section)
	}
	return out
}

func tidyBlock(section string) string {
	lines := strings.Split(strings.TrimSpace(section), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

func parseHead(head string) (start, end time.Time, weekdays []time.Weekday, skip map[string]string, err error) {
	s := &headScanner{lines: strings.Split(head, "\n")}
	skip = map[string]string{}

	value, err := s.expect("Start")
	if err != nil {
		return start, end, nil, nil, err
	}
	if start, err = parseDate(value); err != nil {
		return start, end, nil, nil, err
	}

	if value, err = s.expect("End"); err != nil {
		return start, end, nil, nil, err
	}
	if end, err = parseDate(value); err != nil {
		return start, end, nil, nil, err
	}

	if value, err = s.expect("Weekdays"); err != nil {
		return start, end, nil, nil, err
	}
	for _, name := range commaSep.Split(value, -1) {
		day, ok := dayNames[name]
		if !ok {
			return start, end, nil, nil, fmt.Errorf("calendar: unknown weekday %q", name)
		}
		weekdays = append(weekdays, day)
	}

	if _, err = s.expect("Skip"); err != nil {
		return start, end, nil, nil, err
	}
	for {
		line, ok := s.next()
		if !ok {
			break
		}
		m := skipLine.FindStringSubmatch(line)
		if m == nil {
			return start, end, nil, nil, fmt.Errorf("calendar: bad skip entry %q", line)
		}
		skip[m[1]] = strings.TrimSpace(m[2])
	}
	return start, end, weekdays, skip, nil
}

type headScanner struct {
	lines []string
	pos   int
}

func (s *headScanner) next() (string, bool) {
	for s.pos < len(s.lines) {
		line := strings.TrimSpace(s.lines[s.pos])
		s.pos++
		if line != "" {
			return line, true
		}
	}
	return "", false
}

func (s *headScanner) expect(label string) (string, error) {
	line, ok := s.next()
	if !ok {
		return "", fmt.Errorf("calendar: missing %s header", label)
	}
	if !strings.HasPrefix(line, label+":") {
		return "", fmt.Errorf("calendar: expected %s header, got %q", label, line)
	}
	return strings.TrimSpace(strings.TrimPrefix(line, label+":")), nil
}

func parseDate(value string) (time.Time, error) {
	date, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: bad date %q", value)
	}
	return date, nil
}
