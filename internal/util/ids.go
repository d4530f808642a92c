package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	bulletinPattern = regexp.MustCompile(`(?i)Bolet[ií]n\s*N[°º]?\s*(\d+)`)
	periodPattern   = regexp.MustCompile(`(\d{4})\s*[-–]\s*[A-Za-z]*\s*(\d{4})`)
	numberPattern   = regexp.MustCompile(`(\d+)`)
)

// ParseBulletinID extracts the numeric bulletin id from free text such as
// "Proyecto de ley, Boletín N° 12345-07". The chamber suffix is dropped.
func ParseBulletinID(input string) (string, bool) {
	m := bulletinPattern.FindStringSubmatch(input)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

type ParsedPeriod struct {
	Start int
	End   int
}

func (p ParsedPeriod) String() string {
	return strconv.Itoa(p.Start) + "-" + strconv.Itoa(p.End)
}

// ParsePeriod reads "2018-2022" and the trajectory variant "2018 - marzo 2022".
func ParsePeriod(input string) (ParsedPeriod, bool) {
	m := periodPattern.FindStringSubmatch(input)
	if len(m) < 3 {
		return ParsedPeriod{}, false
	}
	start, err := strconv.Atoi(m[1])
	if err != nil {
		return ParsedPeriod{}, false
	}
	end, err := strconv.Atoi(m[2])
	if err != nil {
		return ParsedPeriod{}, false
	}
	return ParsedPeriod{Start: start, End: end}, true
}

// FirstNumber returns the first run of digits, e.g. the district in "Distrito N° 12".
func FirstNumber(input string) (int, bool) {
	m := numberPattern.FindString(strings.TrimSpace(input))
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseNumber parses table cells that hold numbers, accepting a decimal comma.
func ParseNumber(input string) (float64, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(input, " ", ""))
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
