package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/hyperjump/coursegraph/internal/models"
)

const dayOrder = "MTWRFSU"

var dayNames = map[string]byte{
	"monday": 'M', "mon": 'M',
	"tuesday": 'T', "tue": 'T', "tues": 'T',
	"wednesday": 'W', "wed": 'W',
	"thursday": 'R', "thu": 'R', "thur": 'R', "thurs": 'R',
	"friday": 'F', "fri": 'F',
	"saturday": 'S', "sat": 'S',
	"sunday": 'U', "sun": 'U',
}

var timeRangePattern = regexp.MustCompile(
	`^(\d{1,2})(?::(\d{2}))?\s*([ap]\.?m\.?)?\s*(?:-|–|to)\s*(\d{1,2})(?::(\d{2}))?\s*([ap]\.?m\.?)?$`)

// ParseMeeting parses a meeting string made of a day cluster followed by a clock
// range: "MWF 10:40 AM - 11:30 AM", "TR 1:55-3:50pm", "M,W,F 13:00-14:15",
// "Tu/Th 9:35 to 10:25". Anything else is returned with Unparseable set and the
// trimmed input kept in Raw.
//
// A single-digit hour from 1 to 6 with no am/pm marker anywhere in the range is
// read as afternoon, and a single-digit end hour that would then fall before the
// start is moved to the evening ("6:15-9:10" is 18:15-21:10). Two-digit hours
// without a marker are taken as 24-hour time, which is the canonical output form,
// so ParseMeeting(m.String()) == m.
func ParseMeeting(raw string) models.MeetingTime {
	s := CollapseSpace(raw)
	unparseable := models.MeetingTime{Days: []string{}, Unparseable: true, Raw: s}

	idx := strings.IndexFunc(s, unicode.IsDigit)
	if idx <= 0 {
		return unparseable
	}
	days, ok := parseDays(s[:idx])
	if !ok {
		return unparseable
	}
	start, end, ok := parseTimeRange(strings.ToLower(strings.TrimSpace(s[idx:])))
	if !ok {
		return unparseable
	}
	return models.MeetingTime{Days: days, Start: start, End: end}
}

func parseDays(part string) ([]string, bool) {
	words := strings.FieldsFunc(part, func(r rune) bool { return !unicode.IsLetter(r) })
	if len(words) == 0 {
		return nil, false
	}
	var present [len(dayOrder)]bool
	mark := func(code byte) {
		present[strings.IndexByte(dayOrder, code)] = true
	}
	for _, w := range words {
		if code, ok := dayNames[strings.ToLower(w)]; ok {
			mark(code)
			continue
		}
		if !parseDayCluster(w, mark) {
			return nil, false
		}
	}
	var days []string
	for i, ok := range present {
		if ok {
			days = append(days, string(dayOrder[i]))
		}
	}
	return days, true
}

// parseDayCluster reads letter clusters such as "MWF", "TTh", "TuTh" or "SaSu".
// "Tu" and "Su" are digraphs only with a lower-case u, so the canonical "TU"
// (Tuesday and Sunday) is read back as two days.
func parseDayCluster(w string, mark func(byte)) bool {
	for i := 0; i < len(w); i++ {
		c := w[i]
		var next byte
		if i+1 < len(w) {
			next = w[i+1]
		}
		switch unicode.ToLower(rune(c)) {
		case 'm':
			mark('M')
		case 't':
			switch next {
			case 'h', 'H':
				mark('R')
				i++
			case 'u':
				mark('T')
				i++
			default:
				mark('T')
			}
		case 'w':
			mark('W')
		case 'r':
			mark('R')
		case 'f':
			mark('F')
		case 's':
			switch next {
			case 'a', 'A':
				mark('S')
				i++
			case 'u':
				mark('U')
				i++
			default:
				mark('S')
			}
		case 'u':
			mark('U')
		default:
			return false
		}
	}
	return true
}

func parseTimeRange(s string) (start, end string, ok bool) {
	m := timeRangePattern.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	startMer, endMer := meridiem(m[3]), meridiem(m[6])
	noMarker := startMer == 0 && endMer == 0

	sh, sm, ok1 := clock(m[1], m[2])
	eh, em, ok2 := clock(m[4], m[5])
	if !ok1 || !ok2 {
		return "", "", false
	}

	switch {
	case noMarker:
		sh = afternoonGuess(m[1], sh)
		eh = afternoonGuess(m[4], eh)
		if sh*60+sm >= eh*60+em && len(m[4]) == 1 && eh < 12 {
			// Evening ranges such as "6:15-9:10" end in the evening too.
			eh += 12
		}
	default:
		if endMer == 0 {
			endMer = startMer
		}
		eh, ok2 = to24(eh, endMer)
		if startMer == 0 {
			// The start inherits the end marker unless that puts it after the end.
			guess, okGuess := to24(sh, endMer)
			if okGuess && guess*60+sm <= eh*60+em {
				sh, ok1 = guess, true
			} else {
				sh, ok1 = to24(sh, opposite(endMer))
			}
		} else {
			sh, ok1 = to24(sh, startMer)
		}
		if !ok1 || !ok2 {
			return "", "", false
		}
	}

	if sh > 23 || eh > 23 || sh*60+sm >= eh*60+em {
		return "", "", false
	}
	return fmt.Sprintf("%02d:%02d", sh, sm), fmt.Sprintf("%02d:%02d", eh, em), true
}

func clock(hour, minute string) (int, int, bool) {
	h, err := strconv.Atoi(hour)
	if err != nil {
		return 0, 0, false
	}
	mm := 0
	if minute != "" {
		if mm, err = strconv.Atoi(minute); err != nil || mm > 59 {
			return 0, 0, false
		}
	}
	return h, mm, true
}

func meridiem(s string) byte {
	if s == "" {
		return 0
	}
	return s[0]
}

func opposite(mer byte) byte {
	if mer == 'p' {
		return 'a'
	}
	return 'p'
}

func to24(h int, mer byte) (int, bool) {
	if h < 1 || h > 12 {
		return 0, false
	}
	switch {
	case mer == 'p' && h < 12:
		return h + 12, true
	case mer == 'a' && h == 12:
		return 0, true
	}
	return h, true
}

func afternoonGuess(raw string, h int) int {
	if len(raw) == 1 && h >= 1 && h <= 6 {
		return h + 12
	}
	return h
}
