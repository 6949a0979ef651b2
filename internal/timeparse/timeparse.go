// Package timeparse extracts gag durations from free-form chat text.
//
// Three notations are recognised:
//
//	compact:  "10с", "5м", "2ч", "5m", "2h"
//	words:    "10 сек", "5 минут", "3 минуты", "1 час", "4 часа"
//	absolute: "до 9:05", "до 21:30"
//
// Compact units accept Latin fallbacks for minutes and hours only; seconds
// are written with the Cyrillic "с".
package timeparse

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTime marks a duration that resolved to zero or less, or one too
// large to schedule.
var ErrInvalidTime = errors.New("invalid time")

// maxSeconds keeps seconds*time.Second inside time.Duration.
const maxSeconds = int(math.MaxInt64 / int64(time.Second))

var (
	// The trailing group stands in for \b, which RE2 only applies to ASCII.
	compactRe = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])(\d+)\s*([смчmh])(?:[^\p{L}\p{N}_]|$)`)
	wordsRe   = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])(\d+)\s*(сек|мин|час)\p{L}*`)
	untilRe   = regexp.MustCompile(`(?:^|[^\p{L}])(?:до|until)\s+(\d{1,2}):(\d{2})(?:[^\p{N}]|$)`)
)

var unitSeconds = map[string]int{
	"с": 1,
	"м": 60, "m": 60,
	"ч": 3600, "h": 3600,
	"сек": 1,
	"мин": 60,
	"час": 3600,
}

// Duration returns the number of seconds named by the first compact or
// spelled-out duration in text. Compact notation is tried first.
func Duration(text string) (int, bool) {
	lower := strings.ToLower(text)
	for _, re := range []*regexp.Regexp{compactRe, wordsRe} {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		unit := unitSeconds[m[2]]
		n, err := strconv.Atoi(m[1])
		if err != nil || n > maxSeconds/unit {
			// too large to represent; reported as a non-positive duration
			return 0, true
		}
		return n * unit, true
	}
	return 0, false
}

// Until returns the next occurrence after now of the wall-clock time named by
// "до H:MM" in text, in now's location. A time that is not strictly after now
// rolls over to the following day. Out-of-range hours or minutes are no match.
func Until(text string, now time.Time) (time.Time, bool) {
	m := untilRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return time.Time{}, false
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if hh > 23 || mm > 59 {
		return time.Time{}, false
	}

	target := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target, true
}

// Seconds resolves text to a positive gag length in seconds. An explicit
// duration wins over an absolute time. ok is false when text names neither;
// ErrInvalidTime is returned when the result is not positive.
func Seconds(text string, now time.Time) (seconds int, ok bool, err error) {
	if d, found := Duration(text); found {
		if d <= 0 || d > maxSeconds {
			return 0, true, ErrInvalidTime
		}
		return d, true, nil
	}
	if until, found := Until(text, now); found {
		d := int(until.Sub(now) / time.Second)
		if d <= 0 {
			return 0, true, ErrInvalidTime
		}
		return d, true, nil
	}
	return 0, false, nil
}

// Format renders seconds as minutes and seconds: "1м30с", "2м", "45с", "0с".
func Format(seconds int) string {
	mins, secs := seconds/60, seconds%60
	var b strings.Builder
	if mins > 0 {
		fmt.Fprintf(&b, "%dм", mins)
	}
	if secs > 0 || mins == 0 {
		fmt.Fprintf(&b, "%dс", secs)
	}
	return b.String()
}
