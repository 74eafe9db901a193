package chat

import (
	"fmt"
	"time"
)

// buildMessageFilter turns optional date bounds into the Chat API filter
// expression. No start date means no filter (full history). A start date
// alone selects that whole calendar day. With both dates the literal
// instants are used; a caller wanting whole-day end semantics must extend
// the end bound itself. Both comparisons are strict, so a message created
// exactly on a bound is excluded.
func buildMessageFilter(start, end *time.Time) (string, error) {
	if start == nil {
		return "", nil
	}

	lower := *start
	var upper time.Time

	if end != nil {
		if end.Before(*start) {
			return "", fmt.Errorf("end date %s is before start date %s",
				end.Format(time.RFC3339), start.Format(time.RFC3339))
		}
		upper = *end
	} else {
		lower = startOfDay(*start)
		upper = lower.Add(24 * time.Hour)
	}

	return fmt.Sprintf("createTime > %q AND createTime < %q",
		lower.Format(time.RFC3339), upper.Format(time.RFC3339)), nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ParseDateArg parses a tool-supplied date string: either a bare date
// (YYYY-MM-DD) or a full RFC 3339 timestamp.
func ParseDateArg(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is neither YYYY-MM-DD nor RFC 3339", s)
	}

	return t, nil
}
