package alert

import (
	"strconv"
	"strings"
)

const (
	timerPrefix        = "alert-timer:"
	notificationPrefix = "alert:"

	// PreviewNotification is the notification id used for records without an id.
	PreviewNotification = "alert-preview"
)

// TimerName is the timer name armed for record id.
func TimerName(id int64) string { return timerPrefix + strconv.FormatInt(id, 10) }

// ParseTimerName decodes a timer name. ok is false for names that do not
// belong to an alert.
func ParseTimerName(name string) (id int64, ok bool) {
	return parseName(name, timerPrefix)
}

// NotificationName is the notification id shown for record id.
func NotificationName(id int64) string { return notificationPrefix + strconv.FormatInt(id, 10) }

// ParseNotificationName decodes a notification id. The preview id and
// unrelated ids yield ok=false.
func ParseNotificationName(name string) (id int64, ok bool) {
	return parseName(name, notificationPrefix)
}

// NotificationFor returns the notification id of a record, or the preview id
// when the record was never persisted.
func NotificationFor(r Record) string {
	if r.HasID() {
		return NotificationName(r.ID)
	}
	return PreviewNotification
}

func parseName(name, prefix string) (int64, bool) {
	rest, found := strings.CutPrefix(name, prefix)
	if !found || rest == "" {
		return 0, false
	}
	for _, c := range rest {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
