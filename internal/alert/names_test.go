package alert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNamesRoundTrip(t *testing.T) {
	t.Parallel()
	id, ok := ParseTimerName(TimerName(42))
	require.True(t, ok)
	require.Equal(t, int64(42), id)

	id, ok = ParseNotificationName(NotificationName(7))
	require.True(t, ok)
	require.Equal(t, int64(7), id)
}

func TestParseNamesRejectsUnrelated(t *testing.T) {
	t.Parallel()
	for _, name := range []string{
		"",
		"alert:",
		"alert:-1",
		"alert:+3",
		"alert:0",
		"alert:1x",
		"alert:99999999999999999999",
		"other:5",
		PreviewNotification,
	} {
		_, ok := ParseNotificationName(name)
		require.False(t, ok, name)
	}
	// Timer and notification namespaces do not overlap.
	_, ok := ParseTimerName(NotificationName(5))
	require.False(t, ok)
	_, ok = ParseNotificationName(TimerName(5))
	require.False(t, ok)
}

func TestNotificationFor(t *testing.T) {
	t.Parallel()
	require.Equal(t, PreviewNotification, NotificationFor(Record{}))
	require.Equal(t, "alert:3", NotificationFor(Record{ID: 3}))
}

func TestOwnerHost(t *testing.T) {
	t.Parallel()
	require.Equal(t, "en1.forgeofempires.com", Owner{Realm: "https://en1.forgeofempires.com"}.Host())
	require.True(t, Owner{Realm: "r", ID: 1}.Matches(Owner{Realm: "r", ID: 1}))
	require.False(t, Owner{Realm: "r", ID: 1}.Matches(Owner{Realm: "r", ID: 2}))
}
