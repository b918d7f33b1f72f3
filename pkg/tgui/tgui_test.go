package tgui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataRoundTrip(t *testing.T) {
	d, err := Data("n", "open", "alert:42")
	require.NoError(t, err)
	require.Equal(t, "n:open:alert:42", d)

	action, payload, ok := ParseData("n", d)
	require.True(t, ok)
	require.Equal(t, "open", action)
	require.Equal(t, "alert:42", payload)

	_, _, ok = ParseData("n", "other:open:x")
	require.False(t, ok)
	_, _, ok = ParseData("n", "n:")
	require.False(t, ok)
}

func TestDataRejects(t *testing.T) {
	_, err := Data("", "open", "x")
	require.Error(t, err)
	_, err = Data("a:b", "open", "x")
	require.Error(t, err)
	_, err = Data("n", "open", strings.Repeat("x", MaxCallbackDataLen))
	require.ErrorIs(t, err, ErrCallbackDataTooLong)
}

func TestTruncRunes(t *testing.T) {
	require.Equal(t, "héllo", TruncRunes("héllo", 5))
	require.Equal(t, "hé…", TruncRunes("héllo", 3))
	require.Equal(t, "", TruncRunes("x", 0))
}

func TestHTML(t *testing.T) {
	require.Equal(t, H("<b>a &lt; b</b>"), B("a < b"))
	require.Equal(t, H(`<a href="https://x/?a=1&amp;b=2">go</a>`), Link("go", "https://x/?a=1&b=2"))
	require.Equal(t, H("a\nb"), Lines("a", "", "b"))
}

func TestInlineMarkup(t *testing.T) {
	require.Nil(t, NewInline().Markup())
	require.Nil(t, NewInline().Row(Btn("", "x")).Markup())

	rm := NewInline().Row(Btn("Open", "n:open:1"), URLBtn("Site", "https://x")).Markup()
	require.NotNil(t, rm)
	require.Len(t, rm.InlineKeyboard, 1)
	require.Len(t, rm.InlineKeyboard[0], 2)
	require.Equal(t, "n:open:1", rm.InlineKeyboard[0][0].Data)
	require.Equal(t, "https://x", rm.InlineKeyboard[0][1].URL)
}
