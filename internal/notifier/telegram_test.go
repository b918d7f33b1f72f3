package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"alertd/internal/alert"
	logx "alertd/pkg/logx"
)

type apiCall struct {
	Method string
	Params map[string]any
}

// fakeBotAPI answers the Bot API methods the driver uses.
type fakeBotAPI struct {
	mu     sync.Mutex
	calls  []apiCall
	nextID int
	fail   int // fail this many sendMessage calls first
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := path.Base(r.URL.Path)
	params := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&params)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Params: params})
	fail := method == "sendMessage" && f.fail > 0
	if fail {
		f.fail--
	}
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":500,"description":"Internal Server Error"}`))
		return
	}
	switch method {
	case "sendMessage":
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"date":0,"chat":{"id":%v,"type":"private"},"text":"x"}}`, id, params["chat_id"])
	default:
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}
}

func (f *fakeBotAPI) byMethod(m string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == m {
			out = append(out, c)
		}
	}
	return out
}

func newFakeTelegram(t *testing.T, api *fakeBotAPI) *Telegram {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	tg, err := newTelegram(TelegramConfig{
		Token:      "123:abc",
		ChatID:     100,
		APIURL:     srv.URL,
		RatePerSec: 1000,
		RetryMax:   2,
		RetryBase:  time.Millisecond,
	}, logx.Nop(), true)
	require.NoError(t, err)
	return tg
}

func TestTelegramRequiresTokenAndChat(t *testing.T) {
	_, err := newTelegram(TelegramConfig{ChatID: 1}, logx.Nop(), true)
	require.Error(t, err)
	_, err = newTelegram(TelegramConfig{Token: "1:a"}, logx.Nop(), true)
	require.Error(t, err)
}

func TestTelegramShowSendsMessageWithButtons(t *testing.T) {
	api := &fakeBotAPI{}
	tg := newFakeTelegram(t, api)

	err := tg.Show(context.Background(), "alert:5", Notification{
		Title:       "Fleet <arrived>",
		Body:        "at home",
		ContextText: "Game − s1.example",
		EventTime:   time.UnixMilli(1700000000000).UTC(),
	})
	require.NoError(t, err)

	sends := api.byMethod("sendMessage")
	require.Len(t, sends, 1)
	p := sends[0].Params
	require.Equal(t, "100", fmt.Sprint(p["chat_id"]))
	require.Equal(t, "HTML", fmt.Sprint(p["parse_mode"]))
	require.Contains(t, fmt.Sprint(p["text"]), "<b>Fleet &lt;arrived&gt;</b>")
	require.Contains(t, fmt.Sprint(p["text"]), "Game − s1.example")
	require.Contains(t, fmt.Sprint(p["reply_markup"]), "n:open:alert:5")
	require.Contains(t, fmt.Sprint(p["reply_markup"]), "n:dismiss:alert:5")
	require.Equal(t, "true", fmt.Sprint(p["disable_notification"]))
}

func TestTelegramShowReplacesPreviousMessage(t *testing.T) {
	api := &fakeBotAPI{}
	tg := newFakeTelegram(t, api)
	ctx := context.Background()

	require.NoError(t, tg.Show(ctx, "alert:5", Notification{Title: "a", Vibrate: true}))
	require.NoError(t, tg.Show(ctx, "alert:5", Notification{Title: "b", Vibrate: true}))

	require.Len(t, api.byMethod("sendMessage"), 2)
	require.Len(t, api.byMethod("deleteMessage"), 1)
	_, silenced := api.byMethod("sendMessage")[0].Params["disable_notification"]
	require.False(t, silenced)
}

func TestTelegramShowRetries(t *testing.T) {
	api := &fakeBotAPI{fail: 2}
	tg := newFakeTelegram(t, api)
	require.NoError(t, tg.Show(context.Background(), "alert:1", Notification{Title: "a"}))
	require.Len(t, api.byMethod("sendMessage"), 3)

	api.mu.Lock()
	api.fail = 5
	api.mu.Unlock()
	require.Error(t, tg.Show(context.Background(), "alert:2", Notification{Title: "a"}))
}

func TestTelegramDismissDeletes(t *testing.T) {
	api := &fakeBotAPI{}
	tg := newFakeTelegram(t, api)
	ctx := context.Background()

	require.NoError(t, tg.Dismiss(ctx, "alert:9"))
	require.Empty(t, api.byMethod("deleteMessage"))

	require.NoError(t, tg.Show(ctx, "alert:9", Notification{Title: "a"}))
	require.NoError(t, tg.Dismiss(ctx, "alert:9"))
	require.Len(t, api.byMethod("deleteMessage"), 1)
}

func TestTelegramButtonActions(t *testing.T) {
	api := &fakeBotAPI{}
	tg := newFakeTelegram(t, api)
	var log eventLog
	tg.OnEvent(log.handle)
	ctx := context.Background()

	require.NoError(t, tg.Show(ctx, "alert:7", Notification{Title: "a"}))

	reply, ok := tg.handleAction(ctx, "n:open:alert:7", nil)
	require.True(t, ok)
	require.NotEmpty(t, reply)

	_, ok = tg.handleAction(ctx, "n:dismiss:alert:7", nil)
	require.True(t, ok)
	require.Len(t, api.byMethod("deleteMessage"), 1)

	_, ok = tg.handleAction(ctx, "other:open:alert:7", nil)
	require.False(t, ok)
	_, ok = tg.handleAction(ctx, "n:explode:alert:7", nil)
	require.False(t, ok)

	evs := log.all()
	require.Len(t, evs, 2)
	require.Equal(t, Clicked, evs[0].Kind)
	require.Equal(t, "alert:7", evs[0].NotificationID)
	require.Equal(t, Closed, evs[1].Kind)
}

func TestTelegramOpenSendsLink(t *testing.T) {
	api := &fakeBotAPI{}
	tg := newFakeTelegram(t, api)

	owner := alert.Owner{Realm: "https://s1.example", ID: 4}
	require.NoError(t, tg.Open(context.Background(), owner, "https://s1.example/game/index"))

	sends := api.byMethod("sendMessage")
	require.Len(t, sends, 1)
	markup := fmt.Sprint(sends[0].Params["reply_markup"])
	require.True(t, strings.Contains(markup, "https://s1.example/game/index"))
	require.Contains(t, markup, "Open s1.example")
}

func TestRenderNotification(t *testing.T) {
	s := renderNotification(Notification{Title: "T", Body: "a & b", Tag: "fleet"})
	require.Equal(t, "<b>T</b>\na &amp; b\n#fleet", s)
}
