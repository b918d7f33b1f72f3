package notifier

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"alertd/internal/alert"
	rtsup "alertd/internal/runtime/supervisor"
	logx "alertd/pkg/logx"
	"alertd/pkg/tgui"
)

// callbackScope prefixes the callback data of our inline buttons.
const callbackScope = "n"

const (
	actionOpen    = "open"
	actionDismiss = "dismiss"
)

// Telegram posts notifications into one chat. Clicking "Open" reports
// Clicked; "Dismiss" deletes the message and reports Closed.
//
// Telegram does not tell bots when a user deletes a message, so Telegram
// does not implement LiveLister.
type Telegram struct {
	cfg      TelegramConfig
	log      logx.Logger
	bot      *tele.Bot
	limiter  *rate.Limiter
	handlers handlerSet

	mu   sync.Mutex
	msgs map[string]*tele.Message

	runMu sync.Mutex
	sup   *rtsup.Supervisor
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	return newTelegram(cfg, log, false)
}

// newTelegram with offline=true skips the getMe handshake.
func newTelegram(cfg TelegramConfig, log logx.Logger, offline bool) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimRight(cfg.APIURL, "/"),
		Poller:  &tele.LongPoller{Timeout: cfg.PollTimeout},
		Offline: offline,
		OnError: func(err error, c tele.Context) {
			log.Warn("telegram handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	t := &Telegram{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		msgs:    map[string]*tele.Message{},
	}
	b.Handle(tele.OnCallback, t.onCallback)
	return t, nil
}

func (t *Telegram) OnEvent(h EventHandler) { t.handlers.add(h) }

// Start begins long-polling for button presses.
func (t *Telegram) Start(ctx context.Context) error {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.sup != nil {
		return nil
	}
	t.sup = rtsup.New(ctx,
		rtsup.WithLogger(t.log),
		// delivery failures must not take the app down
		rtsup.WithCancelOnError(false),
	)
	sup := t.sup

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		t.bot.Stop()
	})
	// Start blocks until Stop; restart it if it returns while still running.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		t.log.Info("polling started")
		t.bot.Start()
		t.log.Info("polling stopped")
	},
		rtsup.WithBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartOnCleanExit(true),
	)
	return nil
}

// Stop ends polling, waiting at most 2s (or ctx) for the long-poll to return.
func (t *Telegram) Stop(ctx context.Context) error {
	t.runMu.Lock()
	sup := t.sup
	t.sup = nil
	t.runMu.Unlock()
	if sup == nil {
		return nil
	}
	sup.Cancel()

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			t.log.Warn("telegram stop grace elapsed; continuing shutdown")
			return nil
		}
		t.log.Debug("telegram stopped with error", logx.Err(err))
	}
	return nil
}

// Supervisor exposes the polling goroutines for health output.
func (t *Telegram) Supervisor() *rtsup.Supervisor {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	return t.sup
}

func (t *Telegram) chat() *tele.Chat { return &tele.Chat{ID: t.cfg.ChatID} }

func (t *Telegram) Show(ctx context.Context, id string, n Notification) error {
	open, err := tgui.Data(callbackScope, actionOpen, id)
	if err != nil {
		return err
	}
	dismiss, err := tgui.Data(callbackScope, actionDismiss, id)
	if err != nil {
		return err
	}
	markup := tgui.NewInline().Row(tgui.Btn("Open", open), tgui.Btn("Dismiss", dismiss)).Markup()
	opts := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		DisableNotification:   !n.Vibrate,
		ThreadID:              t.cfg.ThreadID,
		ReplyMarkup:           markup,
	}
	text := renderNotification(n)

	var msg *tele.Message
	err = t.withRetry(ctx, "send", func() error {
		m, err := t.bot.Send(t.chat(), text, opts)
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	prev := t.msgs[id]
	t.msgs[id] = msg
	t.mu.Unlock()

	// Replacing keeps one message per id.
	if prev != nil {
		if err := t.bot.Delete(prev); err != nil {
			t.log.Debug("replace: delete previous message failed", logx.String("id", id), logx.Err(err))
		}
	}
	t.log.Debug("notification sent", logx.String("id", id), logx.Int("message_id", msg.ID))
	return nil
}

func (t *Telegram) Dismiss(ctx context.Context, id string) error {
	t.mu.Lock()
	msg := t.msgs[id]
	delete(t.msgs, id)
	t.mu.Unlock()
	if msg == nil {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.bot.Delete(msg)
}

// Open sends a message with a link button to target.
func (t *Telegram) Open(ctx context.Context, owner alert.Owner, target string) error {
	markup := tgui.NewInline().Row(tgui.URLBtn("Open "+owner.Host(), target)).Markup()
	text := tgui.Lines(tgui.B("Open your game"), tgui.Link(target, target)).String()
	return t.withRetry(ctx, "open", func() error {
		_, err := t.bot.Send(t.chat(), text, &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: true,
			ThreadID:              t.cfg.ThreadID,
			ReplyMarkup:           markup,
		})
		return err
	})
}

func (t *Telegram) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	reply, ok := t.handleAction(context.Background(), cb.Data, cb.Message)
	if !ok {
		return nil
	}
	return c.Respond(&tele.CallbackResponse{Text: reply})
}

// handleAction applies a button press. msg is the message the button sits
// on and may be nil.
func (t *Telegram) handleAction(ctx context.Context, data string, msg *tele.Message) (string, bool) {
	action, id, ok := tgui.ParseData(callbackScope, data)
	if !ok || id == "" {
		return "", false
	}
	switch action {
	case actionOpen:
		t.handlers.emit(ctx, Clicked, id)
		return "Opening…", true
	case actionDismiss:
		t.mu.Lock()
		stored := t.msgs[id]
		delete(t.msgs, id)
		t.mu.Unlock()
		if stored == nil {
			stored = msg
		}
		if stored != nil {
			if err := t.bot.Delete(stored); err != nil {
				t.log.Debug("dismiss: delete message failed", logx.String("id", id), logx.Err(err))
			}
		}
		t.handlers.emit(ctx, Closed, id)
		return "Dismissed", true
	default:
		return "", false
	}
}

// withRetry rate-limits and retries call with jittered exponential backoff.
func (t *Telegram) withRetry(ctx context.Context, op string, call func() error) error {
	attempts := 1 + t.cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
		if lastErr = call(); lastErr == nil {
			return nil
		}
		t.log.Debug("telegram call failed", logx.String("op", op), logx.Int("attempt", attempt), logx.Int("max", attempts), logx.Err(lastErr))
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(retryDelay(t.cfg, attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

// retryDelay is base*2^(attempt-1) capped at RetryMaxDelay, jittered by ±30%.
func retryDelay(cfg TelegramConfig, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}

func renderNotification(n Notification) string {
	when := ""
	if !n.EventTime.IsZero() {
		when = n.EventTime.Format("Jan 2 15:04 MST")
	}
	body := tgui.TruncRunes(n.Body, tgui.MaxMessageLen/2)
	parts := []tgui.H{tgui.B(n.Title), tgui.Esc(body)}
	if n.ContextText != "" || when != "" {
		meta := strings.TrimSpace(n.ContextText + " " + when)
		parts = append(parts, tgui.I(meta))
	}
	if n.Tag != "" {
		parts = append(parts, tgui.Esc("#"+n.Tag))
	}
	return tgui.Lines(parts...).String()
}
