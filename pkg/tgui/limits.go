package tgui

import "errors"

// MaxCallbackDataLen is Telegram's callback_data limit in bytes.
const MaxCallbackDataLen = 64

// MaxMessageLen is Telegram's text message limit in characters.
const MaxMessageLen = 4096

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")
