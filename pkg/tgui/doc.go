// Package tgui holds small Telegram rendering helpers: inline keyboards,
// callback data in "scope:action:payload" form, and HTML escaping for
// ParseMode=HTML messages.
package tgui
