package tgui

import (
	"fmt"
	"strings"
)

// Data formats callback data as "scope:action:payload". The payload is kept
// as-is and may itself contain ':'.
func Data(scope, action, payload string) (string, error) {
	scope = strings.TrimSpace(scope)
	action = strings.TrimSpace(action)
	if scope == "" || action == "" || strings.Contains(scope, ":") || strings.Contains(action, ":") {
		return "", fmt.Errorf("tgui: bad callback scope/action %q/%q", scope, action)
	}
	s := scope + ":" + action
	if payload != "" {
		s += ":" + payload
	}
	if len(s) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return s, nil
}

// ParseData splits data produced by Data. ok is false when data is not in
// scope.
func ParseData(scope, data string) (action, payload string, ok bool) {
	rest, found := strings.CutPrefix(data, scope+":")
	if !found || rest == "" {
		return "", "", false
	}
	action, payload, _ = strings.Cut(rest, ":")
	if action == "" {
		return "", "", false
	}
	return action, payload, true
}
