package tgui

import (
	"errors"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// NOTE: This is the length of the full string: "namespace:action:payload".
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data formats inline callback data as "namespace:action:payload".
// Payload is kept as-is and may itself contain ':'.
func Data(namespace, action, payload string) (string, error) {
	namespace = strings.TrimSpace(namespace)
	action = strings.TrimSpace(action)
	out := namespace + ":" + action
	if payload != "" {
		out += ":" + payload
	}
	if len(out) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return out, nil
}

// ParseData splits callback data produced by Data.
func ParseData(data string) (namespace, action, payload string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	if len(parts) == 3 {
		payload = parts[2]
	}
	return parts[0], parts[1], payload, true
}
