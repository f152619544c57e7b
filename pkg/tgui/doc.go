// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders
//   - Callback data helpers (namespace:action:payload)
//   - HTML escaping for ParseMode="HTML"
package tgui
