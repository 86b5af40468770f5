// Package tgui provides small helpers for Telegram-bound text:
//   - HTML fragments that are safe for ParseMode="HTML" (auto escaping)
//   - Rune-aware truncation for titles and previews
package tgui
