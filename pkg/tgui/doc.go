// Package tgui provides small Telegram UI helpers for the bot's handlers:
//   - inline keyboard builders and pager rows
//   - callback data helpers (scope:action:payload)
//   - a message builder that escapes for ParseMode="HTML" by default
package tgui
