// Package storage is the SQLite persistence layer.
//
// It holds owners, their tasks and notification settings, Telegram chat links
// with their one-time link codes, and the optional persisted reminder ledger.
// The Store implements reminder.TaskSource, reminder.SettingsSource and
// reminder.LedgerStore.
//
// Timestamps are stored as unix seconds and read back in time.Local.
package storage
