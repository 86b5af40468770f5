package config

// Config is the daemon configuration file (YAML or JSON).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Unknown keys are rejected on load and on reload.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Channels  ChannelsConfig  `json:"channels"`
}

type TelegramConfig struct {
	// Token may be empty: the bot is then not started and the telegram
	// channel reports every owner unavailable.
	Token string `json:"token"`
	// GroupLog is the chat id that receives log lines when logging.telegram is enabled.
	GroupLog    string `json:"group_log"`
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig locates the SQLite database.
//
// Example:
//
//	storage: { path: ./taskpilot.db, busy_timeout: 5s }
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the reminder tick loop.
//
// Defaults (when fields are omitted/zero):
//   - tick_interval: "1m"
//   - ledger_policy: "attempted"
//   - ledger_retention: "840h" (35 days)
type SchedulerConfig struct {
	Enabled         bool   `json:"enabled"`
	TickInterval    string `json:"tick_interval,omitempty"`
	LedgerPolicy    string `json:"ledger_policy,omitempty"`
	LedgerRetention string `json:"ledger_retention,omitempty"`
	// PersistLedger keeps fired occurrences in the database across restarts.
	PersistLedger bool `json:"persist_ledger,omitempty"`
	// SummaryCatchUp fires a missed summary later the same day instead of
	// requiring a tick at the exact minute.
	SummaryCatchUp bool `json:"summary_catch_up,omitempty"`
}

type ChannelsConfig struct {
	Desktop  DesktopChannelConfig  `json:"desktop"`
	Telegram TelegramChannelConfig `json:"telegram"`
}

type DesktopChannelConfig struct {
	Enabled       bool     `json:"enabled"`
	AppName       string   `json:"app_name,omitempty"`
	ExpireTimeout string   `json:"expire_timeout,omitempty"`
	Owners        []string `json:"owners,omitempty"`
}

type TelegramChannelConfig struct {
	Enabled    bool `json:"enabled"`
	RatePerSec int  `json:"rate_per_sec,omitempty"`
}
