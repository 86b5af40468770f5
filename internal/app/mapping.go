package app

import (
	"taskpilot/internal/config"
	"taskpilot/internal/notify/channel"
	"taskpilot/internal/reminder"
	"taskpilot/internal/storage"
	logx "taskpilot/pkg/logx"
)

// settings is everything derived from one config snapshot.
type settings struct {
	resolved config.Resolved
	logging  logx.Config
	storage  storage.Config
	desktop  channel.DesktopConfig
	telegram channel.TelegramConfig
	reminder reminder.Options
}

func mapConfig(cfg *config.Config) (settings, error) {
	r, err := cfg.Resolve()
	if err != nil {
		return settings{}, err
	}
	policy, err := reminder.ParsePolicy(r.LedgerPolicy)
	if err != nil {
		return settings{}, err
	}
	return settings{
		resolved: r,
		logging: logx.Config{
			Level:   cfg.Logging.Level,
			Console: cfg.Logging.Console,
			File: logx.FileConfig{
				Enabled: cfg.Logging.File.Enabled,
				Path:    cfg.Logging.File.Path,
			},
			Chat: logx.ChatConfig{
				Enabled:    cfg.Logging.Telegram.Enabled,
				ThreadID:   cfg.Logging.Telegram.ThreadID,
				MinLevel:   cfg.Logging.Telegram.MinLevel,
				RatePerSec: cfg.Logging.Telegram.RatePerSec,
			},
		},
		storage: storage.Config{Path: r.StoragePath, BusyTimeout: r.BusyTimeout},
		desktop: channel.DesktopConfig{
			Enabled:       cfg.Channels.Desktop.Enabled,
			AppName:       cfg.Channels.Desktop.AppName,
			ExpireTimeout: r.DesktopExpire,
			Owners:        append([]string(nil), cfg.Channels.Desktop.Owners...),
		},
		telegram: channel.TelegramConfig{
			Enabled:    cfg.Channels.Telegram.Enabled,
			RatePerSec: r.TelegramRate,
		},
		reminder: reminder.Options{
			Policy:    policy,
			Retention: r.LedgerRetention,
			CatchUp:   cfg.Scheduler.SummaryCatchUp,
		},
	}, nil
}
