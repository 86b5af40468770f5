package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"taskpilot/internal/model"
	logx "taskpilot/pkg/logx"
)

// GetSettings returns the owner's settings. Owners that never saved any get
// model.DefaultSettings; fields absent from a stored blob keep their defaults.
//
// Sections are decoded one by one. A section that does not decode is left at
// its default with Enabled off and named in Unreadable, so the other checks
// keep working. Only a blob that is not a JSON object is ErrCorruptSettings.
func (s *Store) GetSettings(ctx context.Context, owner string) (model.NotificationSettings, error) {
	var data string
	err := s.db.GetContext(ctx, &data, "SELECT data FROM settings WHERE owner_id = ?", owner)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.NotificationSettings{}, fmt.Errorf("getting settings for %s: %w", owner, err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return model.NotificationSettings{}, fmt.Errorf("%w for %s: %w", ErrCorruptSettings, owner, err)
	}

	out := model.DefaultSettings()
	bad := func(section string, err error) {
		out.Unreadable = append(out.Unreadable, section)
		s.log.Warn("settings section unreadable; check disabled",
			logx.String("owner", owner), logx.String("section", section), logx.Err(err))
	}
	if err := decodeSection(raw, model.SectionTaskDue, &out.TaskDue); err != nil {
		out.TaskDue.Enabled = false
		bad(model.SectionTaskDue, err)
	}
	if err := decodeSection(raw, model.SectionDaily, &out.DailySummary); err != nil {
		out.DailySummary.Enabled = false
		bad(model.SectionDaily, err)
	}
	if err := decodeSection(raw, model.SectionWeekly, &out.WeeklySummary); err != nil {
		out.WeeklySummary.Enabled = false
		bad(model.SectionWeekly, err)
	}
	if err := decodeSection(raw, model.SectionMonthly, &out.MonthlySummary); err != nil {
		out.MonthlySummary.Enabled = false
		bad(model.SectionMonthly, err)
	}

	var items []json.RawMessage
	if err := decodeSection(raw, model.SectionCustom, &items); err != nil {
		bad(model.SectionCustom, err)
		items = nil
	}
	for i, item := range items {
		var c model.CustomNotification
		if err := json.Unmarshal(item, &c); err != nil {
			bad(fmt.Sprintf("%s[%d]", model.SectionCustom, i), err)
			continue
		}
		out.Custom = append(out.Custom, c)
	}
	return out, nil
}

// decodeSection unmarshals raw[name] over *dst. dst is only written when
// decoding succeeds; a missing or null section leaves it untouched.
func decodeSection[T any](raw map[string]json.RawMessage, name string, dst *T) error {
	b, ok := raw[name]
	if !ok {
		return nil
	}
	v := *dst
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*dst = v
	return nil
}

// PutSettings validates and stores the owner's settings.
func (s *Store) PutSettings(ctx context.Context, owner string, ns model.NotificationSettings) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	if _, err := s.GetOwner(ctx, owner); err != nil {
		return err
	}
	if ns.Custom == nil {
		ns.Custom = []model.CustomNotification{}
	}
	b, err := json.Marshal(ns)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (owner_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		owner, string(b), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("saving settings for %s: %w", owner, err)
	}
	return nil
}
