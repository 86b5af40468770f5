package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskpilot/internal/model"
)

type linkRow struct {
	OwnerID  string `db:"owner_id"`
	ChatID   int64  `db:"chat_id"`
	Username string `db:"username"`
	Enabled  bool   `db:"enabled"`
	LinkedAt int64  `db:"linked_at"`
}

func (r linkRow) model() model.ChatLink {
	return model.ChatLink{
		OwnerID:  r.OwnerID,
		ChatID:   r.ChatID,
		Username: r.Username,
		Enabled:  r.Enabled,
		LinkedAt: fromUnix(r.LinkedAt),
	}
}

const linkColumns = "owner_id, chat_id, username, enabled, linked_at"

// ChatLinkForOwner returns the owner's link, if any.
func (s *Store) ChatLinkForOwner(ctx context.Context, owner string) (model.ChatLink, bool, error) {
	return s.getLink(ctx, "owner_id = ?", owner)
}

// ChatLinkForChat returns the link bound to a Telegram chat, if any.
func (s *Store) ChatLinkForChat(ctx context.Context, chatID int64) (model.ChatLink, bool, error) {
	return s.getLink(ctx, "chat_id = ?", chatID)
}

func (s *Store) getLink(ctx context.Context, where string, arg any) (model.ChatLink, bool, error) {
	var r linkRow
	err := s.db.GetContext(ctx, &r, "SELECT "+linkColumns+" FROM chat_links WHERE "+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ChatLink{}, false, nil
	}
	if err != nil {
		return model.ChatLink{}, false, fmt.Errorf("getting chat link: %w", err)
	}
	return r.model(), true, nil
}

// IssueLinkCode creates a one-time code that binds the chat redeeming it to
// owner. Expired codes are swept on the way.
func (s *Store) IssueLinkCode(ctx context.Context, owner string, now time.Time) (string, time.Time, error) {
	if _, err := s.GetOwner(ctx, owner); err != nil {
		return "", time.Time{}, err
	}
	code := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	expires := now.Add(LinkCodeTTL)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", time.Time{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM link_codes WHERE expires_at <= ?", now.Unix()); err != nil {
		return "", time.Time{}, fmt.Errorf("sweeping link codes: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO link_codes (code, owner_id, expires_at) VALUES (?, ?, ?)",
		code, owner, expires.Unix()); err != nil {
		return "", time.Time{}, fmt.Errorf("issuing link code: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", time.Time{}, err
	}
	return code, expires, nil
}

// ConnectChat redeems code and binds chatID to the code's owner. The code is
// consumed; a chat previously linked to another owner is moved.
func (s *Store) ConnectChat(ctx context.Context, code string, chatID int64, username string, now time.Time) (model.ChatLink, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return model.ChatLink{}, ErrLinkCodeInvalid
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.ChatLink{}, err
	}
	defer tx.Rollback()

	var owner string
	err = tx.GetContext(ctx, &owner,
		"SELECT owner_id FROM link_codes WHERE code = ? AND expires_at > ?", code, now.Unix())
	if errors.Is(err, sql.ErrNoRows) {
		return model.ChatLink{}, ErrLinkCodeInvalid
	}
	if err != nil {
		return model.ChatLink{}, fmt.Errorf("reading link code: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM link_codes WHERE code = ?", code); err != nil {
		return model.ChatLink{}, fmt.Errorf("consuming link code: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chat_links WHERE chat_id = ? AND owner_id <> ?", chatID, owner); err != nil {
		return model.ChatLink{}, fmt.Errorf("releasing chat %d: %w", chatID, err)
	}

	link := model.ChatLink{OwnerID: owner, ChatID: chatID, Username: username, Enabled: true, LinkedAt: now.Truncate(time.Second)}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_links (`+linkColumns+`) VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			chat_id = excluded.chat_id,
			username = excluded.username,
			enabled = 1,
			linked_at = excluded.linked_at`,
		link.OwnerID, link.ChatID, link.Username, link.LinkedAt.Unix())
	if err != nil {
		return model.ChatLink{}, fmt.Errorf("saving chat link: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.ChatLink{}, err
	}
	return link, nil
}

// SetChatEnabled toggles delivery to a linked chat.
func (s *Store) SetChatEnabled(ctx context.Context, chatID int64, enabled bool) (model.ChatLink, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE chat_links SET enabled = ? WHERE chat_id = ?", enabled, chatID)
	if err != nil {
		return model.ChatLink{}, fmt.Errorf("updating chat %d: %w", chatID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ChatLink{}, fmt.Errorf("chat %d: %w", chatID, ErrNotFound)
	}
	link, _, err := s.ChatLinkForChat(ctx, chatID)
	return link, err
}
