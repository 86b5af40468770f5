package storage

type migration struct {
	version int
	sql     string
}

// migrations must be ordered with sequential versions starting at 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version    INTEGER NOT NULL,
	applied_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS owners (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	due_at      INTEGER,
	completed   INTEGER NOT NULL DEFAULT 0,
	priority    TEXT NOT NULL DEFAULT 'medium',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_owner_due ON tasks(owner_id, completed, due_at);

CREATE TABLE IF NOT EXISTS settings (
	owner_id   TEXT PRIMARY KEY REFERENCES owners(id) ON DELETE CASCADE,
	data       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS chat_links (
	owner_id  TEXT PRIMARY KEY REFERENCES owners(id) ON DELETE CASCADE,
	chat_id   INTEGER NOT NULL UNIQUE,
	username  TEXT NOT NULL DEFAULT '',
	enabled   INTEGER NOT NULL DEFAULT 1,
	linked_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS link_codes (
	code       TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
	expires_at INTEGER NOT NULL
);
`,
	},
	{
		version: 3,
		sql: `
CREATE TABLE IF NOT EXISTS ledger (
	key      TEXT PRIMARY KEY,
	fired_at INTEGER NOT NULL,
	until    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_until ON ledger(until);
`,
	},
}
