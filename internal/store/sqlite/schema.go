package sqlite

import "context"

// schemaDDL creates the five tables and the indexes required by the
// persistence primitives design: the unique instance key, the tree
// traversal index, the direct-children index, the three event-log
// indexes, and the download-request cache-key index.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS instance (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	itype_id      INTEGER NOT NULL,
	i_id          INTEGER NOT NULL,
	children_cnt  INTEGER NOT NULL DEFAULT 0,
	lft_ins_num   INTEGER NOT NULL DEFAULT 0,
	lft_ins_den   INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS ix_instance_key ON instance(itype_id, i_id);

CREATE TABLE IF NOT EXISTS comment (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	itype_id      INTEGER NOT NULL,
	i_id          INTEGER NOT NULL,
	author_id     INTEGER NOT NULL,
	content       TEXT NOT NULL,
	created       DATETIME NOT NULL,
	updated       DATETIME NOT NULL,
	tree_id       INTEGER NOT NULL,
	parent_id     INTEGER,
	children_cnt  INTEGER NOT NULL DEFAULT 0,
	scale         INTEGER NOT NULL,
	lft_num       INTEGER NOT NULL,
	lft_den       INTEGER NOT NULL,
	rht_num       INTEGER NOT NULL,
	rht_den       INTEGER NOT NULL,
	lft_ins_num   INTEGER NOT NULL,
	lft_ins_den   INTEGER NOT NULL,
	lft_float     REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS ix_hierarchy_tree ON comment(tree_id, scale, lft_float);
CREATE INDEX IF NOT EXISTS ix_tree_level ON comment(tree_id, parent_id);

CREATE TABLE IF NOT EXISTS event_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id        INTEGER NOT NULL,
	tree_id        INTEGER NOT NULL,
	author_id      INTEGER NOT NULL,
	comment_id     INTEGER NOT NULL,
	comment_cdate  DATETIME NOT NULL,
	e_type         TEXT NOT NULL,
	e_date         DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_tree_events ON event_log(tree_id, e_date);
CREATE INDEX IF NOT EXISTS ix_author_events ON event_log(author_id, e_date);
CREATE INDEX IF NOT EXISTS ix_tree_author_events ON event_log(tree_id, author_id, e_date);

CREATE TABLE IF NOT EXISTS dl_request (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	itype_id    INTEGER NOT NULL,
	i_id        INTEGER NOT NULL DEFAULT 0,
	has_i_id    INTEGER NOT NULL DEFAULT 0,
	author_id   INTEGER NOT NULL DEFAULT 0,
	has_author  INTEGER NOT NULL DEFAULT 0,
	start_ts    TEXT,
	has_start   INTEGER NOT NULL DEFAULT 0,
	end_ts      TEXT,
	has_end     INTEGER NOT NULL DEFAULT 0,
	fmt         TEXT NOT NULL,
	state       TEXT NOT NULL,
	filename    TEXT NOT NULL,
	created     DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ix_dlrequest_cache_key
	ON dl_request(itype_id, i_id, has_i_id, author_id, has_author, start_ts, has_start, end_ts, has_end, fmt);

CREATE TABLE IF NOT EXISTS user_dl_request (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id      INTEGER NOT NULL,
	dlrequest_id INTEGER NOT NULL,
	created      DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ix_user_dlrequest ON user_dl_request(user_id, dlrequest_id);
`

// Migrate applies the schema, creating tables and indexes if they do not
// already exist. It is safe to call on every process start.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaDDL)
	return err
}

const dropDDL = `
DROP TABLE IF EXISTS user_dl_request;
DROP TABLE IF EXISTS dl_request;
DROP TABLE IF EXISTS event_log;
DROP TABLE IF EXISTS comment;
DROP TABLE IF EXISTS instance;
`

// DropSchema drops every table this service owns. It exists for the
// initdb command and test setup only — never called from request paths.
func (s *Store) DropSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, dropDDL)
	return err
}
