package db

import (
	"database/sql"
	"fmt"
	"strconv"
)

const currentSchemaVersion = 1

// schemaDDL contains the CREATE TABLE statements for the initial schema.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS products (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_id          INTEGER REFERENCES products(id) ON DELETE CASCADE,
	type               TEXT,
	name               TEXT NOT NULL DEFAULT '',
	slug               TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'publish',
	featured           INTEGER NOT NULL DEFAULT 0,
	catalog_visibility TEXT NOT NULL DEFAULT '',
	description        TEXT NOT NULL DEFAULT '',
	short_description  TEXT NOT NULL DEFAULT '',
	sku                TEXT NOT NULL DEFAULT '',
	price              TEXT NOT NULL DEFAULT '',
	regular_price      TEXT NOT NULL DEFAULT '',
	sale_price         TEXT NOT NULL DEFAULT '',
	sale_from          TEXT NOT NULL DEFAULT '',
	sale_to            TEXT NOT NULL DEFAULT '',
	tax_status         TEXT NOT NULL DEFAULT '',
	tax_class          TEXT NOT NULL DEFAULT '',
	manage_stock       INTEGER NOT NULL DEFAULT 0,
	stock_quantity     INTEGER,
	stock_status       TEXT NOT NULL DEFAULT '',
	backorders         TEXT NOT NULL DEFAULT '',
	low_stock_amount   INTEGER,
	sold_individually  INTEGER NOT NULL DEFAULT 0,
	weight             TEXT NOT NULL DEFAULT '',
	length             TEXT NOT NULL DEFAULT '',
	width              TEXT NOT NULL DEFAULT '',
	height             TEXT NOT NULL DEFAULT '',
	shipping_class_id  INTEGER NOT NULL DEFAULT 0,
	image_id           INTEGER NOT NULL DEFAULT 0,
	is_virtual         INTEGER NOT NULL DEFAULT 0,
	downloadable       INTEGER NOT NULL DEFAULT 0,
	reviews_allowed    INTEGER NOT NULL DEFAULT 1,
	purchase_note      TEXT NOT NULL DEFAULT '',
	menu_order         INTEGER NOT NULL DEFAULT 0,
	total_sales        INTEGER NOT NULL DEFAULT 0,
	default_attributes TEXT NOT NULL DEFAULT '{}',
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_products_sku ON products(sku) WHERE sku != '';
CREATE INDEX IF NOT EXISTS idx_products_parent_id ON products(parent_id);
CREATE INDEX IF NOT EXISTS idx_products_status ON products(status);
CREATE INDEX IF NOT EXISTS idx_products_type ON products(type);
CREATE INDEX IF NOT EXISTS idx_products_stock_status ON products(stock_status);
CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at);

CREATE TABLE IF NOT EXISTS product_relations (
	product_id    INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	related_id    INTEGER NOT NULL,
	relation_type TEXT NOT NULL,
	position      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (product_id, related_id, relation_type)
);

CREATE TABLE IF NOT EXISTS terms (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	taxonomy    TEXT NOT NULL,
	name        TEXT NOT NULL,
	slug        TEXT NOT NULL,
	parent_id   INTEGER NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	UNIQUE(taxonomy, slug)
);

CREATE TABLE IF NOT EXISTS product_terms (
	product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	term_id    INTEGER NOT NULL REFERENCES terms(id) ON DELETE CASCADE,
	position   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (product_id, term_id)
);
CREATE INDEX IF NOT EXISTS idx_product_terms_term_id ON product_terms(term_id);

CREATE TABLE IF NOT EXISTS attribute_taxonomies (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	name  TEXT NOT NULL UNIQUE,
	label TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS product_attributes (
	product_id  INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	is_taxonomy INTEGER NOT NULL DEFAULT 0,
	options     TEXT NOT NULL DEFAULT '[]',
	position    INTEGER NOT NULL DEFAULT 0,
	visible     INTEGER NOT NULL DEFAULT 1,
	variation   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (product_id, name)
);

CREATE TABLE IF NOT EXISTS product_gallery (
	product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	media_id   INTEGER NOT NULL,
	position   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (product_id, position)
);

CREATE TABLE IF NOT EXISTS product_meta (
	product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	meta_key   TEXT NOT NULL,
	meta_value TEXT NOT NULL DEFAULT 'null',
	PRIMARY KEY (product_id, position)
);

CREATE TABLE IF NOT EXISTS media (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	url         TEXT NOT NULL DEFAULT '',
	filename    TEXT NOT NULL DEFAULT '',
	storage_key TEXT NOT NULL DEFAULT '',
	hash        TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	alt         TEXT NOT NULL DEFAULT '',
	caption     TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	mime_type   TEXT NOT NULL DEFAULT '',
	size        INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_media_hash ON media(hash);

CREATE TABLE IF NOT EXISTS sessions (
	kind       TEXT NOT NULL,
	operator   TEXT NOT NULL,
	token      TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	PRIMARY KEY (kind, operator)
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);

CREATE TABLE IF NOT EXISTS activity_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id    INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	action        TEXT NOT NULL,
	detail        TEXT,
	session_token TEXT,
	operator      TEXT,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activity_log_product_id ON activity_log(product_id);
`

// Initialize creates all tables if they don't exist and sets the schema version.
func Initialize(db *sql.DB) error {
	return withTx(db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(schemaDDL); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
		// A fresh schema is already current; keep an existing version.
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)`,
			strconv.Itoa(currentSchemaVersion),
		); err != nil {
			return fmt.Errorf("setting schema version: %w", err)
		}
		return nil
	})
}

// SchemaVersion returns the current schema version from the meta table.
func SchemaVersion(db *sql.DB) (int, error) {
	var val string
	err := db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&val)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}

	v, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parsing schema version %q: %w", val, err)
	}

	return v, nil
}

// migrations is a list of migration functions keyed by the version they migrate TO.
// For example, migrations[2] migrates from version 1 to version 2. Version 1
// is the schema Initialize creates.
var migrations = map[int]func(tx *sql.Tx) error{}

// Migrate checks the current schema version and applies any pending migrations
// sequentially. It is a no-op when already at the latest version.
func Migrate(db *sql.DB) error {
	version, err := SchemaVersion(db)
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		return nil
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	for v := version + 1; v <= currentSchemaVersion; v++ {
		migrateFn, ok := migrations[v]
		if !ok {
			return fmt.Errorf("missing migration for version %d", v)
		}
		err := withTx(db, func(tx *sql.Tx) error {
			if err := migrateFn(tx); err != nil {
				return fmt.Errorf("applying migration %d: %w", v, err)
			}
			if _, err := tx.Exec(
				`UPDATE meta SET value = ? WHERE key = 'schema_version'`,
				strconv.Itoa(v),
			); err != nil {
				return fmt.Errorf("updating schema version to %d: %w", v, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
