package db

// Times are stored as unix seconds (UTC). JSON columns hold small maps/lists
// owned by the row (FileGroup data/files, Download settings/tag_names).
const schema = `
CREATE TABLE IF NOT EXISTS tags (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    name    TEXT NOT NULL UNIQUE,
    color   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS file_groups (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    directory    TEXT NOT NULL,
    stem         TEXT NOT NULL,
    primary_path TEXT NOT NULL,
    mimetype     TEXT NOT NULL DEFAULT '',
    size         INTEGER NOT NULL DEFAULT 0,
    indexed      INTEGER NOT NULL DEFAULT 0,
    deep_indexed INTEGER NOT NULL DEFAULT 0,
    failure      TEXT NOT NULL DEFAULT '',
    title        TEXT NOT NULL DEFAULT '',
    author       TEXT NOT NULL DEFAULT '',
    url          TEXT NOT NULL DEFAULT '',
    published_at INTEGER,
    modified_at  INTEGER,
    a_text       TEXT NOT NULL DEFAULT '',
    b_text       TEXT NOT NULL DEFAULT '',
    c_text       TEXT NOT NULL DEFAULT '',
    d_text       TEXT NOT NULL DEFAULT '',
    data         TEXT NOT NULL DEFAULT '{}',
    files        TEXT NOT NULL DEFAULT '[]',
    UNIQUE (directory, stem)
);
CREATE INDEX IF NOT EXISTS idx_file_groups_directory ON file_groups(directory);
CREATE INDEX IF NOT EXISTS idx_file_groups_pending ON file_groups(indexed, deep_indexed);

CREATE TABLE IF NOT EXISTS tag_file (
    tag_id        INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
    file_group_id INTEGER NOT NULL REFERENCES file_groups(id) ON DELETE CASCADE,
    UNIQUE (tag_id, file_group_id)
);

CREATE TABLE IF NOT EXISTS collections (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL,
    kind        TEXT NOT NULL CHECK (kind IN ('domain','channel','manual')),
    directory   TEXT,
    tag_id      INTEGER REFERENCES tags(id),
    description TEXT NOT NULL DEFAULT '',
    file_format TEXT,
    UNIQUE (name, kind)
);

CREATE TABLE IF NOT EXISTS archives (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    file_group_id    INTEGER NOT NULL UNIQUE REFERENCES file_groups(id) ON DELETE CASCADE,
    url              TEXT NOT NULL DEFAULT '',
    archive_datetime INTEGER,
    collection_id    INTEGER REFERENCES collections(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS channels (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    name          TEXT NOT NULL UNIQUE,
    url           TEXT NOT NULL DEFAULT '',
    directory     TEXT NOT NULL DEFAULT '',
    collection_id INTEGER UNIQUE REFERENCES collections(id)
);

CREATE TABLE IF NOT EXISTS videos (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    file_group_id INTEGER NOT NULL UNIQUE REFERENCES file_groups(id) ON DELETE CASCADE,
    channel_id    INTEGER REFERENCES channels(id) ON DELETE SET NULL,
    source_id     TEXT NOT NULL DEFAULT '',
    upload_date   INTEGER,
    duration      INTEGER NOT NULL DEFAULT 0,
    view_count    INTEGER NOT NULL DEFAULT 0,
    url           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS downloads (
    id                       INTEGER PRIMARY KEY AUTOINCREMENT,
    url                      TEXT NOT NULL,
    downloader               TEXT NOT NULL DEFAULT '',
    sub_downloader           TEXT NOT NULL DEFAULT '',
    destination              TEXT NOT NULL DEFAULT '',
    frequency                INTEGER,
    status                   TEXT NOT NULL DEFAULT 'new'
        CHECK (status IN ('new','pending','complete','failed','deferred')),
    location                 TEXT NOT NULL DEFAULT '',
    error                    TEXT NOT NULL DEFAULT '',
    last_successful_download INTEGER,
    next_download            INTEGER,
    attempts                 INTEGER NOT NULL DEFAULT 0,
    settings                 TEXT NOT NULL DEFAULT '{}',
    tag_names                TEXT NOT NULL DEFAULT '[]',
    collection_id            INTEGER REFERENCES collections(id) ON DELETE SET NULL
);
-- At most one non-terminal row per URL.
CREATE UNIQUE INDEX IF NOT EXISTS idx_downloads_active_url
    ON downloads(url) WHERE status IN ('new','pending','deferred');
CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);

CREATE TABLE IF NOT EXISTS inventories (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    deleted_at INTEGER
);
-- At most one live inventory per name; tombstones may repeat it.
CREATE UNIQUE INDEX IF NOT EXISTS idx_inventories_live_name
    ON inventories(name) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS inventory_items (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    inventory_id INTEGER NOT NULL REFERENCES inventories(id) ON DELETE CASCADE,
    brand        TEXT NOT NULL DEFAULT '',
    name         TEXT NOT NULL DEFAULT '',
    count        REAL NOT NULL DEFAULT 0,
    item_size    REAL NOT NULL DEFAULT 0,
    unit         TEXT NOT NULL DEFAULT '',
    category     TEXT NOT NULL DEFAULT '',
    subcategory  TEXT NOT NULL DEFAULT '',
    expiration   INTEGER
);
CREATE INDEX IF NOT EXISTS idx_inventory_items_inventory ON inventory_items(inventory_id);
`
