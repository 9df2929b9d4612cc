package sqlite

// Schema notes:
//
//   - Natural keys are case-insensitive. Each keyed table carries a
//     STORED generated value_lower/name_lower column backed by a unique
//     index, so INSERT ... ON CONFLICT can target the key directly.
//   - nodes.parent_key folds NULL parents to -1 (null-safe parent
//     comparison): two roots with the same value collide, homonymous
//     siblings under different parents do not.
//   - Open-version uniqueness for taxonomy and mapping version chains
//     is enforced with partial unique indexes over to_ts IS NULL.
//   - node_types seeds id -1, the reserved N/A placeholder type.
const schema = `
CREATE TABLE IF NOT EXISTS loads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    customer_id TEXT NOT NULL DEFAULT '',
    taxonomy_id TEXT NOT NULL DEFAULT '',
    taxonomy_type TEXT NOT NULL CHECK(taxonomy_type IN ('master', 'customer')),
    load_type TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'in_progress',
    row_count INTEGER NOT NULL DEFAULT 0,
    details TEXT NOT NULL DEFAULT '{}',
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    ended_at DATETIME
);

CREATE TABLE IF NOT EXISTS raw_rows (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    load_id INTEGER NOT NULL REFERENCES loads(id),
    customer_id TEXT NOT NULL DEFAULT '',
    taxonomy_id TEXT NOT NULL DEFAULT '',
    doc TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'in_progress',
    active INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_raw_rows_load ON raw_rows(load_id);

CREATE TABLE IF NOT EXISTS taxonomies (
    customer_id TEXT NOT NULL,
    taxonomy_id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    taxonomy_type TEXT NOT NULL CHECK(taxonomy_type IN ('master', 'customer')),
    status TEXT NOT NULL DEFAULT 'active',
    last_load_id INTEGER,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (customer_id, taxonomy_id)
);

CREATE TABLE IF NOT EXISTS node_types (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    name_lower TEXT GENERATED ALWAYS AS (lower(name)) STORED,
    load_id INTEGER,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_node_types_name ON node_types(name_lower);

INSERT OR IGNORE INTO node_types (id, name) VALUES (-1, 'N/A');

CREATE TABLE IF NOT EXISTS attribute_types (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    name_lower TEXT GENERATED ALWAYS AS (lower(name)) STORED,
    load_id INTEGER,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_attribute_types_name ON attribute_types(name_lower);

CREATE TABLE IF NOT EXISTS nodes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    node_type_id INTEGER NOT NULL REFERENCES node_types(id),
    taxonomy_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    parent_id INTEGER REFERENCES nodes(id),
    parent_key INTEGER GENERATED ALWAYS AS (ifnull(parent_id, -1)) STORED,
    value TEXT NOT NULL,
    value_lower TEXT GENERATED ALWAYS AS (lower(value)) STORED,
    profession TEXT NOT NULL DEFAULT '',
    level INTEGER NOT NULL CHECK(level >= 0),
    status TEXT NOT NULL DEFAULT 'active',
    load_id INTEGER NOT NULL,
    row_id INTEGER,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_natural
    ON nodes(taxonomy_id, node_type_id, customer_id, parent_key, value_lower);
CREATE INDEX IF NOT EXISTS idx_nodes_tax_level ON nodes(taxonomy_id, customer_id, level, status);
CREATE INDEX IF NOT EXISTS idx_nodes_load ON nodes(load_id);

CREATE TABLE IF NOT EXISTS node_attributes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    node_id INTEGER NOT NULL REFERENCES nodes(id),
    attribute_type_id INTEGER NOT NULL REFERENCES attribute_types(id),
    value TEXT NOT NULL,
    value_lower TEXT GENERATED ALWAYS AS (lower(value)) STORED,
    status TEXT NOT NULL DEFAULT 'active',
    load_id INTEGER NOT NULL,
    row_id INTEGER,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_node_attributes_natural
    ON node_attributes(node_id, attribute_type_id, value_lower);
CREATE INDEX IF NOT EXISTS idx_node_attributes_load ON node_attributes(load_id);

CREATE TABLE IF NOT EXISTS taxonomy_versions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    customer_id TEXT NOT NULL,
    taxonomy_id TEXT NOT NULL,
    version_number INTEGER NOT NULL,
    change_type TEXT NOT NULL DEFAULT '',
    affected_nodes TEXT NOT NULL DEFAULT '[]',
    affected_attributes TEXT NOT NULL DEFAULT '[]',
    remapping INTEGER NOT NULL DEFAULT 0,
    processed INTEGER NOT NULL DEFAULT 0,
    new_count INTEGER NOT NULL DEFAULT 0,
    changed INTEGER NOT NULL DEFAULT 0,
    unchanged INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    process_status TEXT NOT NULL DEFAULT '',
    from_ts DATETIME NOT NULL,
    to_ts DATETIME,
    load_id INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tax_versions_number
    ON taxonomy_versions(customer_id, taxonomy_id, version_number);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tax_versions_open
    ON taxonomy_versions(customer_id, taxonomy_id) WHERE to_ts IS NULL;

CREATE TABLE IF NOT EXISTS mapping_rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    command TEXT NOT NULL CHECK(command IN ('equals', 'contains', 'startswith', 'endswith', 'regex')),
    pattern TEXT NOT NULL DEFAULT '',
    ai_flag INTEGER NOT NULL DEFAULT 0,
    human_flag INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rule_assignments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    rule_id INTEGER NOT NULL REFERENCES mapping_rules(id),
    master_node_type_id INTEGER NOT NULL,
    child_node_type_id INTEGER NOT NULL,
    priority INTEGER NOT NULL DEFAULT 100,
    enabled INTEGER NOT NULL DEFAULT 1
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_rule_assignments_natural
    ON rule_assignments(rule_id, master_node_type_id, child_node_type_id);
CREATE INDEX IF NOT EXISTS idx_rule_assignments_child
    ON rule_assignments(child_node_type_id, enabled, priority);

CREATE TABLE IF NOT EXISTS mappings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    rule_id INTEGER NOT NULL REFERENCES mapping_rules(id),
    master_node_id INTEGER NOT NULL REFERENCES nodes(id),
    child_node_id INTEGER NOT NULL REFERENCES nodes(id),
    confidence INTEGER NOT NULL DEFAULT 0 CHECK(confidence >= 0 AND confidence <= 100),
    status TEXT NOT NULL DEFAULT 'active',
    created_by TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_mappings_active_child
    ON mappings(child_node_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_mappings_master ON mappings(master_node_id, status);

CREATE TABLE IF NOT EXISTS mapping_versions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    mapping_id INTEGER NOT NULL REFERENCES mappings(id),
    version_number INTEGER NOT NULL,
    from_ts DATETIME NOT NULL,
    to_ts DATETIME,
    superseded_by INTEGER REFERENCES mappings(id),
    superseded_at DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_mapping_versions_number
    ON mapping_versions(mapping_id, version_number);
CREATE UNIQUE INDEX IF NOT EXISTS idx_mapping_versions_open
    ON mapping_versions(mapping_id) WHERE to_ts IS NULL;

CREATE TABLE IF NOT EXISTS gold_mappings (
    mapping_id INTEGER PRIMARY KEY,
    master_node_id INTEGER NOT NULL,
    child_node_id INTEGER NOT NULL,
    synced_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
