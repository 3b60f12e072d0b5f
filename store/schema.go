package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension; changing it requires dropping and
// rebuilding vec_fragments (see Store.ensureEmbeddingDim).
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Content-addressable blobs. Immutable; garbage collected when no
-- document, active or inactive, references them.
CREATE TABLE IF NOT EXISTS content (
    hash TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Document registry. (collection, path) is unique across active and
-- inactive rows so deletions reactivate rather than re-insert.
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    collection TEXT NOT NULL,
    path TEXT NOT NULL,
    title TEXT NOT NULL,
    hash TEXT NOT NULL REFERENCES content(hash),
    content_hash TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    modified_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    active INTEGER NOT NULL DEFAULT 1,
    content_type TEXT NOT NULL DEFAULT 'note',
    domain TEXT,
    workstream TEXT,
    tags JSON,
    review_by TEXT,
    confidence REAL NOT NULL DEFAULT 0.5,
    access_count INTEGER NOT NULL DEFAULT 0,
    amem_keywords JSON,
    amem_tags JSON,
    amem_context TEXT,
    observation_type TEXT,
    observation_facts JSON,
    observation_narrative TEXT,
    observation_concepts JSON,
    files_read JSON,
    files_modified JSON,
    UNIQUE(collection, path)
);

-- Contentless FTS index over documents. Populated and kept in sync by
-- triggers below rather than content='documents' because the body
-- text lives in the content table, keyed by hash, not inline on the
-- documents row.
CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    path,
    title,
    body,
    content='',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
    INSERT INTO documents_fts(rowid, path, title, body)
    VALUES (new.id, new.path, new.title, (SELECT body FROM content WHERE hash = new.hash));
END;
CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, path, title, body)
    VALUES ('delete', old.id, old.path, old.title, '');
END;
CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, path, title, body)
    VALUES ('delete', old.id, old.path, old.title, '');
    INSERT INTO documents_fts(rowid, path, title, body)
    VALUES (new.id, new.path, new.title, (SELECT body FROM content WHERE hash = new.hash));
END;

-- Embeddable fragments of a document (seq=0 is the whole-document
-- fragment; later sequences are section/list/code/frontmatter/fact
-- /narrative slices per the splitter).
CREATE TABLE IF NOT EXISTS fragments (
    id INTEGER PRIMARY KEY,
    hash TEXT NOT NULL,
    seq INTEGER NOT NULL,
    pos INTEGER NOT NULL DEFAULT 0,
    fragment_type TEXT NOT NULL DEFAULT 'full',
    fragment_label TEXT,
    model TEXT,
    embedded_at DATETIME,
    UNIQUE(hash, seq)
);

-- Vector index via sqlite-vec. Looked up strictly in two steps from
-- Go (see Store.SearchVec): this virtual table is never joined with
-- regular tables in the same SQL statement.
CREATE VIRTUAL TABLE IF NOT EXISTS vec_fragments USING vec0(
    fragment_id INTEGER PRIMARY KEY,
    embedding float[%d]
);

-- Relation graph: temporal, semantic, causal, supporting, contradicts,
-- entity edges between documents.
CREATE TABLE IF NOT EXISTS relations (
    source_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    target_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    relation_type TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    metadata JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (source_id, target_id, relation_type)
);

-- Append-only evolution history for A-MEM notes.
CREATE TABLE IF NOT EXISTS evolutions (
    id INTEGER PRIMARY KEY,
    memory_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    triggered_by INTEGER REFERENCES documents(id),
    version INTEGER NOT NULL,
    previous_keywords JSON,
    previous_context TEXT,
    new_keywords JSON,
    new_context TEXT,
    reasoning TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Intent classification cache, 1h TTL enforced by caller.
CREATE TABLE IF NOT EXISTS intent_cache (
    query_hash TEXT PRIMARY KEY,
    query_text TEXT NOT NULL,
    intent TEXT NOT NULL,
    confidence REAL NOT NULL,
    temporal_start TEXT,
    temporal_end TEXT,
    cached_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Agent sessions and per-hook usage/injection tracking (feedback loop).
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    ended_at DATETIME,
    handoff_path TEXT,
    machine TEXT,
    files_changed JSON,
    summary TEXT
);

CREATE TABLE IF NOT EXISTS usage_records (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
    hook_name TEXT NOT NULL,
    injected_paths JSON,
    estimated_tokens INTEGER NOT NULL DEFAULT 0,
    was_referenced INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS hook_dedupe (
    hook_name TEXT NOT NULL,
    prompt_hash TEXT NOT NULL,
    last_seen_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    preview TEXT,
    PRIMARY KEY (hook_name, prompt_hash)
);

-- Response/LLM result cache for expand_query and rerank (C2).
CREATE TABLE IF NOT EXISTS llm_cache (
    cache_key TEXT PRIMARY KEY,
    operation TEXT NOT NULL,
    value JSON NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
CREATE INDEX IF NOT EXISTS idx_documents_active ON documents(active);
CREATE INDEX IF NOT EXISTS idx_documents_content_type ON documents(content_type);
CREATE INDEX IF NOT EXISTS idx_documents_modified ON documents(modified_at);
CREATE INDEX IF NOT EXISTS idx_fragments_hash ON fragments(hash);
CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_id);
CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id);
CREATE INDEX IF NOT EXISTS idx_relations_type ON relations(relation_type);
CREATE INDEX IF NOT EXISTS idx_evolutions_memory ON evolutions(memory_id);
CREATE INDEX IF NOT EXISTS idx_usage_session ON usage_records(session_id);
CREATE INDEX IF NOT EXISTS idx_llm_cache_created ON llm_cache(created_at);
`, embeddingDim)
}
