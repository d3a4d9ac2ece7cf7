package sqlite

const schema = `
	CREATE TABLE IF NOT EXISTS datasets (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		table_name TEXT NOT NULL UNIQUE,
		file_path  TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS queries (
		id          TEXT PRIMARY KEY,
		dataset_id  TEXT REFERENCES datasets(id),
		stage       TEXT NOT NULL,
		question    TEXT NOT NULL,
		sql         TEXT NOT NULL,
		ok          INTEGER NOT NULL,
		error       TEXT,
		rows        INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_queries_created_at ON queries(created_at);`

const queryInsertDataset = `
	INSERT INTO datasets (id, name, table_name, file_path, created_at)
	VALUES (?, ?, ?, ?, ?)`

const queryListDatasets = `
	SELECT id, name, table_name, file_path, created_at
	FROM datasets
	ORDER BY created_at DESC`

const queryGetDataset = `
	SELECT id, name, table_name, file_path, created_at
	FROM datasets
	WHERE id = ?`

const queryInsertQuery = `
	INSERT INTO queries (id, dataset_id, stage, question, sql, ok, error, rows, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const queryListQueries = `
	SELECT id, dataset_id, question, sql, ok, error, created_at
	FROM queries
	ORDER BY created_at DESC
	LIMIT ?`
