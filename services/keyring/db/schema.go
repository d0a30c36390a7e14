package db

const Schema = `
CREATE TABLE IF NOT EXISTS session (
    namespace    TEXT PRIMARY KEY,
    bearer_token TEXT NOT NULL,
    cookies      TEXT NOT NULL,
    updated_at   INTEGER NOT NULL
);
`
