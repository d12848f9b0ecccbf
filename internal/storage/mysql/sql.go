package mysql

// Every collection lives in its own table with the same shape:
//   id CHAR(36) PRIMARY KEY, doc JSON, created_at, updated_at.
// The table name is substituted from the collection whitelist, never from
// caller input.

const createDocSQL = `
INSERT INTO %s (id, doc)
VALUES (?, ?)
`

const getDocSQL = `
SELECT doc FROM %s WHERE id = ?
`

const listDocsSQL = `
SELECT id, doc FROM %s ORDER BY id
`

// Field equality over a top-level document field. The JSON path is built as
// a bind parameter ("$.field").
const queryFieldSQL = `
SELECT id, doc FROM %s
WHERE JSON_UNQUOTE(JSON_EXTRACT(doc, ?)) = ?
ORDER BY id
`

// JSON_MERGE_PATCH gives the per-document atomic merge-update the gateway
// contract promises: one UPDATE, no read-modify-write window.
const mergeDocSQL = `
UPDATE %s
SET doc = JSON_MERGE_PATCH(doc, ?), updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`

// Merge-write that creates the row when the id does not exist yet. Used for
// documents keyed by an externally assigned id.
const upsertDocSQL = `
INSERT INTO %s (id, doc)
VALUES (?, ?)
ON DUPLICATE KEY UPDATE
  doc        = JSON_MERGE_PATCH(doc, VALUES(doc)),
  updated_at = CURRENT_TIMESTAMP
`

const deleteDocSQL = `
DELETE FROM %s WHERE id = ?
`
