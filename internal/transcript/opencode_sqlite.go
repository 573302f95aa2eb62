package transcript

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	_ "modernc.org/sqlite" // register sqlite driver
)

// SQLite opencode backend. Newer tool versions hold sessions in normalized
// tables whose rows pair id/timestamp columns with a JSON payload column.
// Reads are strictly read-only and scoped to one session; column values win
// over payload fields with the same name.

func openReadOnly(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath+"?mode=ro&_pragma=query_only(on)")
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}
	return db, nil
}

func (r *OpencodeReader) readSQLiteSession(dbPath, sessionID string) ([]Event, error) {
	db, err := openReadOnly(dbPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.Query(
		`SELECT id, time_created, data FROM message WHERE session_id = ? ORDER BY time_created, rowid`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	seq := 0
	for rows.Next() {
		var id string
		var created int64
		var payload []byte
		if err := rows.Scan(&id, &created, &payload); err != nil {
			return nil, err
		}

		var msg rawMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Printf("transcript: skipping malformed message row %s: %v", id, err)
			continue
		}
		// Normalized columns take precedence over the payload.
		msg.ID = id
		msg.SessionID = sessionID
		if created != 0 {
			msg.Time.Created = created
		}

		parts, err := r.readSQLiteParts(db, id)
		if err != nil {
			return nil, err
		}
		events = append(events, normalizeMessage(msg, parts, seq))
		seq++
	}
	return events, rows.Err()
}

func (r *OpencodeReader) readSQLiteParts(db *sql.DB, messageID string) ([]rawPart, error) {
	rows, err := db.Query(
		`SELECT id, data FROM part WHERE message_id = ? ORDER BY rowid`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying parts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var parts []rawPart
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var p rawPart
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("transcript: skipping malformed part row %s: %v", id, err)
			continue
		}
		p.ID = id
		p.MessageID = messageID
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

func (r *OpencodeReader) listSQLiteSessions(dbPath string) ([]SessionRef, error) {
	db, err := openReadOnly(dbPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.Query(`SELECT id, directory, time_updated, data FROM session`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var refs []SessionRef
	for rows.Next() {
		var id string
		var directory sql.NullString
		var updated sql.NullInt64
		var payload []byte
		if err := rows.Scan(&id, &directory, &updated, &payload); err != nil {
			return nil, err
		}

		var info rawSession
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &info); err != nil {
				log.Printf("transcript: skipping malformed session row %s: %v", id, err)
				continue
			}
		}
		info.ID = id
		if directory.Valid && directory.String != "" {
			info.Directory = directory.String
		}
		if updated.Valid && updated.Int64 != 0 {
			info.Time.Updated = updated.Int64
		}

		refs = append(refs, SessionRef{
			SessionID:  info.ID,
			FilePath:   dbPath,
			WorkingDir: info.Directory,
			UpdatedAt:  info.Time.updatedTime(),
		})
	}
	return refs, rows.Err()
}
