package transcript

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// File-based opencode backends. Both trees store one JSON document per
// record; malformed individual documents are skipped and logged, never fatal
// to the whole read.

// readMigratedSession reads the flat id-keyed tree:
//
//	<root>/session/<sessionID>.json
//	<root>/message/<sessionID>/<messageID>.json
//	<root>/part/<messageID>/<partID>.json
func (r *OpencodeReader) readMigratedSession(sessionID string) ([]Event, error) {
	msgDir := filepath.Join(r.root, "message", sessionID)
	entries, err := os.ReadDir(msgDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var events []Event
	seq := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(msgDir, e.Name())
		var msg rawMessage
		if !decodeDoc(path, &msg) {
			continue
		}
		if msg.SessionID == "" {
			msg.SessionID = sessionID
		}
		parts := r.readParts(msg.ID)
		events = append(events, normalizeMessage(msg, parts, seq))
		seq++
	}
	return events, nil
}

// readParts loads all parts for one message, in directory order.
func (r *OpencodeReader) readParts(messageID string) []rawPart {
	partDir := filepath.Join(r.root, "part", messageID)
	entries, err := os.ReadDir(partDir)
	if err != nil {
		return nil
	}

	var parts []rawPart
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var p rawPart
		if decodeDoc(filepath.Join(partDir, e.Name()), &p) {
			parts = append(parts, p)
		}
	}
	return parts
}

func (r *OpencodeReader) listMigratedSessions() ([]SessionRef, error) {
	sessionDir := filepath.Join(r.root, "session")
	entries, err := os.ReadDir(sessionDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var refs []SessionRef
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(sessionDir, e.Name())
		var info rawSession
		if !decodeDoc(path, &info) {
			continue
		}
		if info.ID == "" {
			info.ID = strings.TrimSuffix(e.Name(), ".json")
		}
		refs = append(refs, SessionRef{
			SessionID:  info.ID,
			FilePath:   path,
			WorkingDir: info.Directory,
			UpdatedAt:  info.Time.updatedTime(),
		})
	}
	return refs, nil
}

// legacySessionDoc is the legacy single-document session file: the session
// info with every message and its parts inlined.
type legacySessionDoc struct {
	rawSession
	Messages []legacyMessage `json:"messages"`
}

type legacyMessage struct {
	rawMessage
	Parts []rawPart `json:"parts,omitempty"`
}

// readLegacySession scans the directory-per-project tree for the session
// file: <root>/project/<projectDir>/<sessionID>.json.
func (r *OpencodeReader) readLegacySession(sessionID string) ([]Event, error) {
	path, ok := r.findLegacySessionFile(sessionID)
	if !ok {
		return nil, nil
	}

	var doc legacySessionDoc
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var events []Event
	for seq, msg := range doc.Messages {
		if msg.ID == "" {
			log.Printf("transcript: skipping message without id in %s", path)
			continue
		}
		if msg.SessionID == "" {
			msg.SessionID = sessionID
		}
		events = append(events, normalizeMessage(msg.rawMessage, msg.Parts, seq))
	}
	return events, nil
}

func (r *OpencodeReader) findLegacySessionFile(sessionID string) (string, bool) {
	projectRoot := filepath.Join(r.root, "project")
	projects, err := os.ReadDir(projectRoot)
	if err != nil {
		return "", false
	}
	for _, p := range projects {
		if !p.IsDir() {
			continue
		}
		path := filepath.Join(projectRoot, p.Name(), sessionID+".json")
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}

func (r *OpencodeReader) listLegacySessions() ([]SessionRef, error) {
	projectRoot := filepath.Join(r.root, "project")
	projects, err := os.ReadDir(projectRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var refs []SessionRef
	for _, p := range projects {
		if !p.IsDir() {
			continue
		}
		dir := filepath.Join(projectRoot, p.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
				continue
			}
			path := filepath.Join(dir, f.Name())
			var doc rawSession
			if !decodeDoc(path, &doc) {
				continue
			}
			if doc.ID == "" {
				doc.ID = strings.TrimSuffix(f.Name(), ".json")
			}
			refs = append(refs, SessionRef{
				SessionID:  doc.ID,
				FilePath:   path,
				WorkingDir: doc.Directory,
				UpdatedAt:  doc.Time.updatedTime(),
			})
		}
	}
	return refs, nil
}

// decodeDoc reads and unmarshals one JSON document, logging and reporting
// false on any failure so the caller can skip the record.
func decodeDoc(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("transcript: reading %s: %v", path, err)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Printf("transcript: skipping malformed %s: %v", path, err)
		return false
	}
	return true
}
