// Package layout classifies an agent's on-disk storage footprint into one of
// the known layout variants. The same tool can persist sessions as a legacy
// project tree, a flat id-keyed tree, or a single SQLite database depending
// on its version, and upgrades can leave both file layouts behind at once.
package layout

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Layout is a storage layout variant.
type Layout string

const (
	// Legacy is the directory-per-project, file-per-session tree.
	Legacy Layout = "legacy"
	// PostMigration is the flat session/, message/, part/ tree keyed by id.
	PostMigration Layout = "post-migration"
	// SQLite is a single relational file holding normalized tables.
	SQLite Layout = "sqlite"
	// Mixed means both legacy and post-migration trees are present,
	// which happens mid-upgrade.
	Mixed Layout = "mixed"
	// Unknown means no recognizable footprint was found.
	Unknown Layout = "unknown"
)

const (
	// markerFile holds a bare integer migration version, not structured data.
	markerFile = "migration"
	// databaseFile sits one directory above the storage root.
	databaseFile = "opencode.db"

	legacyDir = "project"
)

// postMigrationDirs are the subtrees that together form a complete
// post-migration layout.
var postMigrationDirs = [...]string{"session", "message", "part"}

// Detection is the result of probing a storage root.
type Detection struct {
	Layout  Layout
	Version int    // migration marker value, 0 when absent or unreadable
	DBPath  string // set when Layout == SQLite
}

// Detect probes the storage root read-only and classifies its layout.
// It never creates directories or files.
func Detect(root string) Detection {
	version := readMarker(filepath.Join(root, markerFile))

	migrated := hasCompleteTree(root)
	legacy := hasLegacyTree(root)
	dbPath := filepath.Join(filepath.Dir(root), databaseFile)
	hasDB := isRegularFile(dbPath)

	switch {
	case version > 0 && migrated:
		return Detection{Layout: PostMigration, Version: version}
	case legacy && migrated:
		return Detection{Layout: Mixed, Version: version}
	case hasDB && !legacy && !migrated:
		return Detection{Layout: SQLite, Version: version, DBPath: dbPath}
	case migrated:
		return Detection{Layout: PostMigration, Version: version}
	case legacy:
		return Detection{Layout: Legacy, Version: version}
	}
	return Detection{Layout: Unknown, Version: version}
}

// readMarker parses the bare-integer version marker. Any unreadable or
// malformed marker is treated as version 0, never an error.
func readMarker(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// hasCompleteTree reports whether all three post-migration subtrees exist.
func hasCompleteTree(root string) bool {
	for _, d := range postMigrationDirs {
		if !isDir(filepath.Join(root, d)) {
			return false
		}
	}
	return true
}

// hasLegacyTree reports whether the legacy project tree exists and holds at
// least one project directory.
func hasLegacyTree(root string) bool {
	entries, err := os.ReadDir(filepath.Join(root, legacyDir))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
