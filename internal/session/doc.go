// Package session persists studio sessions: the uploaded or captured source,
// the ordered captured and stylized frame sequences, progress, and the last
// error surfaced to the user.
//
// Two Store backends exist. The SQLite store (WAL, busy retry, versioned
// schema) is the default for a single workstation; the PostgreSQL store backs
// deployments that share sessions between hosts. Open picks one from config.
package session
