package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Database wraps a *sql.DB providing higher-level helper methods for
// interacting with the application's persistent store. It is safe for
// concurrent use because the underlying *sql.DB is concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	// Prepared statements for the hot scan path
	insertTrackStmt     *sql.Stmt
	deleteAlbumTracks   *sql.Stmt
	albumByFolderStmt   *sql.Stmt
	artistByNameStmt    *sql.Stmt
	artistByMBIDStmt    *sql.Stmt
	activeDownloadsStmt *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at the provided path
// and ensures all required tables and indices exist. It also applies
// lightweight performance-oriented pragmas (WAL, cache sizing). Caller
// should Close() it when finished.
func NewDatabase(dbPath string) (*Database, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works better with fewer connections
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA auto_vacuum=INCREMENTAL;",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return db, nil
}

// createTables creates tables and indices if they do not already exist,
// then executes any migrations. Idempotent and safe to call repeatedly.
func (db *Database) createTables() error {
	artistsTable := `
	CREATE TABLE IF NOT EXISTS artists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		musicbrainz_id TEXT UNIQUE,
		sort_name TEXT,
		disambiguation TEXT,
		country TEXT,
		discography_fetched BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`

	albumsTable := `
	CREATE TABLE IF NOT EXISTS albums (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		musicbrainz_id TEXT UNIQUE,
		artist_id INTEGER REFERENCES artists(id),
		release_date TEXT,
		release_type TEXT,
		cover_art_url TEXT,
		folder_path TEXT UNIQUE,
		track_count INTEGER,
		is_owned BOOLEAN NOT NULL DEFAULT 0,
		is_wishlisted BOOLEAN NOT NULL DEFAULT 0,
		is_scanned BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`

	tracksTable := `
	CREATE TABLE IF NOT EXISTS tracks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		album_id INTEGER NOT NULL REFERENCES albums(id),
		title TEXT NOT NULL,
		track_number INTEGER,
		disc_number INTEGER NOT NULL DEFAULT 1,
		duration_seconds INTEGER,
		file_path TEXT NOT NULL UNIQUE,
		file_format TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`

	downloadsTable := `
	CREATE TABLE IF NOT EXISTS downloads (
		id TEXT PRIMARY KEY,
		album_id INTEGER REFERENCES albums(id),
		artist_name TEXT NOT NULL,
		album_title TEXT NOT NULL,
		status TEXT NOT NULL,
		slskd_username TEXT,
		total_files INTEGER NOT NULL DEFAULT 0,
		completed_files INTEGER NOT NULL DEFAULT 0,
		total_bytes INTEGER NOT NULL DEFAULT 0,
		completed_bytes INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		started_at DATETIME,
		completed_at DATETIME
	);`

	scanStatusTable := `
	CREATE TABLE IF NOT EXISTS scan_status (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		status TEXT NOT NULL DEFAULT 'idle',
		current_folder TEXT,
		total_folders INTEGER NOT NULL DEFAULT 0,
		scanned_folders INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME,
		completed_at DATETIME,
		error_message TEXT
	);`

	scanScheduleTable := `
	CREATE TABLE IF NOT EXISTS scan_schedule (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		enabled BOOLEAN NOT NULL DEFAULT 1,
		interval_hours INTEGER NOT NULL DEFAULT 24,
		last_scan_at DATETIME,
		next_scan_at DATETIME
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_artists_name ON artists(name);",
		"CREATE INDEX IF NOT EXISTS idx_albums_title ON albums(title);",
		"CREATE INDEX IF NOT EXISTS idx_albums_artist ON albums(artist_id);",
		"CREATE INDEX IF NOT EXISTS idx_albums_owned ON albums(is_owned);",
		"CREATE INDEX IF NOT EXISTS idx_albums_wishlisted ON albums(is_wishlisted);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_album ON tracks(album_id, disc_number, track_number);",
		"CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);",
		"CREATE INDEX IF NOT EXISTS idx_downloads_album ON downloads(album_id);",
		"CREATE INDEX IF NOT EXISTS idx_downloads_created ON downloads(created_at);",
	}

	tables := []string{artistsTable, albumsTable, tracksTable, downloadsTable, scanStatusTable, scanScheduleTable}
	for _, table := range tables {
		if _, err := db.conn.Exec(table); err != nil {
			return err
		}
	}

	for _, index := range indices {
		if _, err := db.conn.Exec(index); err != nil {
			return err
		}
	}

	return db.runMigrations()
}

// runMigrations performs incremental schema updates in-place. Each
// migration should be idempotent and safe to re-run; keep them light.
func (db *Database) runMigrations() error {
	// Migration 1: discography_fetched did not exist in early schemas
	var columnExists bool
	err := db.conn.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info('artists')
		WHERE name = 'discography_fetched'`).Scan(&columnExists)
	if err != nil {
		return err
	}
	if !columnExists {
		if _, err := db.conn.Exec("ALTER TABLE artists ADD COLUMN discography_fetched BOOLEAN NOT NULL DEFAULT 0"); err != nil {
			return err
		}
		db.logger.Info("Added discography_fetched column to artists table")
	}

	return nil
}

// prepareStatements prepares statements used on every scanned folder or
// progress poll.
func (db *Database) prepareStatements() error {
	var err error

	db.insertTrackStmt, err = db.conn.Prepare(`
		INSERT INTO tracks (album_id, title, track_number, disc_number, duration_seconds, file_path, file_format)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert track statement: %w", err)
	}

	db.deleteAlbumTracks, err = db.conn.Prepare(`DELETE FROM tracks WHERE album_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete album tracks statement: %w", err)
	}

	db.albumByFolderStmt, err = db.conn.Prepare(albumSelect + ` WHERE a.folder_path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare album by folder statement: %w", err)
	}

	db.artistByNameStmt, err = db.conn.Prepare(artistSelect + ` WHERE name = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare artist by name statement: %w", err)
	}

	db.artistByMBIDStmt, err = db.conn.Prepare(artistSelect + ` WHERE musicbrainz_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare artist by mbid statement: %w", err)
	}

	db.activeDownloadsStmt, err = db.conn.Prepare(downloadSelect + `
		WHERE album_id = ? AND status IN ('pending', 'searching', 'downloading')`)
	if err != nil {
		return fmt.Errorf("failed to prepare active downloads statement: %w", err)
	}

	return nil
}

// Close closes the underlying database connection and prepared statements.
func (db *Database) Close() error {
	statements := []*sql.Stmt{
		db.insertTrackStmt,
		db.deleteAlbumTracks,
		db.albumByFolderStmt,
		db.artistByNameStmt,
		db.artistByMBIDStmt,
		db.activeDownloadsStmt,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				db.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
