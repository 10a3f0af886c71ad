package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// VisionCacheEntry represents cached visual features for one image.
type VisionCacheEntry struct {
	Labels      []string `json:"labels"`
	Texts       []string `json:"texts"`
	Objects     []string `json:"objects"`
	Logos       []string `json:"logos"`
	WebEntities []string `json:"webEntities"`
}

// EstimateRecord is one finished price estimate kept for history.
type EstimateRecord struct {
	ID           string    `json:"id"`
	ImageRef     string    `json:"imageRef"`
	Title        string    `json:"title"`
	AvgPrice     *string   `json:"avgPrice"`
	MedianPrice  *string   `json:"medianPrice"`
	Confidence   string    `json:"confidence"`
	Outcome      string    `json:"outcome"`
	SearchQuery  string    `json:"searchQuery"`
	ListingCount int       `json:"listingCount"`
	UserID       int64     `json:"userId,omitempty"` // Telegram user, 0 for API and CLI estimates
	CreatedAt    time.Time `json:"createdAt"`
}

// AllowedUser represents a user in the whitelist.
type AllowedUser struct {
	TelegramID int64
	AddedAt    time.Time
	AddedBy    int64
}

// Store defines the persistence operations used by the application.
type Store interface {
	Close() error

	// Vision cache methods
	GetVisionCache(key string) (*VisionCacheEntry, error)
	SetVisionCache(key string, entry *VisionCacheEntry) error
	PruneVisionCache(maxAge time.Duration) (int64, error)

	// Estimate history methods
	SaveEstimate(record *EstimateRecord) error
	RecentEstimates(limit int) ([]EstimateRecord, error)
	RecentEstimatesByUser(userID int64, limit int) ([]EstimateRecord, error)

	// Allowed users methods
	IsUserAllowed(telegramID int64) (bool, error)
	AddAllowedUser(telegramID, addedBy int64) error
	RemoveAllowedUser(telegramID int64) error
	GetAllowedUsers() ([]AllowedUser, error)
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-based store at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Configure SQLite with WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases shared across queries.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	if dbPath != ":memory:" {
		if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("dbPath", dbPath).Msg("failed to restrict database permissions")
		}
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	visionCacheQuery := `
	CREATE TABLE IF NOT EXISTS vision_cache (
		cache_key TEXT PRIMARY KEY,
		features TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(visionCacheQuery); err != nil {
		return fmt.Errorf("failed to create vision_cache table: %w", err)
	}

	estimatesQuery := `
	CREATE TABLE IF NOT EXISTS estimates (
		id TEXT PRIMARY KEY,
		image_ref TEXT NOT NULL,
		title TEXT NOT NULL,
		avg_price TEXT,
		median_price TEXT,
		confidence TEXT NOT NULL,
		outcome TEXT NOT NULL,
		search_query TEXT NOT NULL,
		listing_count INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_estimates_created_at ON estimates(created_at);
	`
	if _, err := s.db.Exec(estimatesQuery); err != nil {
		return fmt.Errorf("failed to create estimates table: %w", err)
	}

	// Migration: add user_id column if it doesn't exist (for existing databases)
	if _, err := s.db.Exec("ALTER TABLE estimates ADD COLUMN user_id INTEGER NOT NULL DEFAULT 0"); err != nil {
		// "duplicate column name" error is expected if column already exists
		if !strings.Contains(err.Error(), "duplicate column name") {
			return fmt.Errorf("failed to add user_id column: %w", err)
		}
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_estimates_user_id ON estimates(user_id, created_at)"); err != nil {
		return fmt.Errorf("failed to create estimates user index: %w", err)
	}

	allowedUsersQuery := `
	CREATE TABLE IF NOT EXISTS allowed_users (
		telegram_id INTEGER PRIMARY KEY,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		added_by INTEGER
	);
	`
	if _, err := s.db.Exec(allowedUsersQuery); err != nil {
		return fmt.Errorf("failed to create allowed_users table: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetVisionCache retrieves cached features.
// Returns nil, nil if nothing is cached for key.
func (s *SQLiteStore) GetVisionCache(key string) (*VisionCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRow("SELECT features FROM vision_cache WHERE cache_key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vision cache: %w", err)
	}

	var entry VisionCacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached features: %w", err)
	}
	return &entry, nil
}

// SetVisionCache stores features in the cache, replacing any previous entry.
func (s *SQLiteStore) SetVisionCache(key string, entry *VisionCacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO vision_cache (cache_key, features, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			features = excluded.features,
			created_at = excluded.created_at
	`, key, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to cache vision result: %w", err)
	}
	return nil
}

// PruneVisionCache deletes cache entries older than maxAge and returns how
// many were removed.
func (s *SQLiteStore) PruneVisionCache(maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := s.db.Exec("DELETE FROM vision_cache WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune vision cache: %w", err)
	}
	return res.RowsAffected()
}

// SaveEstimate stores an estimate. ID and CreatedAt are filled in when empty.
func (s *SQLiteStore) SaveEstimate(record *EstimateRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO estimates (id, image_ref, title, avg_price, median_price, confidence, outcome, search_query, listing_count, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.ImageRef, record.Title, nullString(record.AvgPrice), nullString(record.MedianPrice),
		record.Confidence, record.Outcome, record.SearchQuery, record.ListingCount, record.UserID, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save estimate: %w", err)
	}
	return nil
}

// RecentEstimates returns up to limit estimates, newest first.
func (s *SQLiteStore) RecentEstimates(limit int) ([]EstimateRecord, error) {
	return s.queryEstimates(`
		SELECT id, image_ref, title, avg_price, median_price, confidence, outcome, search_query, listing_count, user_id, created_at
		FROM estimates
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
}

// RecentEstimatesByUser returns up to limit estimates made for userID,
// newest first.
func (s *SQLiteStore) RecentEstimatesByUser(userID int64, limit int) ([]EstimateRecord, error) {
	return s.queryEstimates(`
		SELECT id, image_ref, title, avg_price, median_price, confidence, outcome, search_query, listing_count, user_id, created_at
		FROM estimates
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
}

func (s *SQLiteStore) queryEstimates(query string, args ...any) ([]EstimateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query estimates: %w", err)
	}
	defer rows.Close()

	records := []EstimateRecord{}
	for rows.Next() {
		var r EstimateRecord
		var avg, median sql.NullString
		if err := rows.Scan(&r.ID, &r.ImageRef, &r.Title, &avg, &median, &r.Confidence, &r.Outcome, &r.SearchQuery, &r.ListingCount, &r.UserID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}
		if avg.Valid {
			r.AvgPrice = &avg.String
		}
		if median.Valid {
			r.MedianPrice = &median.String
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// IsUserAllowed checks if a user is in the whitelist.
func (s *SQLiteStore) IsUserAllowed(telegramID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM allowed_users WHERE telegram_id = ?",
		telegramID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check allowed user: %w", err)
	}

	return count > 0, nil
}

// AddAllowedUser adds a user to the whitelist.
func (s *SQLiteStore) AddAllowedUser(telegramID, addedBy int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO allowed_users (telegram_id, added_by)
		VALUES (?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			added_by = excluded.added_by,
			added_at = CURRENT_TIMESTAMP
	`, telegramID, addedBy)
	if err != nil {
		return fmt.Errorf("failed to add allowed user: %w", err)
	}
	return nil
}

// RemoveAllowedUser removes a user from the whitelist.
func (s *SQLiteStore) RemoveAllowedUser(telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM allowed_users WHERE telegram_id = ?", telegramID)
	if err != nil {
		return fmt.Errorf("failed to remove allowed user: %w", err)
	}
	return nil
}

// GetAllowedUsers returns all users in the whitelist.
func (s *SQLiteStore) GetAllowedUsers() ([]AllowedUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT telegram_id, added_at, added_by FROM allowed_users ORDER BY added_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query allowed users: %w", err)
	}
	defer rows.Close()

	var users []AllowedUser
	for rows.Next() {
		var user AllowedUser
		if err := rows.Scan(&user.TelegramID, &user.AddedAt, &user.AddedBy); err != nil {
			return nil, fmt.Errorf("failed to scan allowed user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
