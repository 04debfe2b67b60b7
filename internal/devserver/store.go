// Package devserver is a local stand-in for the hosted Aranya backend. It
// implements the REST contract the client consumes, so development and
// integration tests run without the real service.
package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, registers as "sqlite"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrEmailTaken    = errors.New("email already registered")
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrEntryNotFound = errors.New("journal entry not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	gender        TEXT NOT NULL DEFAULT '',
	year_of_birth INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	token      TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	expires_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS journal_entries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	mood       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS knowledge_hubs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS articles (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	hub_id  INTEGER NOT NULL REFERENCES knowledge_hubs(id) ON DELETE CASCADE,
	title   TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS discovery_questions (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	question TEXT NOT NULL,
	options  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_responses (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	question_id     INTEGER NOT NULL REFERENCES discovery_questions(id),
	selected_option INTEGER NOT NULL,
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// User is a stored account.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Gender       string
	YearOfBirth  int
}

// Entry is a stored journal entry.
type Entry struct {
	ID        int64  `json:"id"`
	Mood      string `json:"mood"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Hub is a knowledge-hub category.
type Hub struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Article belongs to a hub.
type Article struct {
	ID      int64  `json:"id"`
	HubID   int64  `json:"k_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Question is a discovery-questionnaire question.
type Question struct {
	ID       int64    `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Response is one submitted answer.
type Response struct {
	QuestionID     int64 `json:"question_id"`
	SelectedOption int   `json:"selected_option"`
}

// Store is the dev server's sqlite-backed storage. *sql.DB pools connections
// and is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed creates) the database at path, applies the
// schema, and seeds demo content.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("[OpenStore] create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("[OpenStore] open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("[OpenStore] ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("[OpenStore] apply schema: %w", err)
	}

	store := &Store{db: db}
	if err := store.seed(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("[OpenStore] seed content: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// seed inserts demo hubs, articles, and questions on first run.
func (s *Store) seed(ctx context.Context) error {
	var hubs int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_hubs`).Scan(&hubs); err != nil {
		return err
	}
	if hubs > 0 {
		return nil
	}

	seedHubs := []struct {
		name, description string
		articles          [][2]string
	}{
		{"Mindfulness", "Practices for staying present.", [][2]string{
			{"Starting a breath practice", "Two minutes of counted breathing, twice a day."},
			{"Body scans before sleep", "A slow scan from toes to crown settles the nervous system."},
		}},
		{"Sleep", "Understanding and improving rest.", [][2]string{
			{"Why sleep debt compounds", "Chronic short sleep is not repaid by one long night."},
		}},
		{"Journaling", "Writing as a wellness tool.", [][2]string{
			{"Prompts for hard days", "Three questions to ask when the page stays blank."},
		}},
	}
	for _, hub := range seedHubs {
		result, err := s.db.ExecContext(ctx,
			`INSERT INTO knowledge_hubs (name, description) VALUES (?, ?)`, hub.name, hub.description)
		if err != nil {
			return err
		}
		hubID, err := result.LastInsertId()
		if err != nil {
			return err
		}
		for _, article := range hub.articles {
			if _, err := s.db.ExecContext(ctx,
				`INSERT INTO articles (hub_id, title, content) VALUES (?, ?, ?)`,
				hubID, article[0], article[1]); err != nil {
				return err
			}
		}
	}

	questions := []struct {
		question string
		options  []string
	}{
		{"How would you describe your sleep lately?", []string{"Restful", "Inconsistent", "Poor"}},
		{"How often do you feel overwhelmed?", []string{"Rarely", "Weekly", "Most days"}},
		{"What draws you to a mindfulness practice?", []string{"Calm", "Focus", "Better habits"}},
	}
	for _, q := range questions {
		encoded, err := json.Marshal(q.options)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO discovery_questions (question, options) VALUES (?, ?)`,
			q.question, string(encoded)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, first_name, last_name, gender, year_of_birth)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.Gender, user.YearOfBirth)
	if err != nil {
		message := err.Error()
		switch {
		case strings.Contains(message, "users.username"):
			return ErrUsernameTaken
		case strings.Contains(message, "users.email"):
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UserByLogin resolves an account by username or email.
func (s *Store) UserByLogin(ctx context.Context, identifier string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, first_name, last_name, gender, year_of_birth
		FROM users WHERE username = ? OR email = ?`, identifier, identifier))
}

func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, first_name, last_name, gender, year_of_birth
		FROM users WHERE id = ?`, id))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.Gender, &user.YearOfBirth)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

// SaveRefreshToken stores a refresh token, replacing any prior token for the
// user so one refresh token is live per account.
func (s *Store) SaveRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, userID, expiresAt); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// RefreshTokenUser returns the user a live refresh token belongs to.
func (s *Store) RefreshTokenUser(ctx context.Context, token string, now time.Time) (string, error) {
	var userID string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, expires_at FROM refresh_tokens WHERE token = ?`, token).
		Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup refresh token: %w", err)
	}
	if now.After(expiresAt) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = ?`, token)
		return "", ErrTokenNotFound
	}
	return userID, nil
}

func (s *Store) DeleteRefreshTokensForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID)
	return err
}

// EntriesByUser lists the user's journal, newest first. A non-empty search
// matches the entry date or content.
func (s *Store) EntriesByUser(ctx context.Context, userID, search string) ([]Entry, error) {
	query := `
		SELECT id, mood, content, created_at FROM journal_entries
		WHERE user_id = ?`
	args := []any{userID}
	if search != "" {
		query += ` AND (date(created_at) = ? OR content LIKE ?)`
		args = append(args, search, "%"+search+"%")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.Mood, &entry.Content, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) CreateEntry(ctx context.Context, userID, mood, content string) (*Entry, error) {
	entry := &Entry{Mood: mood, Content: content}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO journal_entries (user_id, mood, content) VALUES (?, ?, ?)
		RETURNING id, created_at`, userID, mood, content).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create journal entry: %w", err)
	}
	return entry, nil
}

func (s *Store) UpdateEntry(ctx context.Context, userID string, id int64, mood, content string) (*Entry, error) {
	entry := &Entry{ID: id, Mood: mood, Content: content}
	err := s.db.QueryRowContext(ctx, `
		UPDATE journal_entries SET mood = ?, content = ?
		WHERE id = ? AND user_id = ?
		RETURNING created_at`, mood, content, id, userID).
		Scan(&entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update journal entry: %w", err)
	}
	return entry, nil
}

func (s *Store) DeleteEntry(ctx context.Context, userID string, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM journal_entries WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete journal entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *Store) Hubs(ctx context.Context) ([]Hub, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description FROM knowledge_hubs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list hubs: %w", err)
	}
	defer rows.Close()

	hubs := []Hub{}
	for rows.Next() {
		var hub Hub
		if err := rows.Scan(&hub.ID, &hub.Name, &hub.Description); err != nil {
			return nil, fmt.Errorf("scan hub: %w", err)
		}
		hubs = append(hubs, hub)
	}
	return hubs, rows.Err()
}

func (s *Store) Articles(ctx context.Context, hubID int64, search string) ([]Article, error) {
	query := `SELECT id, hub_id, title, content FROM articles WHERE 1=1`
	args := []any{}
	if hubID != 0 {
		query += ` AND hub_id = ?`
		args = append(args, hubID)
	}
	if search != "" {
		query += ` AND (title LIKE ? OR content LIKE ?)`
		args = append(args, "%"+search+"%", "%"+search+"%")
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	articles := []Article{}
	for rows.Next() {
		var article Article
		if err := rows.Scan(&article.ID, &article.HubID, &article.Title, &article.Content); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

func (s *Store) Questions(ctx context.Context) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, question, options FROM discovery_questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	questions := []Question{}
	for rows.Next() {
		var question Question
		var encodedOptions string
		if err := rows.Scan(&question.ID, &question.Question, &encodedOptions); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal([]byte(encodedOptions), &question.Options); err != nil {
			return nil, fmt.Errorf("decode question options: %w", err)
		}
		questions = append(questions, question)
	}
	return questions, rows.Err()
}

func (s *Store) SaveResponses(ctx context.Context, userID string, responses []Response) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin responses transaction: %w", err)
	}
	defer tx.Rollback()

	for _, response := range responses {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_responses (user_id, question_id, selected_option) VALUES (?, ?, ?)`,
			userID, response.QuestionID, response.SelectedOption); err != nil {
			return fmt.Errorf("store response: %w", err)
		}
	}
	return tx.Commit()
}
