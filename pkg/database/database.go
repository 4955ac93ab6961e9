package database

import (
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/argon2"

	"cam-station/pkg/config"
	"cam-station/pkg/models"
)

// argon2Params holds the parameters for the Argon2id hashing algorithm.
type argon2Params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

var params = &argon2Params{
	memory:      64 * 1024,
	iterations:  3,
	parallelism: 4,
	saltLength:  16,
	keyLength:   32,
}

var db *sql.DB

// InitDB initializes the database connection and creates the tables if they
// don't exist. Kept simple with sqlite for now, can migrate to a more robust
// solution later if needed. TIL SQLite needs CGO...
func InitDB() {
	dbPath := filepath.Join(config.AppConfig.DataDir, "cam-station.db")
	var err error
	db, err = sql.Open("sqlite3", dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	createUserTableSQL := `CREATE TABLE IF NOT EXISTS users (
		"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"username" TEXT NOT NULL UNIQUE,
		"password_hash" TEXT NOT NULL,
		"is_admin" INTEGER NOT NULL DEFAULT 0
	);`

	_, err = db.Exec(createUserTableSQL)
	if err != nil {
		log.Fatalf("Failed to create users table: %v", err)
	}
	log.Println("Database initialized and users table created successfully.")

	createCameraTableSQL := `CREATE TABLE IF NOT EXISTS cameras (
		"id" TEXT NOT NULL PRIMARY KEY,
		"name" TEXT NOT NULL,
		"url" TEXT NOT NULL,
		"username" TEXT NOT NULL DEFAULT '',
		"password" TEXT NOT NULL DEFAULT '',
		"created_at" DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	_, err = db.Exec(createCameraTableSQL)
	if err != nil {
		log.Fatalf("Failed to create cameras table: %v", err)
	}
	log.Println("Cameras table created successfully.")
}

// HashPassword generates an Argon2id hash of the password.
// The format is: $argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<hash>
func HashPassword(password string) (string, error) {
	salt := make([]byte, params.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, params.iterations, params.memory, params.parallelism, params.keyLength)

	// Encode salt and hash to base64
	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	// Format into standard string
	format := "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"
	return fmt.Sprintf(format, argon2.Version, params.memory, params.iterations, params.parallelism, b64Salt, b64Hash), nil
}

// CheckPasswordHash compares a password with an Argon2id hash.
func CheckPasswordHash(password, hash string) bool {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		log.Println("Warning: Invalid hash format provided to checkPasswordHash")
		return false
	}

	var version int
	_, err := fmt.Sscanf(parts[2], "v=%d", &version)
	if err != nil || version != argon2.Version {
		log.Println("Warning: Incompatible Argon2 version")
		return false
	}

	p := &argon2Params{}
	_, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism)
	if err != nil {
		log.Printf("Warning: Failed to parse Argon2 params: %v", err)
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.Printf("Warning: Failed to decode salt: %v", err)
		return false
	}
	p.saltLength = uint32(len(salt))

	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.Printf("Warning: Failed to decode hash: %v", err)
		return false
	}
	p.keyLength = uint32(len(decodedHash))

	comparisonHash := argon2.IDKey([]byte(password), salt, p.iterations, p.memory, p.parallelism, p.keyLength)

	// Use constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare(decodedHash, comparisonHash) == 1
}

// UserExists checks if a user exists in the database.
func UserExists(username string) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateUser creates a new user in the database.
func CreateUser(username, password string, isAdmin bool) error {
	exists, err := UserExists(username)
	if err != nil {
		return fmt.Errorf("failed to check if user exists: %w", err)
	}
	if exists {
		return fmt.Errorf("user '%s' already exists", username)
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = db.Exec("INSERT INTO users (username, password_hash, is_admin) VALUES (?, ?, ?)", username, passwordHash, isAdmin)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	log.Printf("Successfully created user: %s (Admin: %t)", username, isAdmin)
	return nil
}

// CheckUserCredentials verifies a user's credentials and returns the user object on success.
func CheckUserCredentials(username, password string) (*models.User, bool) {
	user, err := GetUserByUsername(username)
	if err != nil {
		log.Printf("Error retrieving user %s: %v", username, err)
		return nil, false
	}
	if user == nil {
		return nil, false // User not found
	}

	var passwordHash string
	err = db.QueryRow("SELECT password_hash FROM users WHERE username = ?", username).Scan(&passwordHash)
	if err != nil {
		log.Printf("Error querying for password hash of user %s: %v", username, err)
		return nil, false
	}

	if CheckPasswordHash(password, passwordHash) {
		return user, true
	}

	return nil, false
}

// GetUserByUsername retrieves a user from the database by their username.
func GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	var isAdminInt int
	err := db.QueryRow("SELECT id, username, is_admin FROM users WHERE username = ?", username).Scan(&user.ID, &user.Username, &isAdminInt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	user.IsAdmin = (isAdminInt == 1)
	return &user, nil
}

// UpdateUserPassword updates a user's password in the database.
func UpdateUserPassword(username, newPassword string) error {
	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	result, err := db.Exec("UPDATE users SET password_hash = ? WHERE username = ?", passwordHash, username)
	if err != nil {
		return fmt.Errorf("failed to update password for user '%s': %w", username, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user '%s' not found", username)
	}

	log.Printf("Successfully updated password for user: %s", username)
	return nil
}

// CreateCamera stores a new saved camera and returns it with its generated id.
func CreateCamera(name, url, username, password string) (models.Camera, error) {
	cam := models.Camera{
		ID:        uuid.NewString(),
		Name:      name,
		URL:       url,
		Username:  username,
		Password:  password,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		"INSERT INTO cameras (id, name, url, username, password, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		cam.ID, cam.Name, cam.URL, cam.Username, cam.Password, cam.CreatedAt,
	)
	if err != nil {
		return models.Camera{}, fmt.Errorf("failed to create camera: %w", err)
	}

	log.Printf("Saved camera: %s (%s)", cam.Name, cam.ID)
	return cam, nil
}

// GetCamera retrieves a saved camera by id.
func GetCamera(id string) (*models.Camera, error) {
	var cam models.Camera
	err := db.QueryRow(
		"SELECT id, name, url, username, password, created_at FROM cameras WHERE id = ?", id,
	).Scan(&cam.ID, &cam.Name, &cam.URL, &cam.Username, &cam.Password, &cam.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Camera not found
		}
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}
	return &cam, nil
}

// GetAllCameras retrieves all saved cameras ordered by name.
func GetAllCameras() ([]models.Camera, error) {
	rows, err := db.Query("SELECT id, name, url, username, password, created_at FROM cameras ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query cameras: %w", err)
	}
	defer rows.Close()

	var cameras []models.Camera
	for rows.Next() {
		var cam models.Camera
		if err := rows.Scan(&cam.ID, &cam.Name, &cam.URL, &cam.Username, &cam.Password, &cam.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan camera row: %w", err)
		}
		cameras = append(cameras, cam)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during camera rows iteration: %w", err)
	}

	return cameras, nil
}

// UpdateCamera overwrites a saved camera's fields.
func UpdateCamera(cam models.Camera) error {
	result, err := db.Exec(
		"UPDATE cameras SET name = ?, url = ?, username = ?, password = ? WHERE id = ?",
		cam.Name, cam.URL, cam.Username, cam.Password, cam.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update camera '%s': %w", cam.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: camera %s", models.ErrNotFound, cam.ID)
	}
	return nil
}

// DeleteCamera removes a saved camera.
func DeleteCamera(id string) error {
	result, err := db.Exec("DELETE FROM cameras WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete camera: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: camera %s", models.ErrNotFound, id)
	}

	log.Printf("Deleted camera: %s", id)
	return nil
}

// GetDB returns the database connection pool.
func GetDB() *sql.DB {
	return db
}
