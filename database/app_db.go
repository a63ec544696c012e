package database

import (
	"database/sql"
	"log"

	_ "github.com/lib/pq"
)

var AppDB *sql.DB

// InitAppDB opens the application database (sessions, messages, users,
// broadcasts). The whatsmeow device stores live in per-session sqlite files
// under the auth-store root, not here.
func InitAppDB(appDbURL string) {
	db, err := sql.Open("postgres", appDbURL)
	if err != nil {
		log.Fatal("Failed to connect app DB:", err)
	}
	AppDB = db
	err = AppDB.Ping()
	if err != nil {
		log.Fatal("Failed to ping app DB:", err)
	}
	log.Println("App DB connected successfully")
}
