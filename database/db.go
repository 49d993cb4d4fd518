package database

import (
	"database/sql"
	"log"
	"sync"

	"github.com/sellolabs/sello/config"
	"github.com/sellolabs/sello/internal/cache"
)

// Singleton connection shared across commands; not accessible outside the
// package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		newCache, errCache := cache.NewCache()
		if errCache != nil {
			log.Printf("issuance cache disabled: %v", errCache)
		}
		instance = &Datasource{Conn: con, Cache: newCache}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = createIssuanceTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createIssuanceTable mirrors the sql/ migration so a fresh server can come
// up without running the migrate command.
func createIssuanceTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE SCHEMA IF NOT EXISTS sello;
		CREATE TABLE IF NOT EXISTS sello.issuances (
			issuance_id TEXT PRIMARY KEY,
			verification_uuid TEXT NOT NULL UNIQUE,
			certificate_title TEXT NOT NULL,
			dependency TEXT NOT NULL DEFAULT '',
			subject_document TEXT NOT NULL,
			subject_name TEXT NOT NULL,
			pdf_hash TEXT NOT NULL,
			metadata_url TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			status_note TEXT NOT NULL DEFAULT '',
			transaction_hash TEXT,
			issued_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_issuances_status ON sello.issuances (status);
		CREATE INDEX IF NOT EXISTS idx_issuances_updated_at ON sello.issuances (updated_at);
	`)
	return err
}
