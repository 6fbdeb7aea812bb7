package repository

import (
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	slog.Info("Connected to database")
	return db, nil
}

// Migrate applies the Go migrations registered by the migrations package.
func Migrate(db *sqlx.DB, dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func NewPostgres(db *sqlx.DB) Repositories {
	return Repositories{
		Users:    NewPostgresUserRepository(db),
		Profiles: NewPostgresProfileRepository(db),
		Images:   NewPostgresImageRepository(db),
	}
}
