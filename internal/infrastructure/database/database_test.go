package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostgresDSN(t *testing.T) {
	cfg := DBConfig{Host: "db", Port: 5432, User: "ledger", Password: "p@ss word", DBName: "ledger_db"}

	assert.Equal(t, "host=db port=5432 user=ledger password=p@ss word dbname=ledger_db sslmode=disable", cfg.DSN())
	assert.Equal(t, "postgres://ledger:p%40ss%20word@db:5432/ledger_db?sslmode=disable", cfg.MigrationURL())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.MigrationURL(), "sslmode=require")
}

func TestMySQLDSN(t *testing.T) {
	cfg := MySQLConfig{Host: "mysql", Port: 3306, User: "root", Password: "secret", DBName: "ledger"}
	assert.Equal(t, "root:secret@tcp(mysql:3306)/ledger?charset=utf8mb4&parseTime=True&loc=UTC", cfg.DSN())
}
