package repository

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// openPostgres opens a PostgreSQL connection for the pro tier.
func openPostgres(cfg domain.RepositoryConfig) (*sql.DB, error) {
	parts := []string{
		"host=" + defaultStr(cfg.PostgresHost, "localhost"),
		fmt.Sprintf("port=%d", defaultInt(cfg.PostgresPort, 5432)),
		"dbname=" + defaultStr(cfg.PostgresDB, "kestrel"),
		"sslmode=" + defaultStr(cfg.PostgresSSLMode, "disable"),
	}
	if cfg.PostgresUser != "" {
		parts = append(parts, "user="+cfg.PostgresUser)
	}
	if cfg.PostgresPassword != "" {
		parts = append(parts, "password="+cfg.PostgresPassword)
	}

	db, err := sql.Open("postgres", strings.Join(parts, " "))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
