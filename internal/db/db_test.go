package db

import (
	"testing"

	"github.com/shinyyama/tailor-backend/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	base := config.DBConfig{User: "app", Password: "pw", Name: "tailor", Port: "3306"}
	tests := []struct {
		name string
		mod  func(c *config.DBConfig)
		addr string
	}{
		{"host and port", func(c *config.DBConfig) { c.Host = "db.internal" }, "tcp(db.internal:3306)"},
		{"already tcp", func(c *config.DBConfig) { c.Host = "tcp(10.0.0.2:3307)" }, "tcp(10.0.0.2:3307)"},
		{"socket path", func(c *config.DBConfig) { c.Host = "/var/run/mysqld.sock" }, "unix(/var/run/mysqld.sock)"},
		{"cloud sql", func(c *config.DBConfig) {
			c.Host = "ignored"
			c.InstanceConnectionName = "proj:me-central1:tailor"
		}, "unix(/cloudsql/proj:me-central1:tailor)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mod(&cfg)
			assert.Equal(t, "app:pw@"+tt.addr+"/tailor?charset=utf8mb4&parseTime=True&loc=UTC", BuildDSN(&cfg))
		})
	}
}
