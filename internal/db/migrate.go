package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/propertyline/triage/internal/db/migrations"
)

// Migrate applies all pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(s.Pool)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// SeedDemo inserts the demo technicians and properties if they are missing.
func (s *Store) SeedDemo(ctx context.Context) error {
	for _, t := range DemoTechnicians() {
		if _, err := s.GetTechnician(ctx, t.ID); err == nil {
			continue
		}
		if err := s.UpsertTechnician(ctx, t); err != nil {
			return err
		}
	}
	for _, p := range DemoProperties() {
		if _, err := s.Pool.Exec(ctx, `INSERT INTO properties (id, address, vip) VALUES ($1,$2,$3) ON CONFLICT (id) DO NOTHING`, p.ID, p.Address, p.VIP); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ Repository = (*Store)(nil)
	_ Repository = (*MemoryStore)(nil)
)
