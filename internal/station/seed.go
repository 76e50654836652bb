package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fuelstation/internal/models"
	"fuelstation/internal/storage"
)

// SeedConfig describes the records created at start-up.
type SeedConfig struct {
	Admin   models.BootstrapAdmin
	Catalog []models.CatalogFuel
}

// SeedConfigFrom extracts the seed data from the application config.
func SeedConfigFrom(cfg *models.Config) SeedConfig {
	return SeedConfig{
		Admin:   cfg.Security.BootstrapAdmin,
		Catalog: cfg.Station.Catalog,
	}
}

// Seed creates the bootstrap admin if its login is free and loads the
// catalog into a store that has no fuels yet. Running it again is a no-op.
func (s *Service) Seed(ctx context.Context, cfg SeedConfig) error {
	if cfg.Admin.Login != "" {
		if err := s.seedAdmin(ctx, cfg.Admin); err != nil {
			return err
		}
	}

	if len(cfg.Catalog) == 0 {
		return nil
	}

	fuels, err := s.storage.Fuels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list fuels: %w", err)
	}
	if len(fuels) > 0 {
		slog.Debug("Catalog already present, skipping seed", "fuels", len(fuels))
		return nil
	}

	for _, cf := range cfg.Catalog {
		category, err := models.ParseCategory(cf.Category)
		if err != nil {
			return fmt.Errorf("catalog fuel %q: %w", cf.Name, err)
		}
		fuel := models.NewFuel(cf.Name, cf.Price, category)
		if err := fuel.Validate(); err != nil {
			return fmt.Errorf("catalog fuel %q: %w", cf.Name, err)
		}
		if err := s.storage.CreateFuel(ctx, fuel); err != nil {
			return fmt.Errorf("failed to create fuel %q: %w", cf.Name, err)
		}
		for _, ct := range cf.Tanks {
			tank := models.NewTank(fuel.ID, ct.Stored, ct.Capacity)
			if err := s.storage.CreateTank(ctx, tank); err != nil {
				return fmt.Errorf("failed to create tank for %q: %w", cf.Name, err)
			}
		}
		slog.Info("Seeded fuel", "id", fuel.ID, "name", fuel.Name, "tanks", len(cf.Tanks))
	}
	return nil
}

func (s *Service) seedAdmin(ctx context.Context, ba models.BootstrapAdmin) error {
	if err := models.ValidateCredentials(ba.Login, ba.Password); err != nil {
		return fmt.Errorf("invalid bootstrap admin: %w", err)
	}

	_, err := s.storage.GetAdminByLogin(ctx, strings.TrimSpace(ba.Login))
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to look up bootstrap admin: %w", err)
	}

	hash, err := s.hasher.Hash(ctx, ba.Password)
	if err != nil {
		return fmt.Errorf("failed to hash bootstrap admin password: %w", err)
	}
	admin := models.NewAdmin(ba.Login, hash)
	if err := s.storage.CreateAdmin(ctx, admin); err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	slog.Info("Created bootstrap admin", "login", admin.Login)
	return nil
}
