package storage

import (
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"fuelstation/internal/models"
)

// Row mapping between the SQL schemas and the models. Nullable columns are
// the fuel category (rows created before categories existed hold NULL) and
// the session tokens (NULL means no live session).

// categoryFromNull reads a nullable fuel_type column. NULL reads as petrol.
func categoryFromNull(v sql.NullString) (models.Category, error) {
	if !v.Valid {
		return models.CategoryPetrol, nil
	}
	c, err := models.ParseCategory(v.String)
	if err != nil {
		return "", fmt.Errorf("failed to convert fuel_type: %w", err)
	}
	return c, nil
}

func nullCategory(c models.Category) sql.NullString {
	if c == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(c), Valid: true}
}

// nullToken maps the empty token to NULL.
func nullToken(token string) sql.NullString {
	if token == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: token, Valid: true}
}

func tokenFromNull(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

// pgCategoryFromText is categoryFromNull for pgx rows.
func pgCategoryFromText(v pgtype.Text) (models.Category, error) {
	return categoryFromNull(sql.NullString{String: v.String, Valid: v.Valid})
}

func pgTextCategory(c models.Category) pgtype.Text {
	n := nullCategory(c)
	return pgtype.Text{String: n.String, Valid: n.Valid}
}

func pgTextToken(token string) pgtype.Text {
	n := nullToken(token)
	return pgtype.Text{String: n.String, Valid: n.Valid}
}

func pgTokenFromText(v pgtype.Text) string {
	return tokenFromNull(sql.NullString{String: v.String, Valid: v.Valid})
}

// fuelStockFromTotals builds the catalog read model from one aggregated row.
func fuelStockFromTotals(id int64, name string, price int64, category models.Category, stored, capacity int64) *models.FuelStock {
	return &models.FuelStock{
		ID:          id,
		Name:        name,
		Price:       price,
		Category:    category,
		Stored:      stored,
		Capacity:    capacity,
		FillPercent: models.FillPercent(stored, capacity),
	}
}
