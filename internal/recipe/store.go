package recipe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Compile-time interface checks.
var (
	_ IngredientCache = (*PostgresStore)(nil)
	_ Archive         = (*PostgresStore)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS image_ingredients (
	fingerprint TEXT PRIMARY KEY,
	ingredients JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS recipes (
	id BIGSERIAL PRIMARY KEY,
	text TEXT NOT NULL,
	diet TEXT NOT NULL,
	cuisine TEXT NOT NULL,
	ingredients JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore caches per-image ingredient lists and archives generated
// recipes in PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to dataSourceName and creates the tables if they
// do not exist.
func NewPostgresStore(dataSourceName string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// GetIngredients returns the cached ingredients for an image fingerprint.
// The boolean is false when nothing is cached.
func (s *PostgresStore) GetIngredients(ctx context.Context, fingerprint string) (Ingredients, bool, error) {
	var items Ingredients
	err := s.db.GetContext(ctx, &items, "SELECT ingredients FROM image_ingredients WHERE fingerprint = $1", fingerprint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get ingredients by fingerprint: %w", err)
	}
	return items, true, nil
}

// SaveIngredients caches the ingredients found in an image.
func (s *PostgresStore) SaveIngredients(ctx context.Context, fingerprint string, items Ingredients) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO image_ingredients (fingerprint, ingredients) VALUES ($1, $2) ON CONFLICT (fingerprint) DO UPDATE SET ingredients = $2, updated_at = now()",
		fingerprint,
		items,
	)
	if err != nil {
		return fmt.Errorf("failed to save ingredients: %w", err)
	}
	return nil
}

// SaveRecipe archives a generated recipe and fills in its ID.
func (s *PostgresStore) SaveRecipe(ctx context.Context, r *Recipe) error {
	err := s.db.QueryRowxContext(ctx,
		"INSERT INTO recipes (text, diet, cuisine, ingredients, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		r.Text,
		r.Diet,
		r.Cuisine,
		r.Ingredients,
		r.CreatedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to save recipe: %w", err)
	}
	return nil
}

// ListRecipes returns archived recipes, oldest first. Empty filters match
// everything.
func (s *PostgresStore) ListRecipes(ctx context.Context, diet Diet, cuisine Cuisine) ([]Recipe, error) {
	var args []interface{}
	query := "SELECT id, text, diet, cuisine, ingredients, created_at FROM recipes WHERE 1=1"

	paramCount := 1
	if diet != "" {
		query += fmt.Sprintf(" AND diet = $%d", paramCount)
		args = append(args, diet)
		paramCount++
	}
	if cuisine != "" {
		query += fmt.Sprintf(" AND cuisine = $%d", paramCount)
		args = append(args, cuisine)
	}
	query += " ORDER BY id"

	recipes := []Recipe{}
	if err := s.db.SelectContext(ctx, &recipes, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get recipes: %w", err)
	}
	return recipes, nil
}
