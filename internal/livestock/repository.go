package livestock

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/campovivo/platform/internal/shared/errors"
	"github.com/campovivo/platform/internal/shared/types"
)

// Repository provides postgres access to farms and animals
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a livestock repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// idStrings converts ids for array parameters
func idStrings(ids []types.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// ListFarms returns farm accounts, restricted to visible when all is false.
// An empty visible set with all false returns nothing.
func (r *Repository) ListFarms(ctx context.Context, visible []types.ID, all bool) ([]Farm, error) {
	if !all && len(visible) == 0 {
		return []Farm{}, nil
	}

	query := `
		SELECT id, name, owner_name, email, phone,
		       street, city, region, postal_code, country, latitude, longitude,
		       created_at, updated_at
		FROM farms`
	args := []any{}
	if !all {
		query += ` WHERE id = ANY($1)`
		args = append(args, idStrings(visible))
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Unavailable(err, "farm store unavailable")
	}
	defer rows.Close()

	farms := []Farm{}
	for rows.Next() {
		f, err := scanFarm(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan farm")
		}
		farms = append(farms, f)
	}
	return farms, rows.Err()
}

// GetFarm loads a farm by id
func (r *Repository) GetFarm(ctx context.Context, id types.ID) (*Farm, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, owner_name, email, phone,
		       street, city, region, postal_code, country, latitude, longitude,
		       created_at, updated_at
		FROM farms WHERE id = $1`, id)

	f, err := scanFarm(row)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("farm", id.String())
	}
	if err != nil {
		return nil, apperrors.Unavailable(err, "farm store unavailable")
	}
	return &f, nil
}

// CreateFarm inserts a new farm account
func (r *Repository) CreateFarm(ctx context.Context, req CreateFarmRequest) (*Farm, error) {
	farm := &Farm{
		ID:        types.NewID(),
		Name:      req.Name,
		OwnerName: req.OwnerName,
		Contact:   req.Contact,
		Address:   req.Address,
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO farms (id, name, owner_name, email, phone,
		                   street, city, region, postal_code, country, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		farm.ID, farm.Name, farm.OwnerName, farm.Contact.Email, farm.Contact.Phone,
		farm.Address.Street, farm.Address.City, farm.Address.Region,
		farm.Address.PostalCode, farm.Address.Country, farm.Address.Lat, farm.Address.Lng,
	).Scan(&farm.CreatedAt, &farm.UpdatedAt)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create farm")
	}
	return farm, nil
}

// DeleteFarm removes a farm and its animals
func (r *Repository) DeleteFarm(ctx context.Context, id types.ID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM farms WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete farm")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("farm", id.String())
	}
	return nil
}

// ListAnimals returns a farm's animals with optional filters
func (r *Repository) ListAnimals(ctx context.Context, farmID types.ID, filter ListAnimalsFilter) ([]Animal, error) {
	query := `
		SELECT id, farm_id, tag, species, breed, born_on, status, created_at, updated_at
		FROM animals
		WHERE farm_id = $1`
	args := []any{farmID}
	argNum := 2

	if filter.Species != "" {
		query += fmt.Sprintf(" AND species = $%d", argNum)
		args = append(args, filter.Species)
		argNum++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(*filter.Status))
		argNum++
	}
	if filter.Search != "" {
		query += fmt.Sprintf(" AND (tag ILIKE $%d OR breed ILIKE $%d)", argNum, argNum)
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}
	query += ` ORDER BY tag`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Unavailable(err, "animal store unavailable")
	}
	defer rows.Close()

	animals := []Animal{}
	for rows.Next() {
		var a Animal
		if err := rows.Scan(&a.ID, &a.FarmID, &a.Tag, &a.Species, &a.Breed,
			&a.BornOn, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan animal")
		}
		animals = append(animals, a)
	}
	return animals, rows.Err()
}

// CreateAnimal registers an animal on a farm
func (r *Repository) CreateAnimal(ctx context.Context, farmID types.ID, req CreateAnimalRequest) (*Animal, error) {
	animal := &Animal{
		ID:      types.NewID(),
		FarmID:  farmID,
		Tag:     req.Tag,
		Species: req.Species,
		Breed:   req.Breed,
		BornOn:  req.BornOn,
		Status:  AnimalActive,
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO animals (id, farm_id, tag, species, breed, born_on, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		animal.ID, animal.FarmID, animal.Tag, animal.Species, animal.Breed, animal.BornOn, animal.Status,
	).Scan(&animal.CreatedAt, &animal.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return nil, apperrors.Conflict("tag already registered on this farm")
		}
		if strings.Contains(err.Error(), "foreign key") {
			return nil, apperrors.NotFound("farm", farmID.String())
		}
		return nil, apperrors.Wrap(err, "failed to create animal")
	}
	return animal, nil
}

func scanFarm(row pgx.Row) (Farm, error) {
	var f Farm
	err := row.Scan(&f.ID, &f.Name, &f.OwnerName, &f.Contact.Email, &f.Contact.Phone,
		&f.Address.Street, &f.Address.City, &f.Address.Region,
		&f.Address.PostalCode, &f.Address.Country, &f.Address.Lat, &f.Address.Lng,
		&f.CreatedAt, &f.UpdatedAt)
	return f, err
}
