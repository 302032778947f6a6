// Package livestock holds the farm accounts and animal records the
// dashboard manages. Farm accounts are the unit of scoped visibility:
// viewers only see the farms they hold grants for.
package livestock

import (
	"time"

	"github.com/campovivo/platform/internal/shared/types"
)

// Farm is a farm account
type Farm struct {
	ID        types.ID          `json:"id"`
	Name      string            `json:"name"`
	OwnerName string            `json:"owner_name,omitempty"`
	Contact   types.ContactInfo `json:"contact"`
	Address   types.Address     `json:"address"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// AnimalStatus tracks whether an animal is still in the herd
type AnimalStatus string

const (
	AnimalActive   AnimalStatus = "active"
	AnimalSold     AnimalStatus = "sold"
	AnimalDeceased AnimalStatus = "deceased"
)

// Animal is a single animal record belonging to a farm
type Animal struct {
	ID        types.ID     `json:"id"`
	FarmID    types.ID     `json:"farm_id"`
	Tag       string       `json:"tag"`
	Species   string       `json:"species"`
	Breed     string       `json:"breed,omitempty"`
	BornOn    *time.Time   `json:"born_on,omitempty"`
	Status    AnimalStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// CreateFarmRequest is the payload for creating a farm
type CreateFarmRequest struct {
	Name      string            `json:"name"`
	OwnerName string            `json:"owner_name"`
	Contact   types.ContactInfo `json:"contact"`
	Address   types.Address     `json:"address"`
}

// Validate checks required fields
func (r CreateFarmRequest) Validate() map[string]string {
	problems := make(map[string]string)
	if r.Name == "" {
		problems["name"] = "name is required"
	}
	return problems
}

// CreateAnimalRequest is the payload for registering an animal
type CreateAnimalRequest struct {
	Tag     string     `json:"tag"`
	Species string     `json:"species"`
	Breed   string     `json:"breed"`
	BornOn  *time.Time `json:"born_on"`
}

// Validate checks required fields
func (r CreateAnimalRequest) Validate() map[string]string {
	problems := make(map[string]string)
	if r.Tag == "" {
		problems["tag"] = "tag is required"
	}
	if r.Species == "" {
		problems["species"] = "species is required"
	}
	return problems
}

// ListAnimalsFilter narrows animal listings
type ListAnimalsFilter struct {
	Species string
	Status  *AnimalStatus
	Search  string
}
