package services

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/soaringjerry/storeaudit/internal/models"
)

// CatalogSeed is the YAML form of a starting catalog:
//
//	categories:
//	  - name: Limpieza
//	    weight: 10
//	    subcategories:
//	      - name: Piso
//	        questions: ["Piso trapeado", "Piso sin basura"]
type CatalogSeed struct {
	Categories []SeedCategory `yaml:"categories"`
}

type SeedCategory struct {
	Name          string            `yaml:"name"`
	Weight        float64           `yaml:"weight"`
	Subcategories []SeedSubcategory `yaml:"subcategories"`
}

type SeedSubcategory struct {
	Name      string   `yaml:"name"`
	Questions []string `yaml:"questions"`
}

// ParseCatalogSeed decodes and checks a seed file.
func ParseCatalogSeed(data []byte) (*CatalogSeed, error) {
	var seed CatalogSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, NewValidationError("invalid seed yaml: " + err.Error())
	}
	if len(seed.Categories) == 0 {
		return nil, NewValidationError("seed has no categories")
	}
	for i, c := range seed.Categories {
		if c.Name == "" {
			return nil, NewValidationError(fmt.Sprintf("category %d: name required", i+1))
		}
		if c.Weight <= 0 {
			return nil, NewValidationError(fmt.Sprintf("category %q: weight must be positive", c.Name))
		}
	}
	return &seed, nil
}

// SeedCatalog creates every category, subcategory and question of seed in
// file order and returns how many questions were created.
func (s *CatalogService) SeedCatalog(ctx context.Context, seed *CatalogSeed, actor string) (int, error) {
	if seed == nil {
		return 0, NewValidationError("seed required")
	}
	created := 0
	for ci, sc := range seed.Categories {
		cat, err := s.CreateCategory(ctx, &models.Category{Name: sc.Name, Weight: sc.Weight, Order: ci + 1}, actor)
		if err != nil {
			return created, err
		}
		for si, ss := range sc.Subcategories {
			sub, err := s.CreateSubcategory(ctx, &models.Subcategory{CategoryID: cat.ID, Name: ss.Name, Order: si + 1})
			if err != nil {
				return created, err
			}
			for qi, text := range ss.Questions {
				q := &models.Question{SubcategoryID: sub.ID, Text: text, Order: qi + 1}
				if _, err := s.AddCatalogQuestion(ctx, q, actor); err != nil {
					return created, err
				}
				created++
			}
		}
	}
	s.logger.Info("catalog seeded", "categories", len(seed.Categories), "questions", created)
	return created, nil
}
