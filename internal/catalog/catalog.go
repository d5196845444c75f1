package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/ashendes/purchase-ledger/internal/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Reader is the read-only view of the catalog the purchase engine depends on
type Reader interface {
	FindByID(id string) (models.Product, bool)
	List() []models.Product
}

// Catalog is an immutable in-memory product list keyed by id
type Catalog struct {
	products map[string]models.Product
	order    []string
}

var (
	ErrDuplicateProduct = errors.New("duplicate product id")
	ErrInvalidPrice     = errors.New("product price must be positive")
	ErrMissingID        = errors.New("product id is required")
)

// New builds a catalog from products, keeping their order for listing
func New(products []models.Product) (*Catalog, error) {
	c := &Catalog{
		products: make(map[string]models.Product, len(products)),
		order:    make([]string, 0, len(products)),
	}
	for _, p := range products {
		if p.ID == "" {
			return nil, ErrMissingID
		}
		if _, exists := c.products[p.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProduct, p.ID)
		}
		if !p.Price.IsPositive() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPrice, p.ID)
		}
		c.products[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c, nil
}

// FindByID returns the product with the given id
func (c *Catalog) FindByID(id string) (models.Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

// List returns all products in load order
func (c *Catalog) List() []models.Product {
	out := make([]models.Product, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.products[id])
	}
	return out
}

// Default returns the storefront's built-in catalog
func Default() *Catalog {
	c, err := New(DefaultProducts())
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultProducts lists the built-in products
func DefaultProducts() []models.Product {
	return []models.Product{
		{
			ID:          "1",
			Name:        "Premium Subscription",
			Description: "Access to all premium features",
			Price:       decimal.RequireFromString("99.99"),
			Image:       "https://images.unsplash.com/photo-1633356122544-f134324a6cee?w=800&auto=format&fit=crop&q=60",
		},
		{
			ID:          "2",
			Name:        "Basic Package",
			Description: "Essential features for starters",
			Price:       decimal.RequireFromString("49.99"),
			Image:       "https://images.unsplash.com/photo-1553729459-efe14ef6055d?w=800&auto=format&fit=crop&q=60",
		},
		{
			ID:          "3",
			Name:        "Pro Bundle",
			Description: "Complete solution for professionals",
			Price:       decimal.RequireFromString("149.99"),
			Image:       "https://images.unsplash.com/photo-1626785774573-4b799315345d?w=800&auto=format&fit=crop&q=60",
		},
	}
}

type fileProduct struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
	Image       string `yaml:"image"`
}

type fileCatalog struct {
	Products []fileProduct `yaml:"products"`
}

// Load reads a YAML catalog file. An empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document
func Parse(data []byte) (*Catalog, error) {
	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("unmarshal catalog yaml: %w", err)
	}

	products := make([]models.Product, 0, len(fc.Products))
	for _, fp := range fc.Products {
		// prices are kept as strings in YAML so they are parsed without float rounding
		price, err := decimal.NewFromString(fp.Price)
		if err != nil {
			return nil, fmt.Errorf("parse price of product %s: %w", fp.ID, err)
		}
		products = append(products, models.Product{
			ID:          fp.ID,
			Name:        fp.Name,
			Description: fp.Description,
			Price:       price,
			Image:       fp.Image,
		})
	}
	return New(products)
}

// IDs returns the sorted product ids, used for startup logging
func (c *Catalog) IDs() []string {
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}
