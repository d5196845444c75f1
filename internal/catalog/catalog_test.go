package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ashendes/purchase-ledger/internal/models"
	"github.com/shopspring/decimal"
)

func TestDefault_FindByID(t *testing.T) {
	c := Default()

	p, ok := c.FindByID("1")
	if !ok {
		t.Fatal("expected product 1 in default catalog")
	}
	if !p.Price.Equal(decimal.RequireFromString("99.99")) {
		t.Fatalf("expected price 99.99, got %s", p.Price)
	}

	if _, ok := c.FindByID("does-not-exist"); ok {
		t.Fatal("expected unknown product to be absent")
	}
}

func TestList_KeepsLoadOrder(t *testing.T) {
	c := Default()
	got := c.List()
	if len(got) != 3 {
		t.Fatalf("expected 3 products, got %d", len(got))
	}
	for i, want := range []string{"1", "2", "3"} {
		if got[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, got[i].ID)
		}
	}
}

func TestNew_RejectsDuplicatesAndNonPositivePrices(t *testing.T) {
	_, err := New([]models.Product{
		{ID: "a", Price: decimal.NewFromInt(1)},
		{ID: "a", Price: decimal.NewFromInt(2)},
	})
	if !errors.Is(err, ErrDuplicateProduct) {
		t.Fatalf("expected ErrDuplicateProduct, got %v", err)
	}

	_, err = New([]models.Product{{ID: "b", Price: decimal.Zero}})
	if !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}

	_, err = New([]models.Product{{Price: decimal.NewFromInt(1)}})
	if !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := `
products:
  - id: sku-1
    name: Starter
    description: entry level
    price: "10.10"
  - id: sku-2
    name: Team
    price: "0.30"
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write temp catalog: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	p, ok := c.FindByID("sku-2")
	if !ok {
		t.Fatal("expected sku-2")
	}
	if p.Price.String() != "0.3" {
		t.Fatalf("expected exact price 0.3, got %s", p.Price)
	}
}

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.List()) != len(DefaultProducts()) {
		t.Fatalf("expected default catalog")
	}
}

func TestParse_InvalidPrice(t *testing.T) {
	_, err := Parse([]byte("products:\n  - id: x\n    price: abc\n"))
	if err == nil {
		t.Fatal("expected error for non-numeric price")
	}
}
