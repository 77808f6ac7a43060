package scenario

import (
	"math/rand"
	"slices"
)

// ProductIDs is the fixed product catalog of the demo shop.
var ProductIDs = []string{
	"OLJCESPC7Z",
	"66VCHSJNUP",
	"1YMWWN1N4O",
	"L9ECAV7KIM",
	"2ZYFJ3GM2N",
}

// Catalog is a read-only set of product IDs.
type Catalog struct {
	ids []string
}

// DefaultCatalog returns the demo shop catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(ProductIDs)
}

// NewCatalog copies ids into a catalog.
func NewCatalog(ids []string) *Catalog {
	return &Catalog{ids: slices.Clone(ids)}
}

// Pick returns an ID drawn uniformly at random.
func (c *Catalog) Pick(rng *rand.Rand) string {
	if len(c.ids) == 0 {
		return ""
	}
	return c.ids[rng.Intn(len(c.ids))]
}

// Contains reports whether id is part of the catalog.
func (c *Catalog) Contains(id string) bool {
	return slices.Contains(c.ids, id)
}

// IDs returns a copy of the catalog contents.
func (c *Catalog) IDs() []string {
	return slices.Clone(c.ids)
}

// Len is the number of products.
func (c *Catalog) Len() int { return len(c.ids) }
