package snapshot

import (
	"fmt"
	"strings"
)

// Dimension is one of the four entity axes a contract can be grouped by.
type Dimension string

const (
	Contractor   Dimension = "contractor"
	Organization Dimension = "organization"
	Area         Dimension = "area"
	Category     Dimension = "category"
)

// Dimensions lists every dimension in canonical order.
var Dimensions = []Dimension{Contractor, Organization, Area, Category}

var dimensionAliases = map[string]Dimension{
	"contractor":        Contractor,
	"contractors":       Contractor,
	"awardee":           Contractor,
	"awardee_name":      Contractor,
	"organization":      Organization,
	"organizations":     Organization,
	"org":               Organization,
	"organization_name": Organization,
	"area":              Area,
	"areas":             Area,
	"area_of_delivery":  Area,
	"category":          Category,
	"categories":        Category,
	"business_category": Category,
}

// ParseDimension resolves a dimension name or one of its aliases.
func ParseDimension(s string) (Dimension, error) {
	if d, ok := dimensionAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d, nil
	}
	return "", fmt.Errorf("unknown dimension %q", s)
}

// Valid reports whether d is one of the four known dimensions.
func (d Dimension) Valid() bool {
	switch d {
	case Contractor, Organization, Area, Category:
		return true
	}
	return false
}

// Column returns the fact-table column holding this dimension's entity name.
func (d Dimension) Column() string {
	switch d {
	case Contractor:
		return "awardee_name"
	case Organization:
		return "organization_name"
	case Area:
		return "area_of_delivery"
	case Category:
		return "business_category"
	}
	return ""
}

// NamesColumn returns the rollup column that carries the distinct set of
// this dimension's names as a counterpart of another dimension.
func (d Dimension) NamesColumn() string {
	return string(d) + "_names"
}

// Others returns the three counterpart dimensions in canonical order.
func (d Dimension) Others() []Dimension {
	others := make([]Dimension, 0, len(Dimensions)-1)
	for _, o := range Dimensions {
		if o != d {
			others = append(others, o)
		}
	}
	return others
}

func (d Dimension) String() string {
	return string(d)
}
