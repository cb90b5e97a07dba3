package asset

import (
	"fmt"
	"slices"
)

type Category string

const (
	CategoryRocks             Category = "rocks"
	CategoryFoliage           Category = "foliage"
	CategoryOutdoorFurniture  Category = "outdoor_furniture"
	CategoryOutdoorActivities Category = "outdoor_activities"
	CategoryStreet            Category = "street"
	CategoryElectronics       Category = "electronics"
	CategoryFurniture         Category = "furniture"
	CategoryWindows           Category = "windows"
	CategoryDoors             Category = "doors"
)

var AllCategories = []Category{
	CategoryRocks,
	CategoryFoliage,
	CategoryOutdoorFurniture,
	CategoryOutdoorActivities,
	CategoryStreet,
	CategoryElectronics,
	CategoryFurniture,
	CategoryWindows,
	CategoryDoors,
}

// CityCategories may be placed on city ground outside of any lot.
var CityCategories = []Category{
	CategoryRocks,
	CategoryFoliage,
	CategoryOutdoorFurniture,
	CategoryOutdoorActivities,
	CategoryStreet,
}

// FamilyCategories may be placed on a family lot.
var FamilyCategories = []Category{
	CategoryRocks,
	CategoryFoliage,
	CategoryOutdoorFurniture,
	CategoryElectronics,
	CategoryFurniture,
	CategoryWindows,
	CategoryDoors,
}

func (c Category) Valid() bool { return slices.Contains(AllCategories, c) }

func (c Category) AllowedInCity() bool { return slices.Contains(CityCategories, c) }

func (c Category) AllowedOnLot() bool { return slices.Contains(FamilyCategories, c) }

// NeedsWall reports whether objects of this category only exist inside walls.
func (c Category) NeedsWall() bool { return c == CategoryDoors || c == CategoryWindows }

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}
