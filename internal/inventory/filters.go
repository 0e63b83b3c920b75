package inventory

import (
	"fmt"

	"github.com/golang-sql/civil"
)

// Filter keys accepted by GET /items?filter= and the filter counts.
const (
	FilterAll          = "all"
	FilterMedicine     = CategoryMedicine
	FilterVaccine      = CategoryVaccine
	FilterSupply       = CategorySupply
	FilterLowStock     = "low_stock"
	FilterExpiringSoon = "expiring_soon"
)

// FilterCounts is the number of items each filter would show.
type FilterCounts struct {
	All          int `json:"all"`
	Medicine     int `json:"medicine"`
	Vaccine      int `json:"vaccine"`
	Supply       int `json:"supply"`
	LowStock     int `json:"low_stock"`
	ExpiringSoon int `json:"expiring_soon"`
}

// IsExpiringSoon reports whether an item expires within ExpiringSoonDays,
// already expired items included.
func IsExpiringSoon(item Item, today civil.Date) bool {
	return IsExpiringWithin(item, today, ExpiringSoonDays)
}

// IsExpiringWithin reports whether the expiry date is on or before today+days.
func IsExpiringWithin(item Item, today civil.Date, days int) bool {
	return item.ExpiryDate != nil && !item.ExpiryDate.After(today.AddDays(days))
}

// CountFilters computes all filter counts in one pass.
func CountFilters(items []Item, today civil.Date) FilterCounts {
	var c FilterCounts
	for _, item := range items {
		c.All++
		switch item.Category {
		case CategoryMedicine:
			c.Medicine++
		case CategoryVaccine:
			c.Vaccine++
		case CategorySupply:
			c.Supply++
		}
		if IsLowStock(item) {
			c.LowStock++
		}
		if IsExpiringSoon(item, today) {
			c.ExpiringSoon++
		}
	}
	return c
}

// FilterItems returns the items matching filter, preserving order.
func FilterItems(items []Item, filter string, today civil.Date) ([]Item, error) {
	var match func(Item) bool
	switch filter {
	case "", FilterAll:
		return items, nil
	case FilterMedicine, FilterVaccine, FilterSupply:
		match = func(i Item) bool { return i.Category == filter }
	case FilterLowStock:
		match = IsLowStock
	case FilterExpiringSoon:
		match = func(i Item) bool { return IsExpiringSoon(i, today) }
	default:
		return nil, fmt.Errorf("unknown filter %q", filter)
	}

	out := make([]Item, 0, len(items))
	for _, item := range items {
		if match(item) {
			out = append(out, item)
		}
	}
	return out, nil
}
