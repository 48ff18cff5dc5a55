package sitehealth

// Category groups related checks. The set of categories and the mapping
// from check identifiers to categories is data driven; the constants below
// name the categories the pipeline itself refers to.
type Category string

const (
	CategoryPerformance   Category = "Performance"
	CategorySEO           Category = "SEO"
	CategoryAccessibility Category = "Accessibility"
	CategorySecurity      Category = "Security"
	CategoryContent       Category = "Content"
	CategoryHostHealth    Category = "Host Health"
)

// String returns the display name of the category.
func (c Category) String() string { return string(c) }

// DefaultScanOrder is the order in which categories are tracked in a run's
// category state when no lookup table overrides it.
func DefaultScanOrder() []Category {
	return []Category{
		CategoryPerformance,
		CategorySEO,
		CategoryAccessibility,
		CategorySecurity,
		CategoryHostHealth,
	}
}
