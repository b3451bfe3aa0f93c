package enums

import "fmt"

// CouponDiscountType selects how a coupon's value is applied.
type CouponDiscountType string

const (
	CouponDiscountPercentage CouponDiscountType = "percentage"
	CouponDiscountFixed      CouponDiscountType = "fixed"
)

var validCouponDiscountTypes = []CouponDiscountType{
	CouponDiscountPercentage,
	CouponDiscountFixed,
}

// String implements fmt.Stringer.
func (t CouponDiscountType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known CouponDiscountType.
func (t CouponDiscountType) IsValid() bool {
	for _, candidate := range validCouponDiscountTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseCouponDiscountType converts raw input into a CouponDiscountType.
func ParseCouponDiscountType(value string) (CouponDiscountType, error) {
	for _, candidate := range validCouponDiscountTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid coupon discount type %q", value)
}

// CouponScope limits which products, categories, or vendors a coupon covers.
type CouponScope string

const (
	CouponScopeAll                CouponScope = "all"
	CouponScopeSpecificProducts   CouponScope = "specific_products"
	CouponScopeSpecificCategories CouponScope = "specific_categories"
	CouponScopeSpecificVendors    CouponScope = "specific_vendors"
)

var validCouponScopes = []CouponScope{
	CouponScopeAll,
	CouponScopeSpecificProducts,
	CouponScopeSpecificCategories,
	CouponScopeSpecificVendors,
}

// String implements fmt.Stringer.
func (s CouponScope) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CouponScope.
func (s CouponScope) IsValid() bool {
	for _, candidate := range validCouponScopes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCouponScope converts raw input into a CouponScope.
func ParseCouponScope(value string) (CouponScope, error) {
	for _, candidate := range validCouponScopes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid coupon scope %q", value)
}
