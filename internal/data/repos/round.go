package repos

import "github.com/shopspring/decimal"

// Persisted precision
const (
	pricePlaces = 4
	ratioPlaces = 6
)

func roundTo(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

func price(v float64) float64 { return roundTo(v, pricePlaces) }

func ratio(v float64) float64 { return roundTo(v, ratioPlaces) }

func ratioPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := ratio(*v)
	return &r
}

func pricePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	p := price(*v)
	return &p
}
