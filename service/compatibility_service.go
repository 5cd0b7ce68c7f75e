package application

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"swap_service/domain"
)

// CompatibilityService scores how well two bookings fit as swap partners.
// Analyze is a pure function over the two descriptors: no stores, no side
// effects, and it never fails on malformed input - missing or negative
// fields fall back to neutral scores.
type CompatibilityService struct {
	tracer trace.Tracer
}

func NewCompatibilityService(tracer trace.Tracer) *CompatibilityService {
	return &CompatibilityService{
		tracer: tracer,
	}
}

const neutralScore = 50.0

// accommodationAliases normalizes the category names seen in listing data
// so unknown spellings degrade to a cluster match instead of a miss.
var accommodationAliases = map[string]string{
	"b&b":               "guesthouse",
	"bnb":               "guesthouse",
	"bed and breakfast": "guesthouse",
	"bed & breakfast":   "guesthouse",
	"condo":             "apartment",
	"condominium":       "apartment",
	"flat":              "apartment",
	"home":              "house",
	"bungalow":          "house",
	"chalet":            "cabin",
	"boutique hotel":    "hotel",
	"aparthotel":        "hotel",
}

var accommodationClusters = map[string]string{
	"hotel":      "hotel",
	"resort":     "hotel",
	"apartment":  "apartment",
	"studio":     "apartment",
	"loft":       "apartment",
	"house":      "house",
	"villa":      "house",
	"cottage":    "house",
	"cabin":      "house",
	"guesthouse": "guesthouse",
	"hostel":     "guesthouse",
}

func (service *CompatibilityService) Analyze(ctx context.Context, a, b *domain.Booking, weights *domain.CompatibilityWeights) *domain.CompatibilityAnalysis {
	_, span := service.tracer.Start(ctx, "CompatibilityService.Analyze")
	defer span.End()

	w := domain.DefaultCompatibilityWeights()
	if weights != nil {
		// Caller weights are taken verbatim, no renormalization. A set not
		// summing to 1.0 skews the overall score; kept as documented
		// behavior pending a product decision.
		w = *weights
	}

	if a == nil {
		a = &domain.Booking{}
	}
	if b == nil {
		b = &domain.Booking{}
	}

	analysis := &domain.CompatibilityAnalysis{
		Location:      factor(scoreLocation(a, b), w.Location),
		Date:          factor(scoreDates(a, b), w.Date),
		Value:         factor(scoreValue(a, b), w.Value),
		Accommodation: factor(scoreAccommodation(a, b), w.Accommodation),
		Guests:        factor(scoreGuests(a, b), w.Guests),
	}

	overall := analysis.Location.Score*w.Location +
		analysis.Date.Score*w.Date +
		analysis.Value.Score*w.Value +
		analysis.Accommodation.Score*w.Accommodation +
		analysis.Guests.Score*w.Guests
	analysis.OverallScore = int(clamp(math.Round(overall), 0, 100))

	analysis.Recommendations = buildRecommendations(analysis)
	analysis.PotentialIssues = buildIssues(analysis)

	return analysis
}

type factorScore struct {
	score  float64
	detail string
}

func factor(fs factorScore, weight float64) domain.CompatibilityFactor {
	score := clamp(fs.score, 0, 100)
	return domain.CompatibilityFactor{
		Score:  score,
		Weight: weight,
		Status: statusFor(score),
		Detail: fs.detail,
	}
}

func statusFor(score float64) domain.FactorStatus {
	switch {
	case score >= 85:
		return domain.FactorExcellent
	case score >= 70:
		return domain.FactorGood
	case score >= 50:
		return domain.FactorFair
	default:
		return domain.FactorPoor
	}
}

func scoreLocation(a, b *domain.Booking) factorScore {
	locA := strings.TrimSpace(strings.ToLower(a.Location))
	locB := strings.TrimSpace(strings.ToLower(b.Location))

	if locA == "" || locB == "" {
		return factorScore{neutralScore, "Location missing on one side, assuming neutral fit"}
	}
	if locA == locB {
		return factorScore{95, "Both bookings are in the same place"}
	}

	countryA := lastSegment(locA)
	countryB := lastSegment(locB)
	if countryA == countryB {
		similarity := tokenOverlap(locA, locB)
		return factorScore{50 + 40*similarity, "Both bookings are in the same country"}
	}

	return factorScore{30, "Bookings are in different countries"}
}

func lastSegment(location string) string {
	parts := strings.Split(location, ",")
	return strings.TrimSpace(parts[len(parts)-1])
}

func tokenOverlap(a, b string) float64 {
	tokensA := strings.FieldsFunc(a, func(r rune) bool { return r == ',' || r == ' ' })
	tokensB := strings.FieldsFunc(b, func(r rune) bool { return r == ',' || r == ' ' })
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	seen := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		seen[t] = true
	}
	shared := 0
	for _, t := range tokensB {
		if seen[t] {
			shared++
		}
	}
	longest := len(tokensA)
	if len(tokensB) > longest {
		longest = len(tokensB)
	}
	return float64(shared) / float64(longest)
}

func scoreDates(a, b *domain.Booking) factorScore {
	nightsA := a.EndDate.Sub(a.StartDate).Hours() / 24
	nightsB := b.EndDate.Sub(b.StartDate).Hours() / 24
	if nightsA <= 0 || nightsB <= 0 {
		return factorScore{neutralScore, "Stay dates missing or invalid, assuming neutral fit"}
	}

	// Identical windows are a clean simultaneous exchange.
	if a.StartDate.Equal(b.StartDate) && a.EndDate.Equal(b.EndDate) {
		return factorScore{100, "Stay windows are identical"}
	}

	longest := math.Max(nightsA, nightsB)
	base := 100 - 50*(math.Abs(nightsA-nightsB)/longest)

	// Partially overlapping but misaligned windows make the exchange
	// awkward for both parties.
	if a.StartDate.Before(b.EndDate) && b.StartDate.Before(a.EndDate) {
		return factorScore{math.Min(base*0.5, 45), "Stay windows partially overlap"}
	}

	if season(a.StartDate.Month()) == season(b.StartDate.Month()) {
		base += 10
	}

	return factorScore{base, "Stay durations compared with a same-season bonus"}
}

func season(month time.Month) int {
	switch {
	case month >= 3 && month <= 5:
		return 1
	case month >= 6 && month <= 8:
		return 2
	case month >= 9 && month <= 11:
		return 3
	default:
		return 0
	}
}

func scoreValue(a, b *domain.Booking) factorScore {
	if a.TotalValue <= 0 || b.TotalValue <= 0 {
		// Fixed neutral score rather than dividing by zero.
		return factorScore{neutralScore, "Booking value missing on one side, assuming neutral fit"}
	}

	smaller := math.Min(a.TotalValue, b.TotalValue)
	pctDiff := math.Abs(a.TotalValue-b.TotalValue) / smaller * 100

	var score float64
	switch {
	case pctDiff <= 5:
		score = 95
	case pctDiff >= 100:
		score = 40
	default:
		score = 95 - (pctDiff-5)*(55.0/95.0)
	}

	return factorScore{score, fmt.Sprintf("Booking values differ by %.0f%%", pctDiff)}
}

func scoreAccommodation(a, b *domain.Booking) factorScore {
	typeA := normalizeAccommodation(a.AccommodationType)
	typeB := normalizeAccommodation(b.AccommodationType)

	if typeA == "" || typeB == "" {
		return factorScore{neutralScore, "Accommodation type missing on one side, assuming neutral fit"}
	}
	if typeA == typeB {
		return factorScore{100, "Accommodation types match exactly"}
	}

	clusterA, okA := accommodationClusters[typeA]
	clusterB, okB := accommodationClusters[typeB]
	if okA && okB && clusterA == clusterB {
		return factorScore{75, "Accommodation types are in the same category"}
	}

	return factorScore{40, "Accommodation types are unrelated"}
}

func normalizeAccommodation(raw string) string {
	normalized := strings.TrimSpace(strings.ToLower(raw))
	if alias, ok := accommodationAliases[normalized]; ok {
		return alias
	}
	return normalized
}

func scoreGuests(a, b *domain.Booking) factorScore {
	if a.Guests <= 0 || b.Guests <= 0 {
		return factorScore{neutralScore, "Guest count missing on one side, assuming neutral fit"}
	}
	if a.Guests == b.Guests {
		return factorScore{100, "Guest counts match exactly"}
	}

	diff := a.Guests - b.Guests
	if diff < 0 {
		diff = -diff
	}
	score := 100 - 12*float64(diff)

	// Capacity mismatch: one side far above the other's typical range.
	larger, smaller := a.Guests, b.Guests
	if larger < smaller {
		larger, smaller = smaller, larger
	}
	if larger > 2*smaller && diff > 2 {
		score -= 15
	}

	return factorScore{score, fmt.Sprintf("Guest counts differ by %d", diff)}
}

func buildRecommendations(analysis *domain.CompatibilityAnalysis) []string {
	var recommendations []string

	switch {
	case analysis.OverallScore >= 80:
		recommendations = append(recommendations, "This swap is highly recommended, the bookings are a strong match")
	case analysis.OverallScore >= 60:
		recommendations = append(recommendations, "This swap is a reasonable match, review the details before proposing")
	default:
		recommendations = append(recommendations, "These bookings are a weak match, consider looking for a closer fit")
	}

	if analysis.Value.Status == domain.FactorExcellent {
		recommendations = append(recommendations, "Booking values are close, no cash top-up should be needed")
	} else if analysis.Value.Status == domain.FactorPoor {
		recommendations = append(recommendations, "Consider adding a cash top-up to balance the value difference")
	}

	return recommendations
}

func buildIssues(analysis *domain.CompatibilityAnalysis) []string {
	issues := []string{}

	named := []struct {
		name   string
		factor domain.CompatibilityFactor
	}{
		{"location", analysis.Location},
		{"date", analysis.Date},
		{"value", analysis.Value},
		{"accommodation", analysis.Accommodation},
		{"guest count", analysis.Guests},
	}
	for _, entry := range named {
		if entry.factor.Status == domain.FactorPoor {
			issues = append(issues, fmt.Sprintf("Poor %s compatibility: %s", entry.name, entry.factor.Detail))
		}
	}

	return issues
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
