// Package standardize implements the pure, deterministic mapping from raw
// scraped animal fields to their canonical counterparts (spec §4.5). It has
// no side effects and no dependency on the database: standardize(x) always
// produces the same output for the same input, and standardizing an
// already-standardized record is a no-op (idempotence, spec §8).
package standardize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/markusmobius/go-dateparser"

	"github.com/rescuedogs/aggregator/internal/domain/animals"
)

// Canonical size buckets (spec §4.5).
const (
	SizeTiny   = "Tiny"
	SizeSmall  = "Small"
	SizeMedium = "Medium"
	SizeLarge  = "Large"
	SizeXLarge = "XLarge"
)

// Canonical age categories.
const (
	AgeCategoryPuppy  = "Puppy"
	AgeCategoryYoung  = "Young"
	AgeCategoryAdult  = "Adult"
	AgeCategorySenior = "Senior"
)

// Canonical sex values.
const (
	SexMale    = "male"
	SexFemale  = "female"
	SexUnknown = "unknown"
)

// Documented defaults used when raw input cannot be classified. The store
// forbids nulls in these fields, so "unknown" is itself a first-class value,
// never an absence.
const (
	DefaultBreed      = "Mixed Breed"
	DefaultBreedGroup = "Mixed"
	DefaultSize       = SizeMedium
	DefaultAgeCategory = AgeCategoryAdult
)

// Result is the Standardizer's output for one raw animal.
type Result struct {
	StandardizedBreed string
	BreedGroup        string
	PrimaryBreed      string
	StandardizedSize  string
	AgeMinMonths      *int
	AgeMaxMonths      *int
	AgeCategory       string
	StandardizedSex   string
	Confidence        float64
}

// weightBreakpoints maps an exclusive upper bound in kilograms to the size it
// yields (spec §4.5): {<5: Tiny, <12: Small, <25: Medium, <40: Large, else XLarge}.
var weightBreakpoints = []struct {
	upperKg float64
	size    string
}{
	{5, SizeTiny},
	{12, SizeSmall},
	{25, SizeMedium},
	{40, SizeLarge},
}

// Standardize maps a raw animal's text fields to their canonical
// counterparts. now is injected (rather than time.Now()) so age-from-birthdate
// computation is deterministic and testable; production callers pass
// time.Now().
func Standardize(raw animals.RawAnimal, now time.Time) Result {
	breed, breedGroup, primaryBreed, breedConfidence := standardizeBreed(raw.Breed)
	size, sizeConfidence := standardizeSize(raw.Size, raw.Properties)
	ageMin, ageMax, ageCategory, ageConfidence := standardizeAge(raw.Age, now)
	sex, sexConfidence := standardizeSex(raw.Sex)

	confidence := average(breedConfidence, sizeConfidence, ageConfidence, sexConfidence)

	return Result{
		StandardizedBreed: breed,
		BreedGroup:        breedGroup,
		PrimaryBreed:      primaryBreed,
		StandardizedSize:  size,
		AgeMinMonths:      ageMin,
		AgeMaxMonths:      ageMax,
		AgeCategory:       ageCategory,
		StandardizedSex:   sex,
		Confidence:        round2(confidence),
	}
}

// Apply is the idempotent entry point used by the framework: re-standardizing
// an already-standardized Animal must reproduce the same Result, because the
// inputs it reads (Breed/Size/Age/Sex) are the raw fields, never overwritten
// by a previous standardization pass.
func Apply(a animals.Animal, now time.Time) Result {
	return Standardize(animals.RawAnimal{
		Breed:      a.Breed,
		Size:       a.Size,
		Age:        a.Age,
		Sex:        a.Sex,
		Properties: a.Properties,
	}, now)
}

// --- breed -------------------------------------------------------------

// breedGroups maps a lowercase breed-name fragment to its breed group and a
// canonical display name. Not exhaustive — the long tail maps to Mixed.
var breedGroups = []struct {
	fragment string
	canonical string
	group     string
}{
	{"labrador", "Labrador Retriever", "Sporting"},
	{"golden retriever", "Golden Retriever", "Sporting"},
	{"german shepherd", "German Shepherd", "Herding"},
	{"border collie", "Border Collie", "Herding"},
	{"collie", "Collie", "Herding"},
	{"pit bull", "Pit Bull Terrier", "Terrier"},
	{"staffordshire", "Staffordshire Terrier", "Terrier"},
	{"terrier", "Terrier", "Terrier"},
	{"husky", "Siberian Husky", "Working"},
	{"rottweiler", "Rottweiler", "Working"},
	{"mastiff", "Mastiff", "Guardian"},
	{"kangal", "Kangal", "Guardian"},
	{"anatolian shepherd", "Anatolian Shepherd", "Guardian"},
	{"poodle", "Poodle", "Non-Sporting"},
	{"chihuahua", "Chihuahua", "Toy"},
	{"dachshund", "Dachshund", "Hound"},
	{"beagle", "Beagle", "Hound"},
	{"hound", "Hound", "Hound"},
}

var mixIndicator = regexp.MustCompile(`(?i)\bmix(ed)?\b|\bcross\b`)

func standardizeBreed(raw string) (breed, group, primary string, confidence float64) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DefaultBreed, DefaultBreedGroup, "", 0.2
	}

	lower := strings.ToLower(trimmed)
	isMix := mixIndicator.MatchString(lower)

	for _, bg := range breedGroups {
		if strings.Contains(lower, bg.fragment) {
			if isMix {
				return bg.canonical + " Mix", bg.group, bg.canonical, 0.75
			}
			return bg.canonical, bg.group, "", 0.9
		}
	}

	// Unrecognized breed text: keep the raw text as the standardized breed
	// (title-cased) rather than discarding information, but with low
	// confidence and the default group.
	return titleCase(trimmed), DefaultBreedGroup, "", 0.3
}

// --- size ----------------------------------------------------------------

func standardizeSize(raw string, properties map[string]any) (string, float64) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	switch trimmed {
	case "tiny", "xs", "extra small":
		return SizeTiny, 0.9
	case "small", "s":
		return SizeSmall, 0.9
	case "medium", "m", "mid":
		return SizeMedium, 0.9
	case "large", "l":
		return SizeLarge, 0.9
	case "xlarge", "extra large", "xl", "giant":
		return SizeXLarge, 0.9
	}

	// Weight-based fallback (spec §4.5).
	if weightKg, ok := weightFromProperties(properties); ok {
		for _, bp := range weightBreakpoints {
			if weightKg < bp.upperKg {
				return bp.size, 0.7
			}
		}
		return SizeXLarge, 0.7
	}

	return DefaultSize, 0.2
}

func weightFromProperties(properties map[string]any) (float64, bool) {
	if properties == nil {
		return 0, false
	}
	raw, ok := properties["weight_kg"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// --- age -------------------------------------------------------------------

var (
	yearsPattern  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:years?|yrs?|y/o|yo)\b`)
	monthsPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:months?|mos?)\b`)
	weeksPattern  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:weeks?|wks?)\b`)
	datePattern   = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{2,4})\b`)
)

var lifeStageRanges = map[string][2]int{
	"puppy":    {0, 11},
	"young":    {12, 35},
	"adult":    {36, 95},
	"senior":   {96, 240},
	"kitten":   {0, 11}, // guards against mis-tagged cross-posted feeds
}

func standardizeAge(raw string, now time.Time) (min, max *int, category string, confidence float64) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return nil, nil, DefaultAgeCategory, 0.2
	}

	if m := yearsPattern.FindStringSubmatch(trimmed); m != nil {
		years, _ := strconv.ParseFloat(m[1], 64)
		months := int(math.Round(years * 12))
		return monthsToRange(months, 0.85)
	}

	if m := monthsPattern.FindStringSubmatch(trimmed); m != nil {
		months, _ := strconv.ParseFloat(m[1], 64)
		return monthsToRange(int(math.Round(months)), 0.85)
	}

	if m := weeksPattern.FindStringSubmatch(trimmed); m != nil {
		weeks, _ := strconv.ParseFloat(m[1], 64)
		months := int(math.Round(weeks / 4.345))
		return monthsToRange(months, 0.7)
	}

	if m := datePattern.FindStringSubmatch(trimmed); m != nil {
		if birth, ok := parseBirthDate(m); ok {
			months := monthsBetween(birth, now)
			if months >= 0 {
				return monthsToRange(months, 0.8)
			}
		}
	}

	// Fixed order, so text naming more than one stage always resolves the same way.
	for _, stage := range []string{"puppy", "young", "adult", "senior", "kitten"} {
		if strings.Contains(trimmed, stage) {
			bounds := lifeStageRanges[stage]
			lo, hi := bounds[0], bounds[1]
			return &lo, &hi, categoryFor(lo), 0.6
		}
	}

	// Last resort: a free-text phrase dateparser might resolve relative to now
	// (e.g. "born around March 2023"). Best-effort only — parse failures fall
	// through to the documented default rather than propagating an error, per
	// spec §4.5's "unknown inputs map to documented defaults, never to null".
	if parsed, ok := tryDateParser(trimmed, now); ok {
		months := monthsBetween(parsed, now)
		if months >= 0 {
			return monthsToRange(months, 0.5)
		}
	}

	return nil, nil, DefaultAgeCategory, 0.2
}

func tryDateParser(text string, now time.Time) (time.Time, bool) {
	cfg := &dateparser.Configuration{
		CurrentTime: now,
	}
	result, err := dateparser.Parse(cfg, text)
	if err != nil || result == nil {
		return time.Time{}, false
	}
	return result.Time, true
}

func parseBirthDate(m []string) (time.Time, bool) {
	day, errD := strconv.Atoi(m[1])
	month, errM := strconv.Atoi(m[2])
	year, errY := strconv.Atoi(m[3])
	if errD != nil || errM != nil || errY != nil {
		return time.Time{}, false
	}
	if year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

func monthsBetween(birth, now time.Time) int {
	months := (now.Year()-birth.Year())*12 + int(now.Month()) - int(birth.Month())
	if now.Day() < birth.Day() {
		months--
	}
	return months
}

func monthsToRange(months int, confidence float64) (*int, *int, string, float64) {
	if months < 0 {
		months = 0
	}
	lo, hi := months, months
	return &lo, &hi, categoryFor(months), confidence
}

func categoryFor(months int) string {
	switch {
	case months <= 11:
		return AgeCategoryPuppy
	case months <= 35:
		return AgeCategoryYoung
	case months <= 95:
		return AgeCategoryAdult
	default:
		return AgeCategorySenior
	}
}

// --- sex -------------------------------------------------------------------

func standardizeSex(raw string) (string, float64) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case trimmed == "":
		return SexUnknown, 0.2
	case strings.HasPrefix(trimmed, "m"):
		return SexMale, 0.9
	case strings.HasPrefix(trimmed, "f"):
		return SexFemale, 0.9
	default:
		return SexUnknown, 0.3
	}
}

// --- helpers -----------------------------------------------------------

func average(values ...float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) == 0 {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
