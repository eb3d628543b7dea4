package catalog

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/gosimple/slug"
)

// MinConfidence is the similarity (0-100) a known name must exceed
// for its slug to be used instead of a slug derived from the title.
const MinConfidence = 90

var slugStrip = strings.NewReplacer("/", "", "'", "", ".", "", ":", "")

// Slugify derives a slug from a title the same way the catalog does.
func Slugify(title string) string {
	return slug.Make(slugStrip.Replace(title))
}

// Index maps song names and abbreviations to slugs.
type Index map[string]string

// Resolve returns the slug of the closest known name,
// or a slug derived from title if nothing is close enough.
func (idx Index) Resolve(title string) string {
	names := make([]string, 0, len(idx))
	for name := range idx {
		names = append(names, name)
	}

	sort.Strings(names)
	best, confidence := "", -1
	for _, name := range names {
		if c := similarity(title, name); c > confidence {
			best, confidence = name, c
		}
	}

	if confidence > MinConfidence {
		return idx[best]
	}

	return Slugify(title)
}

// similarity is an edit-distance ratio in 0-100, case-insensitive.
func similarity(a, b string) int {
	a, b = normalize(a), normalize(b)
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 100
	}

	distance := levenshtein.ComputeDistance(a, b)
	return 100 * (total - distance) / total
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
