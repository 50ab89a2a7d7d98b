package ingest

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/machikado/eventops/internal/domain"
)

// DetectorConfig tunes duplicate detection.
type DetectorConfig struct {
	// TitleThreshold is the minimum title similarity for a
	// similar-title candidate.
	TitleThreshold float64

	// MinScore discards candidates below it after scoring.
	MinScore float64
}

// DefaultDetectorConfig returns the thresholds used when none are configured.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{TitleThreshold: 0.65, MinScore: 0.5}
}

// Detector flags likely duplicates of incoming events against the
// published set. Its output is advisory metadata: it never blocks
// publish or merges records.
type Detector struct {
	cfg DetectorConfig
}

// NewDetector returns a Detector with the given thresholds. Zero
// thresholds fall back to defaults.
func NewDetector(cfg DetectorConfig) *Detector {
	def := DefaultDetectorConfig()
	if cfg.TitleThreshold <= 0 {
		cfg.TitleThreshold = def.TitleThreshold
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = def.MinScore
	}
	return &Detector{cfg: cfg}
}

// Detect compares an incoming event against the published set and
// returns candidates ranked by score descending. Two signals apply
// independently, strongest match per published event wins:
//
//  1. same normalized official URL and same calendar date, score 1.0
//  2. title similarity above the threshold and same or adjacent
//     calendar date, score = similarity in [0,1)
func (d *Detector) Detect(incoming domain.Event, published []domain.Event) []domain.DuplicateCandidate {
	inURL := normalizeURL(incoming.OfficialURL)
	inDate, inDateOK := eventDate(incoming)
	inTitle := normalizeTitle(incoming.Title)

	var candidates []domain.DuplicateCandidate
	for _, pub := range published {
		pubDate, pubDateOK := eventDate(pub)
		if !inDateOK || !pubDateOK {
			continue
		}
		dayDiff := daysBetween(inDate, pubDate)

		if inURL != "" && inURL == normalizeURL(pub.OfficialURL) && dayDiff == 0 {
			candidates = append(candidates, domain.DuplicateCandidate{
				EventID:     pub.ID,
				Title:       pub.Title,
				MatchReason: domain.MatchSameURLAndDate,
				MatchScore:  1.0,
			})
			continue
		}

		if dayDiff <= 1 && inTitle != "" {
			sim := titleSimilarity(inTitle, normalizeTitle(pub.Title))
			if sim >= d.cfg.TitleThreshold && sim >= d.cfg.MinScore {
				candidates = append(candidates, domain.DuplicateCandidate{
					EventID:     pub.ID,
					Title:       pub.Title,
					MatchReason: domain.MatchSimilarTitleAndDate,
					MatchScore:  sim,
				})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].MatchScore > candidates[j].MatchScore
	})
	return candidates
}

// eventDate returns the calendar date an event is compared on: the
// start date when set, otherwise the update date.
func eventDate(ev domain.Event) (time.Time, bool) {
	if ev.StartAt != nil {
		return ev.StartAt.UTC().Truncate(24 * time.Hour), true
	}
	if !ev.UpdatedAt.IsZero() {
		return ev.UpdatedAt.UTC().Truncate(24 * time.Hour), true
	}
	return time.Time{}, false
}

func daysBetween(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}

// normalizeURL canonicalizes a URL for exact comparison: lowercased
// scheme and host, default ports and fragments stripped, no trailing
// slash. Returns empty string when the URL does not parse.
func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}

	path := strings.TrimSuffix(u.Path, "/")

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(u.RawQuery)
	}
	return b.String()
}

// normalizeTitle lowercases and collapses whitespace for similarity
// comparison.
func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// titleSimilarity returns 1 - normalized edit distance between two
// already-normalized titles, in [0,1].
func titleSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}

	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(dist)/float64(maxLen)
}
