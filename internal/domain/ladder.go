package domain

import (
	"path"
	"sort"
	"strings"
)

// Rendition is one rung of the encoding ladder: a quality label and the
// ffmpeg parameters that produce it.
type Rendition struct {
	Quality      string
	Height       int
	VideoBitrate string
	AudioBitrate string
}

// presets is the platform ladder, ordered tallest first. Bitrates are
// policy values; the descending height order and the non-empty fallback in
// SourceCappedLadder are contracts.
var presets = []Rendition{
	{Quality: "2160p", Height: 2160, VideoBitrate: "15000k", AudioBitrate: "192k"},
	{Quality: "1080p", Height: 1080, VideoBitrate: "5000k", AudioBitrate: "192k"},
	{Quality: "720p", Height: 720, VideoBitrate: "2500k", AudioBitrate: "128k"},
	{Quality: "480p", Height: 480, VideoBitrate: "1000k", AudioBitrate: "128k"},
}

// Presets returns a copy of the full ladder, tallest first.
func Presets() []Rendition {
	out := make([]Rendition, len(presets))
	copy(out, presets)
	return out
}

// PresetFor looks up a single preset by quality label.
func PresetFor(quality string) (Rendition, bool) {
	for _, p := range presets {
		if p.Quality == quality {
			return p, true
		}
	}
	return Rendition{}, false
}

// SourceCappedLadder returns every preset whose height does not exceed the
// probed source height, tallest first. A source shorter than the lowest
// preset still gets that lowest preset: a decodable source never maps to an
// empty ladder.
func SourceCappedLadder(sourceHeight int) []Rendition {
	var out []Rendition
	for _, p := range presets {
		if p.Height <= sourceHeight {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []Rendition{presets[len(presets)-1]}
	}
	return out
}

// FixedLadder resolves explicitly requested quality labels against the
// preset table, tallest first, ignoring the source height (upscaling is the
// caller's call when they name qualities). Labels with no preset are
// dropped; the second return value lists them so the caller can log. If
// nothing resolves, the source-capped ladder is used so the job still
// produces output.
func FixedLadder(qualities []string, sourceHeight int) (ladder []Rendition, unknown []string) {
	seen := make(map[string]bool, len(qualities))
	for _, q := range qualities {
		if q == QualityAuto || seen[q] {
			continue
		}
		seen[q] = true
		p, ok := PresetFor(q)
		if !ok {
			unknown = append(unknown, q)
			continue
		}
		ladder = append(ladder, p)
	}
	if len(ladder) == 0 {
		return SourceCappedLadder(sourceHeight), unknown
	}
	sort.Slice(ladder, func(i, j int) bool { return ladder[i].Height > ladder[j].Height })
	return ladder, unknown
}

// LadderFor picks the policy the job asked for: the source-capped ladder
// for "auto", the fixed ladder for named qualities.
func LadderFor(job *Job, sourceHeight int) (ladder []Rendition, unknown []string) {
	if job.WantsAutoLadder() {
		return SourceCappedLadder(sourceHeight), nil
	}
	return FixedLadder(job.Qualities, sourceHeight)
}

// RenditionKey derives the blob key for one rendition from the source key.
// The derivation is deterministic so a reprocessed job overwrites its own
// output instead of orphaning duplicates, and so source and renditions are
// relatable by name alone.
func RenditionKey(sourceKey, quality string) string {
	return strippedKey(sourceKey) + "_" + quality + ".mp4"
}

// ThumbnailKey derives the blob key for the job's still-frame thumbnail.
func ThumbnailKey(sourceKey string) string {
	return strippedKey(sourceKey) + "_thumb.jpg"
}

func strippedKey(sourceKey string) string {
	return strings.TrimSuffix(sourceKey, path.Ext(sourceKey))
}
