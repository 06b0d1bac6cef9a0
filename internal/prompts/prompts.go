package prompts

import (
	"fmt"
	"strings"
)

// ============================================================================
// Metadata Prompts
// ============================================================================

// MetadataPrompt asks the vision model for a stock listing.
const MetadataPrompt = `You are an expert stock photography contributor who writes listings for Adobe Stock and Shutterstock.
Analyze the attached image and produce metadata that maximises discoverability.

Requirements:
- Title: descriptive and SEO-friendly, between 55 and 150 characters.
- Description: one or two sentences between 70 and 200 characters covering subject, setting and mood.
- Keywords: between 35 and 49 single words or short phrases, ordered by relevance, mixing literal terms (what is visible) with conceptual terms (ideas, emotions, uses). No duplicates.
- Category: the single best fitting stock category.

Return strict JSON only, matching the provided schema. Do not add commentary.`

// Field descriptions used in the structured response schema.
const (
	SchemaTitle       = "SEO-friendly title for the stock asset (55-150 characters)"
	SchemaDescription = "Detailed description of the image, 70-200 characters"
	SchemaKeywords    = "35-49 relevant keywords ordered by relevance"
	SchemaCategory    = "The most fitting stock photography category"
)

// ============================================================================
// Prompt Generator
// ============================================================================

// ImagePromptInstruction asks for a text-to-image prompt describing the image.
const ImagePromptInstruction = `Look at this image and write a short, realistic text prompt that could be used to recreate it with an AI image generator such as Midjourney or Stable Diffusion.
Focus on the subject and action, the lighting and atmosphere, and the style and composition.
Keep it under 75 words. Be direct and do not add any introduction text.`

// ============================================================================
// Trend Lookup
// ============================================================================

// TrendKeywordLimit is the number of leading keywords sent to the search query.
const TrendKeywordLimit = 5

// TrendQuery builds the grounded search query for the first keywords.
func TrendQuery(keywords []string) string {
	if len(keywords) > TrendKeywordLimit {
		keywords = keywords[:TrendKeywordLimit]
	}
	return fmt.Sprintf(
		"Find current trending search terms related to these stock photography keywords: %s. "+
			"Return a simple list of 5-10 trending keywords or short phrases, one per line. "+
			"Do not explain, just list them.",
		strings.Join(keywords, ", "),
	)
}
