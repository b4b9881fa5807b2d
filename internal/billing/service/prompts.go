package service

import (
	"fmt"

	billingdomain "github.com/coverview/creditd/internal/billing/domain"
)

type titlePrompt struct {
	system string
	user   string
}

func titlePromptFor(style billingdomain.TitleStyle, title string) titlePrompt {
	switch style {
	case billingdomain.TitleStyleCatchy:
		return titlePrompt{
			system: "You are a viral content creation expert. Please optimize the title to be more attractive and viral.",
			user: fmt.Sprintf(`Please optimize the following blog title to be more engaging and likely to go viral: %q

Requirements:
1. Use emotional vocabulary
2. Highlight value and benefits
3. Use numbers and lists
4. Keep length within 60 characters
5. Provide 3 optimized options, one per line

Optimized titles:`, title),
		}
	case billingdomain.TitleStyleSimple:
		return titlePrompt{
			system: "You are a content simplification expert. Please simplify complex titles so beginners can easily understand them.",
			user: fmt.Sprintf(`Please simplify the following blog title for easier understanding: %q

Requirements:
1. Remove professional jargon
2. Use simple and easy-to-understand vocabulary
3. Highlight core concepts
4. Keep length within 60 characters
5. Provide 3 optimized options, one per line
6. Provide only the optimized titles, no explanations

Optimized titles:`, title),
		}
	default:
		return titlePrompt{
			system: "You are a professional title optimization expert. Please optimize the given blog title to be more professional, attractive, and suitable for technical blogs.",
			user: fmt.Sprintf(`Please optimize the following blog title to be more professional and attractive: %q

Requirements:
1. Keep the original meaning
2. Use professional vocabulary
3. Highlight technical points
4. Keep length within 60 characters
5. Provide 3 optimized options, one per line

Optimized titles:`, title),
		}
	}
}

const refineSystemPrompt = "You are an expert Text-to-Image Prompt Engineer. " +
	"Your goal is to write a highly detailed, artistic, and effective prompt for an AI image generator " +
	"based on the user's blog title and description. Return ONLY the prompt, no other text."

func refineUserPrompt(title string, style billingdomain.ImageStyle, description string) string {
	if title == "" {
		title = "Untitled"
	}
	if description == "" {
		description = "A creative cover image"
	}
	return fmt.Sprintf(`Create a prompt for a blog cover image.
Blog Title: %q
Style: %s
User Description: %q

Requirements:
1. Focus on visual elements, lighting, composition, and texture.
2. Incorporate elements related to the title and description.
3. Ensure the style matches the requested %q style.
4. The output must be English.
5. Keep it under 100 words.
6. Return ONLY the prompt.`, title, style, description, style)
}

// imageStyleKeywords mirrors the style selector the editor shows.
var imageStyleKeywords = map[billingdomain.ImageStyle]string{
	billingdomain.ImageStyleRealistic:  "photorealistic, 8k, highly detailed, professional photography, soft lighting",
	billingdomain.ImageStyleArtistic:   "digital art, oil painting style, expressive brushstrokes, artistic composition",
	billingdomain.ImageStyleAnime:      "anime style, studio ghibli style, vibrant colors, cel shaded, high quality",
	billingdomain.ImageStyleFantasy:    "fantasy art, magical atmosphere, ethereal, dreamlike, intricate details",
	billingdomain.ImageStyleCyberpunk:  "cyberpunk style, neon lights, futuristic city, sci-fi, high tech, synthwave",
	billingdomain.ImageStyleMinimalist: "minimalist design, flat style, clean lines, simple, vector art, less is more",
}
