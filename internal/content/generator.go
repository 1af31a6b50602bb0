// Package content generates branded marketing copy from a style profile.
package content

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/codebuildervaibhav/content-pipeline/internal/llm"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

// Field keys, in the order they are stored
const (
	FieldTitle       = "rendered_title"
	FieldSubtitle    = "rendered_subtitle"
	FieldBio         = "rendered_bio_html"
	FieldBlogTitle   = "blog_post_title"
	FieldBlogContent = "blog_post_content"
)

const (
	defaultClientName  = "Brand Name"
	defaultExpertise   = "Professional Services"
	transcriptLimit    = 2000
	socialPromptLimit  = 1500
	contentTemperature = 0.7
)

// Fallback step names recorded on the result
const (
	StepSubtitle   = "subtitle"
	StepBio        = "bio"
	StepHighlights = "highlights"
	StepBlog       = "blog_post"
	StepSocial     = "social"
)

// Completer sends one prompt to a language model
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Input is everything the content stage reads
type Input struct {
	Content    *types.Content
	Profile    *types.Profile
	Transcript *types.Transcript
	// ClientName overrides the name found in the raw profile
	ClientName string
}

// Generator runs the content stage
type Generator struct {
	llm Completer
}

// NewGenerator creates a content generator
func NewGenerator(c Completer) *Generator {
	return &Generator{llm: c}
}

type run struct {
	g         *Generator
	ctx       context.Context
	fallbacks []string
	calls     int
	failures  int
	lastErr   error
}

// complete calls the model, counting failures so Process can tell a partial
// outage from a total one
func (r *run) complete(system, prompt string, maxTokens int) (string, error) {
	r.calls++
	out, err := r.g.llm.Complete(r.ctx, llm.CompletionRequest{
		System:      system,
		Prompt:      prompt,
		Temperature: contentTemperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		r.failures++
		r.lastErr = err
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *run) fallback(step string) {
	r.fallbacks = append(r.fallbacks, step)
}

// Process generates every content field. A failed model call is replaced by
// canned copy and recorded in Fallbacks; the stage fails only when the
// context ends or every model call failed.
func (g *Generator) Process(ctx context.Context, in Input) (*types.ContentResult, error) {
	if in.Profile == nil || in.Transcript == nil {
		return nil, errors.New("profile and transcript are required")
	}

	r := &run{g: g, ctx: ctx}
	p := in.Profile
	clientName := ClientName(in.ClientName, p.RawProfile)
	expertise := Expertise(p.Themes)
	transcript := in.Transcript.Text()

	fields := []types.ContentField{{Key: FieldTitle, Value: clientName}}
	add := func(key, value string) {
		fields = append(fields, types.ContentField{Key: key, Value: value})
	}

	add(FieldSubtitle, r.subtitle(expertise, p.Values))
	add(FieldBio, r.bio(transcript, p, clientName))

	for i, h := range r.highlights(transcript, p.Values) {
		add(fmt.Sprintf("bio_card_%d", i+1), h)
	}

	title, body := r.blogPost(transcript, p, clientName)
	add(FieldBlogTitle, title)
	add(FieldBlogContent, body)

	social := r.social(transcript, p, clientName)
	for _, platform := range platforms {
		posts := social[platform]
		for i := 0; i < 2; i++ {
			add(fmt.Sprintf("%s_post_%d", platform, i+1), posts[i])
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.failures == r.calls {
		return nil, fmt.Errorf("content generation failed, every model call failed: %w", r.lastErr)
	}

	return &types.ContentResult{Fields: fields, Fallbacks: r.fallbacks}, nil
}

var clientIDLine = regexp.MustCompile(`Client ID: (.+?)\n`)

// ClientName picks the display name: an explicit name, else the raw
// profile's "Client ID:" line, else a placeholder
func ClientName(explicit, rawProfile string) string {
	if name := strings.TrimSpace(explicit); name != "" {
		return name
	}
	if m := clientIDLine.FindStringSubmatch(rawProfile); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			return name
		}
	}
	return defaultClientName
}

// Expertise is the first profile theme
func Expertise(themes []string) string {
	if len(themes) > 0 && strings.TrimSpace(themes[0]) != "" {
		return themes[0]
	}
	return defaultExpertise
}

func (r *run) subtitle(expertise string, values []string) string {
	prompt := fmt.Sprintf("Create a short, compelling subtitle for a personal brand website. The person's expertise is in %s. Their core values include: %s. The subtitle should be concise (5-10 words) and capture their unique value proposition.",
		expertise, strings.Join(values, ", "))

	out, err := r.complete("You are a skilled copywriter who creates concise, impactful taglines.", prompt, 50)
	if err != nil || out == "" {
		r.fallback(StepSubtitle)
		return expertise + " Expert"
	}
	return strings.ReplaceAll(out, `"`, "")
}

func (r *run) bio(transcript string, p *types.Profile, clientName string) string {
	prompt := fmt.Sprintf(`Create a compelling professional bio for %s. Use the following interview transcript and style profile to capture their authentic voice, expertise, and unique value proposition.

TRANSCRIPT:
%s... [truncated]

STYLE PROFILE:
%s

The bio should:
1. Be written in the third person
2. Be 3-4 paragraphs long
3. Highlight their expertise, approach, and values
4. Include a call to action at the end
5. Use their authentic voice and tone
6. Be formatted in HTML with appropriate paragraph tags

Output only the HTML bio without any explanation.`, clientName, truncate(transcript, transcriptLimit), styleText(p, true))

	out, err := r.complete("You are an expert copywriter who creates compelling professional bios.", prompt, 1000)
	if err != nil || out == "" {
		r.fallback(StepBio)
		return fmt.Sprintf("<p>%s is a professional with expertise in their field.</p>", clientName)
	}
	return stripFence(out)
}

var defaultHighlights = []string{
	"Expertise: Professional services with years of experience.",
	"Client Focus: Dedicated to delivering exceptional results.",
	"Innovation: Bringing fresh perspectives to every project.",
}

func (r *run) highlights(transcript string, values []string) []string {
	prompt := fmt.Sprintf(`Extract 3 key highlights or unique selling points from the following interview transcript. The person's core values include: %s.

TRANSCRIPT:
%s... [truncated]

For each highlight:
1. Create a short, attention-grabbing title (3-5 words)
2. Write a brief description (1-2 sentences) that explains the benefit or unique approach
3. Format each as "Title: Description"

Return exactly 3 highlights, separated by newlines.`, strings.Join(values, ", "), truncate(transcript, transcriptLimit))

	out, err := r.complete("You are an expert at identifying and articulating unique value propositions.", prompt, 500)
	if err != nil {
		r.fallback(StepHighlights)
		return defaultHighlights
	}

	items := splitNonEmpty(out, "\n\n")
	if len(items) < 3 {
		items = splitNonEmpty(out, "\n")
	}
	if len(items) == 0 {
		r.fallback(StepHighlights)
		return defaultHighlights
	}
	if len(items) > 3 {
		items = items[:3]
	}
	return items
}

func (r *run) blogPost(transcript string, p *types.Profile, clientName string) (string, string) {
	prompt := fmt.Sprintf(`Create a blog post based on the following interview transcript and style profile for %s.

TRANSCRIPT:
%s... [truncated]

STYLE PROFILE:
%s

The blog post should:
1. Have an engaging title that includes a keyword related to their expertise
2. Be 500-700 words long
3. Be structured with an introduction, 3-4 main points, and a conclusion
4. Include a call to action at the end
5. Match their authentic voice and tone
6. Be formatted in HTML with appropriate heading and paragraph tags

Return the blog post as a JSON object with 'title' and 'content' fields.`, clientName, truncate(transcript, transcriptLimit), styleText(p, false))

	out, err := r.complete("You are an expert content writer who creates engaging blog posts.", prompt, 1500)
	if err != nil || out == "" {
		r.fallback(StepBlog)
		return "Insights from " + clientName, "<p>Blog content will be generated soon.</p>"
	}
	return parseBlogPost(out)
}

var platforms = []string{"linkedin", "twitter", "instagram", "facebook"}

func defaultSocial(clientName string) map[string][]string {
	return map[string][]string{
		"linkedin": {
			fmt.Sprintf("Sharing insights on professional development and growth. Connect with %s to learn more about our approach to success.", clientName),
			fmt.Sprintf("Innovation and excellence are at the core of what we do. Discover how %s can help you achieve your goals.", clientName),
		},
		"twitter": {
			"Excited to share my expertise in the field. Let's connect and grow together! #ProfessionalDevelopment",
			"New insights on industry trends now available. Check out our latest offerings! #Innovation",
		},
		"instagram": {
			"Sharing a glimpse into our professional journey. #GrowthMindset #Success",
			"Behind the scenes of our latest project. #Innovation #Excellence",
		},
		"facebook": {
			"We're passionate about helping our clients succeed. Reach out to learn how we can support your goals!",
			"Exciting developments in our field that we can't wait to share with you. Stay tuned for more updates!",
		},
	}
}

// social returns exactly two posts per platform
func (r *run) social(transcript string, p *types.Profile, clientName string) map[string][]string {
	prompt := fmt.Sprintf(`Create social media posts for %s based on their interview transcript and style profile.

TRANSCRIPT:
%s... [truncated]

STYLE PROFILE:
%s

Generate 2 posts each for:
1. LinkedIn (professional, 1-2 paragraphs)
2. Twitter/X (concise, under 280 characters)
3. Instagram (visual description + hashtags)
4. Facebook (conversational, medium length)

Each post should:
- Capture their authentic voice
- Highlight different aspects of their expertise or values
- Include a call to action
- For Twitter/X, ensure posts are under 280 characters

Return the posts as a JSON object with arrays for each platform.`, clientName, truncate(transcript, socialPromptLimit), styleText(p, false))

	defaults := defaultSocial(clientName)
	out, err := r.complete("You are an expert social media content creator.", prompt, 1500)
	if err != nil {
		r.fallback(StepSocial)
		return defaults
	}

	parsed, ok := parseSocial(out)
	if !ok {
		r.fallback(StepSocial)
		return defaults
	}

	result := make(map[string][]string, len(platforms))
	for _, platform := range platforms {
		posts := parsed[platform]
		if len(posts) < 2 {
			r.fallback(StepSocial + ":" + platform)
			posts = append(posts, defaults[platform][len(posts):]...)
		}
		result[platform] = posts[:2]
	}
	return result
}

func styleText(p *types.Profile, full bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nVoice: %s\n", strings.Join(p.Voice, ", "))
	fmt.Fprintf(&b, "Themes: %s\n", strings.Join(p.Themes, ", "))
	fmt.Fprintf(&b, "Values: %s\n", strings.Join(p.Values, ", "))
	if full {
		fmt.Fprintf(&b, "Emotional Tone: %s\n", strings.Join(p.EmotionalTone, ", "))
		fmt.Fprintf(&b, "Relatability: %s\n", strings.Join(p.Relatability, ", "))
	}
	return b.String()
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// stripFence removes a surrounding ``` code fence
func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return s
	}
	t = strings.TrimSuffix(t[3:], "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	}
	return strings.TrimSpace(t)
}
