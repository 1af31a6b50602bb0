package content

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/codebuildervaibhav/content-pipeline/internal/llm"
)

var (
	blogTitleRe   = regexp.MustCompile(`(?i)title["\s:]+([^"\n]+)`)
	blogContentRe = regexp.MustCompile(`(?i)content["\s:]+([^}]+)`)
)

// parseBlogPost reads {"title", "content"} from a reply. Replies that are not
// JSON are scraped for title/content labels; the whole reply becomes the
// content when no label is found.
func parseBlogPost(reply string) (string, string) {
	var post struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if obj := llm.ExtractJSON(reply); obj != "" {
		if err := json.Unmarshal([]byte(obj), &post); err == nil && (post.Title != "" || post.Content != "") {
			if post.Title == "" {
				post.Title = "Blog Post"
			}
			return strings.TrimSpace(post.Title), strings.TrimSpace(post.Content)
		}
	}

	title := "Blog Post"
	if m := blogTitleRe.FindStringSubmatch(reply); m != nil {
		if t := strings.TrimSpace(m[1]); t != "" {
			title = t
		}
	}
	content := reply
	if m := blogContentRe.FindStringSubmatch(reply); m != nil {
		content = strings.Trim(strings.TrimSpace(m[1]), `"`)
	}
	return title, content
}

// parseSocial reads per-platform post arrays. Keys are matched loosely, so
// "LinkedIn" and "Twitter/X" are accepted.
func parseSocial(reply string) (map[string][]string, bool) {
	obj := llm.ExtractJSON(reply)
	if obj == "" {
		return nil, false
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, false
	}

	out := make(map[string][]string)
	for key, val := range raw {
		platform, ok := platformOf(key)
		if !ok {
			continue
		}
		out[platform] = decodePosts(val)
	}
	return out, len(out) > 0
}

func platformOf(key string) (string, bool) {
	k := strings.ToLower(key)
	switch {
	case strings.Contains(k, "linkedin"):
		return "linkedin", true
	case strings.Contains(k, "twitter"), k == "x":
		return "twitter", true
	case strings.Contains(k, "instagram"):
		return "instagram", true
	case strings.Contains(k, "facebook"):
		return "facebook", true
	}
	return "", false
}

// decodePosts accepts ["post", ...] or [{"content": "post"}, ...]
func decodePosts(raw json.RawMessage) []string {
	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	posts := make([]string, 0, len(items))
	for _, item := range items {
		var text string
		switch v := item.(type) {
		case string:
			text = v
		case map[string]interface{}:
			for _, k := range []string{"content", "text", "post", "body"} {
				if s, ok := v[k].(string); ok {
					text = s
					break
				}
			}
		default:
			if v != nil {
				text = fmt.Sprint(v)
			}
		}
		if text = strings.TrimSpace(text); text != "" {
			posts = append(posts, text)
		}
	}
	return posts
}
