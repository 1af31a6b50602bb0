package render

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

var previewTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Georgia, serif; margin: 48px; color: #222; }
h1 { margin-bottom: 0; }
.subtitle { font-size: 1.2em; color: #666; margin-top: 4px; }
.cards { display: flex; gap: 16px; margin: 24px 0; }
.card { flex: 1; border: 1px solid #ddd; border-radius: 6px; padding: 12px; }
.post { border-left: 3px solid #ccc; padding-left: 12px; margin: 12px 0; white-space: pre-wrap; }
h3 { text-transform: capitalize; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="subtitle">{{.Subtitle}}</p>
<section class="bio">{{.Bio}}</section>
{{if .Cards}}<div class="cards">{{range .Cards}}<div class="card">{{.}}</div>{{end}}</div>{{end}}
{{if .BlogTitle}}<h2>{{.BlogTitle}}</h2>
<article>{{.BlogContent}}</article>{{end}}
{{if .Social}}<h2>Social</h2>{{range .Social}}
<h3>{{.Platform}}</h3>{{range .Posts}}<div class="post">{{.}}</div>{{end}}{{end}}{{end}}
</body>
</html>
`))

type platformPosts struct {
	Platform string
	Posts    []string
}

type preview struct {
	Title       string
	Subtitle    string
	Bio         template.HTML
	Cards       []string
	BlogTitle   string
	BlogContent template.HTML
	Social      []platformPosts
}

var socialOrder = map[string]int{"linkedin": 0, "twitter": 1, "instagram": 2, "facebook": 3}

// PreviewHTML lays out content fields as a printable page
func PreviewHTML(c *types.Content) (string, error) {
	var p preview
	social := map[string][]string{}

	for _, f := range c.ContentFields {
		switch {
		case f.Key == "rendered_title":
			p.Title = f.Value
		case f.Key == "rendered_subtitle":
			p.Subtitle = f.Value
		case f.Key == "rendered_bio_html":
			p.Bio = template.HTML(sanitize(f.Value))
		case strings.HasPrefix(f.Key, "bio_card_"):
			p.Cards = append(p.Cards, f.Value)
		case f.Key == "blog_post_title":
			p.BlogTitle = f.Value
		case f.Key == "blog_post_content":
			p.BlogContent = template.HTML(sanitize(f.Value))
		case strings.Contains(f.Key, "_post_"):
			platform := f.Key[:strings.Index(f.Key, "_post_")]
			social[platform] = append(social[platform], f.Value)
		}
	}

	for platform, posts := range social {
		p.Social = append(p.Social, platformPosts{Platform: platform, Posts: posts})
	}
	sort.Slice(p.Social, func(i, j int) bool {
		oi, iok := socialOrder[p.Social[i].Platform]
		oj, jok := socialOrder[p.Social[j].Platform]
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return p.Social[i].Platform < p.Social[j].Platform
	})

	var buf bytes.Buffer
	if err := previewTemplate.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("render preview: %w", err)
	}
	return buf.String(), nil
}

// sanitize drops active content from model-written HTML
func sanitize(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return template.HTMLEscapeString(fragment)
	}
	doc.Find("script, style, iframe, object, embed, form").Remove()
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		var unsafe []string
		for _, attr := range s.Nodes[0].Attr {
			key := strings.ToLower(attr.Key)
			val := strings.ToLower(strings.TrimSpace(attr.Val))
			if strings.HasPrefix(key, "on") || strings.HasPrefix(val, "javascript:") {
				unsafe = append(unsafe, attr.Key)
			}
		}
		for _, key := range unsafe {
			s.RemoveAttr(key)
		}
	})
	out, err := doc.Find("body").Html()
	if err != nil {
		return template.HTMLEscapeString(fragment)
	}
	return strings.TrimSpace(out)
}
