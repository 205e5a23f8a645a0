package scoring

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"gonephishing/internal/config"
	"gonephishing/internal/domain"
	"gonephishing/internal/services/brand"
)

var jsRedirectRe = regexp.MustCompile(`(?i)(?:window\.|document\.|top\.|self\.)?location(?:\.href)?\s*=\s*['"]([^'"#]+)['"]|location\.(?:replace|assign)\(\s*['"]([^'"#]+)['"]`)

var obfuscationMarkers = []string{
	"eval(",
	"atob(",
	"unescape(",
	"new function(",
	"fromcharcode",
	"document.write(unescape",
}

// Input is everything the scorer looks at. BaseDomain is the seed whose
// brand is being protected.
type Input struct {
	HTML                    string
	BaseDomain              string
	FinalURL                string
	RedirectLocation        string
	UnexpectedOAuthRedirect bool
}

type Result struct {
	Score   int
	Band    domain.LookupStatus
	Reasons []string
	Title   string
	Images  []string
}

// Scorer applies the configured weight table. It performs no I/O.
type Scorer struct {
	weights    map[string]int
	danger     int
	suspicious int
	providers  brand.Providers
}

func New(det config.Detection) *Scorer {
	weights := config.DefaultWeights()
	for k, v := range det.ScoreWeights {
		weights[k] = v
	}
	return &Scorer{
		weights:    weights,
		danger:     det.DangerThreshold,
		suspicious: det.SuspiciousThreshold,
		providers:  brand.Providers(det.OAuthProviders),
	}
}

// Band maps a score onto safe, suspicious or danger.
func (s *Scorer) Band(score int) domain.LookupStatus {
	switch {
	case score >= s.danger:
		return domain.LookupDanger
	case score >= s.suspicious:
		return domain.LookupSuspicious
	default:
		return domain.LookupSafe
	}
}

func (s *Scorer) Score(in Input) Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.HTML))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	base := brand.BaseDomain(in.BaseDomain)
	token := brand.Token(base)
	page, _ := url.Parse(in.FinalURL)
	if page == nil {
		page = &url.URL{}
	}

	fired := make(map[domain.Signal]bool)
	res := Result{Title: strings.TrimSpace(doc.Find("title").First().Text())}

	if token != "" && strings.Contains(strings.ToLower(res.Title), token) {
		fired[domain.SignalImpersonatingTitle] = true
	}

	classify := func(target *url.URL) {
		if target == nil || target.Hostname() == "" {
			return
		}
		if brand.Within(target.Hostname(), base) {
			fired[domain.SignalInternalRedirect] = true
		} else {
			fired[domain.SignalExternalRedirect] = true
		}
	}
	if in.RedirectLocation != "" {
		if u, err := page.Parse(in.RedirectLocation); err == nil {
			classify(u)
		}
	}
	// in-page redirects back onto the page's own host are navigation, not
	// redirects
	for _, raw := range pageRedirects(doc) {
		if u, err := page.Parse(raw); err == nil && !strings.EqualFold(u.Hostname(), page.Hostname()) {
			classify(u)
		}
	}

	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		if credentialForm(form) {
			fired[domain.SignalCredentialForm] = true
		}
		action := strings.TrimSpace(form.AttrOr("action", ""))
		if action == "" {
			return
		}
		u, err := page.Parse(action)
		if err != nil || u.Hostname() == "" {
			return
		}
		if !brand.Within(u.Hostname(), base) {
			fired[domain.SignalFormPostsThirdParty] = true
		}
		if s.providers.Unexpected(u.Hostname(), base) {
			fired[domain.SignalUnexpectedOAuthRedirect] = true
		}
	})

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := strings.TrimSpace(img.AttrOr("src", ""))
		if src == "" {
			return
		}
		res.Images = append(res.Images, src)
		path := strings.ToLower(src)
		if u, err := url.Parse(src); err == nil && u.Opaque == "" {
			path = strings.ToLower(u.Path)
		}
		if token != "" && strings.Contains(path, token) {
			fired[domain.SignalBrandImage] = true
		}
		if strings.Contains(path, "logo") {
			fired[domain.SignalLogoImage] = true
		}
	})

	doc.Find("script").Each(func(_ int, script *goquery.Selection) {
		body := strings.ToLower(script.Text())
		for _, m := range obfuscationMarkers {
			if strings.Contains(body, m) {
				fired[domain.SignalObfuscatedJS] = true
				return
			}
		}
	})

	doc.Find("iframe").EachWithBreak(func(_ int, frame *goquery.Selection) bool {
		if hiddenFrame(frame) {
			fired[domain.SignalHiddenIframe] = true
			return false
		}
		return true
	})

	if in.UnexpectedOAuthRedirect {
		fired[domain.SignalUnexpectedOAuthRedirect] = true
	}

	for _, sig := range domain.Signals {
		if fired[sig] {
			res.Reasons = append(res.Reasons, string(sig))
			res.Score += s.weights[string(sig)]
		}
	}
	res.Band = s.Band(res.Score)
	return res
}

// credentialForm reports a password input alongside a text or email input
// whose name mentions a user or email.
func credentialForm(form *goquery.Selection) bool {
	var password, user bool
	form.Find("input").Each(func(_ int, in *goquery.Selection) {
		typ := strings.ToLower(strings.TrimSpace(in.AttrOr("type", "text")))
		name := strings.ToLower(in.AttrOr("name", ""))
		switch typ {
		case "password":
			password = true
		case "text", "email":
			if strings.Contains(name, "user") || strings.Contains(name, "email") {
				user = true
			}
		}
	})
	return password && user
}

func pageRedirects(doc *goquery.Document) []string {
	var out []string
	doc.Find("meta").Each(func(_ int, m *goquery.Selection) {
		if !strings.EqualFold(strings.TrimSpace(m.AttrOr("http-equiv", "")), "refresh") {
			return
		}
		content := m.AttrOr("content", "")
		i := strings.Index(strings.ToLower(content), "url=")
		if i < 0 {
			return
		}
		if target := strings.Trim(strings.TrimSpace(content[i+4:]), `'"`); target != "" {
			out = append(out, target)
		}
	})
	doc.Find("script").Each(func(_ int, script *goquery.Selection) {
		for _, m := range jsRedirectRe.FindAllStringSubmatch(script.Text(), -1) {
			for _, g := range m[1:] {
				if g != "" {
					out = append(out, g)
				}
			}
		}
	})
	return out
}

func hiddenFrame(frame *goquery.Selection) bool {
	if _, ok := frame.Attr("hidden"); ok {
		return true
	}
	for _, attr := range []string{"width", "height"} {
		if v := strings.TrimSpace(strings.ToLower(frame.AttrOr(attr, ""))); v == "0" || v == "0px" {
			return true
		}
	}
	style := strings.ToLower(strings.ReplaceAll(frame.AttrOr("style", ""), " ", ""))
	for _, decl := range strings.Split(style, ";") {
		decl = strings.TrimSuffix(decl, "!important")
		switch decl {
		case "display:none", "visibility:hidden", "width:0", "width:0px", "height:0", "height:0px":
			return true
		}
	}
	return false
}
