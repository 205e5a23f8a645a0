package variants

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Options bounds and parameterises generation.
type Options struct {
	MaxVariants   int
	AlternateTLDs []string
	BrandTokens   []string
}

// Generator produces lookalike candidates for a seed domain. It holds no
// mutable state and is safe for concurrent use.
type Generator struct {
	max    int
	tlds   []string
	tokens []string
}

func New(opts Options) *Generator {
	if opts.MaxVariants < 1 {
		opts.MaxVariants = 1000
	}
	return &Generator{max: opts.MaxVariants, tlds: opts.AlternateTLDs, tokens: opts.BrandTokens}
}

// Normalize strips scheme, userinfo, path, port and trailing dot from raw and
// lower-cases what is left.
func Normalize(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, "@"); i >= 0 {
		d = d[i+1:]
	}
	if i := strings.LastIndex(d, ":"); i >= 0 {
		d = d[:i]
	}
	return strings.TrimSuffix(d, ".")
}

// Split separates a normalized domain into everything but the last label and
// the last label.
func Split(domain string) (name, tld string, ok bool) {
	i := strings.LastIndex(domain, ".")
	if i <= 0 || i == len(domain)-1 {
		return "", "", false
	}
	return domain[:i], domain[i+1:], true
}

// Generate returns the sorted, de-duplicated candidate set for seed, capped at
// the configured maximum. The seed itself is never included.
func (g *Generator) Generate(seed string) []string {
	origin := Normalize(seed)
	name, tld, ok := Split(origin)
	if !ok {
		return nil
	}

	set := make(map[string]struct{})
	add := func(n, t string) {
		c := strings.ToLower(n + "." + t)
		if c == origin || !validCandidate(c) {
			return
		}
		set[c] = struct{}{}
	}
	withTLD := func(names []string) {
		for _, n := range names {
			add(n, tld)
		}
	}

	r := []rune(name)
	withTLD(omissions(r))
	withTLD(transpositions(r))
	withTLD(doublings(r))
	withTLD(homoglyphs(name))
	withTLD(keyboardSwaps(r))
	withTLD(bitFlips(r))
	withTLD(vowelSwaps(r))
	withTLD(insertions(r, '-'))
	withTLD(insertions(r, '.'))
	withTLD([]string{reverse(r), name + "1", name + "0"})
	withTLD(g.affixes(name))
	for _, alt := range g.tlds {
		if alt = strings.TrimPrefix(strings.ToLower(alt), "."); alt != "" && alt != tld {
			add(name, alt)
		}
	}

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	if len(out) > g.max {
		out = out[:g.max]
	}
	return out
}

func omissions(r []rune) []string {
	var out []string
	for i := range r {
		if s := string(r[:i]) + string(r[i+1:]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func transpositions(r []rune) []string {
	var out []string
	for i := 0; i < len(r)-1; i++ {
		if r[i] == r[i+1] {
			continue
		}
		c := append([]rune(nil), r...)
		c[i], c[i+1] = c[i+1], c[i]
		out = append(out, string(c))
	}
	return out
}

func doublings(r []rune) []string {
	var out []string
	for i := range r {
		out = append(out, string(r[:i+1])+string(r[i:]))
	}
	return out
}

func homoglyphs(name string) []string {
	var out []string
	for from, alts := range homoglyphTable {
		for start := 0; ; {
			i := strings.Index(name[start:], from)
			if i < 0 {
				break
			}
			pos := start + i
			for _, alt := range alts {
				out = append(out, name[:pos]+alt+name[pos+len(from):])
			}
			start = pos + 1
		}
	}
	return out
}

func keyboardSwaps(r []rune) []string {
	var out []string
	for i, c := range r {
		for _, n := range keyboardNeighbors[c] {
			out = append(out, string(r[:i])+string(n)+string(r[i+1:]))
		}
	}
	return out
}

func bitFlips(r []rune) []string {
	var out []string
	for i, c := range r {
		if c >= utf8.RuneSelf {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			f := rune(byte(c) ^ (1 << bit))
			if (f >= 'a' && f <= 'z') || (f >= '0' && f <= '9') {
				out = append(out, string(r[:i])+string(f)+string(r[i+1:]))
			}
		}
	}
	return out
}

func vowelSwaps(r []rune) []string {
	var out []string
	for i, c := range r {
		if !strings.ContainsRune(vowels, c) {
			continue
		}
		for _, v := range vowels {
			if v != c {
				out = append(out, string(r[:i])+string(v)+string(r[i+1:]))
			}
		}
	}
	return out
}

func insertions(r []rune, sep rune) []string {
	var out []string
	for i := 1; i < len(r); i++ {
		out = append(out, string(r[:i])+string(sep)+string(r[i:]))
	}
	return out
}

func reverse(r []rune) string {
	c := make([]rune, len(r))
	for i, ch := range r {
		c[len(r)-1-i] = ch
	}
	return string(c)
}

func (g *Generator) affixes(name string) []string {
	var out []string
	for _, tok := range g.tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		out = append(out, tok+name, name+tok, tok+"-"+name, name+"-"+tok)
	}
	return out
}

// validCandidate rejects structurally impossible host names. Non-ASCII and
// '@' homoglyphs are kept; they are display lookalikes and fail resolution
// on their own.
func validCandidate(c string) bool {
	if len(c) > 253 {
		return false
	}
	for _, label := range strings.Split(c, ".") {
		if label == "" || utf8.RuneCountInString(label) > 63 {
			return false
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
	}
	return true
}
