package args

import (
	"regexp"
	"strconv"
	"strings"

	"memegen-bot/internal/memeapi"
)

var mentionToken = regexp.MustCompile(`^@(\d+)$`)

// Parse flattens the node stream depth-first and classifies its
// content: option tokens into typed options, @id tokens and mention
// nodes into user image references, image nodes into URL references,
// everything else into texts. Relative order within each category is
// preserved. info may be nil when no template schema is known.
func Parse(nodes []Node, info *memeapi.TemplateInfo) Parsed {
	p := Parsed{Options: make(map[string]any)}
	walk(nodes, info, &p)
	return p
}

func walk(nodes []Node, info *memeapi.TemplateInfo, p *Parsed) {
	for _, node := range nodes {
		switch n := node.(type) {
		case Text:
			parseText(string(n), info, p)
		case Mention:
			p.Images = append(p.Images, ImageRef{UserID: n.UserID})
		case Image:
			p.Images = append(p.Images, ImageRef{URL: n.URL})
		case Group:
			walk(n, info, p)
		}
	}
}

func parseText(text string, info *memeapi.TemplateInfo, p *Parsed) {
	for _, token := range tokenize(text) {
		if name, raw, isOption := splitOption(token); isOption {
			p.Options[name] = coerce(name, raw, info)
			continue
		}

		if m := mentionToken.FindStringSubmatch(token); m != nil {
			if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				p.Images = append(p.Images, ImageRef{UserID: id})
				continue
			}
		}

		p.Texts = append(p.Texts, token)
	}
}

// splitOption recognizes -name, -name=value and --name=value. A
// missing value means boolean true; raw is empty in that case.
func splitOption(token string) (name, raw string, ok bool) {
	if !strings.HasPrefix(token, "-") {
		return "", "", false
	}

	body := strings.TrimPrefix(strings.TrimPrefix(token, "-"), "-")
	if body == "" || strings.HasPrefix(body, "-") {
		return "", "", false
	}

	name, raw, _ = strings.Cut(body, "=")
	if name == "" {
		return "", "", false
	}
	return name, raw, true
}

var (
	integerPattern = regexp.MustCompile(`^-?\d+$`)
	decimalPattern = regexp.MustCompile(`^-?\d+\.\d+$`)
)

// coerce turns the raw option string into a typed value: per the
// template's declared type when it has one, heuristically otherwise.
func coerce(name, raw string, info *memeapi.TemplateInfo) any {
	if raw == "" {
		return true
	}

	if info != nil {
		if spec, ok := info.Option(name); ok && spec.Type != "" {
			return coerceDeclared(raw, spec.Type)
		}
	}

	switch {
	case raw == "true":
		return true
	case raw == "false":
		return false
	case integerPattern.MatchString(raw):
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	case decimalPattern.MatchString(raw):
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return raw
}

func coerceDeclared(raw, declared string) any {
	switch strings.ToLower(declared) {
	case "boolean", "bool":
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
	case "integer", "int":
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	case "number", "float":
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return raw
}
