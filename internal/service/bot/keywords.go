package bot

import (
	"strings"

	"pdbot/internal/config"
)

const defaultRule = "default"

type keywordRule struct {
	name  string
	match []string
	reply string
}

// Keywords is an ordered reply table. The first rule with a matching
// substring wins; otherwise the default reply is used.
type Keywords struct {
	rules    []keywordRule
	fallback string
}

func NewKeywords(cfg config.RepliesConfig) *Keywords {
	k := &Keywords{fallback: cfg.Default}
	for _, rule := range cfg.Keywords {
		r := keywordRule{reply: rule.Reply}
		for _, m := range rule.Match {
			m = strings.ToLower(strings.TrimSpace(m))
			if m != "" {
				r.match = append(r.match, m)
			}
		}
		if len(r.match) == 0 {
			continue
		}
		r.name = r.match[0]
		k.rules = append(k.rules, r)
	}
	return k
}

// Reply returns the reply for text and the name of the rule that produced it.
func (k *Keywords) Reply(text string) (reply, rule string) {
	lower := strings.ToLower(text)
	for _, r := range k.rules {
		for _, m := range r.match {
			if strings.Contains(lower, m) {
				return r.reply, r.name
			}
		}
	}
	return k.fallback, defaultRule
}
