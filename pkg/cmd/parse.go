package cmd

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/manifoldrouter/manifold/pkg/query"
)

var predicateRegex = regexp.MustCompile(`^\s*(?P<key>[\w.]+)\s*(?P<op>==|!=|<=|>=|=|<|>|~|\[|\]|\{|\}|(?i:included|contains))\s*(?P<value>.*?)\s*$`)

// ParsePredicate parses a predicate written `field op value`, as in
// `hostname == planetlab1.inria.fr` or `arch INCLUDED [x86, arm]`. Values
// are YAML scalars or flow sequences.
func ParsePredicate(s string) (query.Predicate, error) {
	groups := predicateRegex.FindStringSubmatch(s)
	if groups == nil {
		return query.Predicate{}, fmt.Errorf("invalid predicate %q: expected `field op value`", s)
	}

	op, err := query.ParseOp(groups[predicateRegex.SubexpIndex("op")])
	if err != nil {
		return query.Predicate{}, err
	}
	value, err := parseValue(groups[predicateRegex.SubexpIndex("value")])
	if err != nil {
		return query.Predicate{}, fmt.Errorf("invalid value in predicate %q: %w", s, err)
	}
	return query.NewPredicate(groups[predicateRegex.SubexpIndex("key")], op, value), nil
}

// ParseAssignment parses a value written `field=value`.
func ParseAssignment(s string) (string, any, error) {
	key, raw, found := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", nil, fmt.Errorf("invalid value %q: expected `field=value`", s)
	}
	value, err := parseValue(raw)
	if err != nil {
		return "", nil, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return key, value, nil
}

func parseValue(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return nil, err
	}
	if _, ok := value.(map[string]any); ok {
		return nil, fmt.Errorf("maps are not values")
	}
	return value, nil
}

// QuerySpec is a query as written on the command line or in the body of
// an HTTP request.
type QuerySpec struct {
	Action    string   `yaml:"action"`
	Object    string   `yaml:"object"`
	Fields    []string `yaml:"fields"`
	Where     []string `yaml:"where"`
	Set       []string `yaml:"set"`
	Timestamp string   `yaml:"at"`
}

// Build returns the query.
func (s QuerySpec) Build() (query.Query, error) {
	action, err := query.ParseAction(s.Action)
	if err != nil {
		return query.Query{}, err
	}

	q := query.Get(s.Object)
	q.Action = action
	if len(s.Fields) > 0 {
		q = q.Select(s.Fields...)
	}
	if s.Timestamp != "" {
		q = q.At(s.Timestamp)
	}

	preds := make([]query.Predicate, 0, len(s.Where))
	for _, w := range s.Where {
		p, err := ParsePredicate(w)
		if err != nil {
			return query.Query{}, err
		}
		preds = append(preds, p)
	}
	if len(preds) > 0 {
		q = q.Where(preds...)
	}

	if len(s.Set) > 0 {
		params := make(map[string]any, len(s.Set))
		for _, assignment := range s.Set {
			key, value, err := ParseAssignment(assignment)
			if err != nil {
				return query.Query{}, err
			}
			params[key] = value
		}
		q = q.WithParams(params)
	}
	return q, nil
}
