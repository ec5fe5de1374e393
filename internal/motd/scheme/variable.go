package scheme

import (
	"errors"
	"fmt"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"joinmotd/internal/motd/chat"
)

type VariableKind int

const (
	KindLiteral VariableKind = iota
	KindFetched
	KindTranslated
	KindList
)

func (k VariableKind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindFetched:
		return "fetched"
	case KindTranslated:
		return "translated"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FetchSource is an externally fetched text body, optionally narrowed by a
// gjson path when the body is JSON.
type FetchSource struct {
	URL      string `yaml:"url"`
	JSONPath string `yaml:"json_path,omitempty"`
}

// Variable is a named value source for {name} placeholders. Exactly one of
// Text, Fetch, Translate or List is meaningful, selected by Kind. Styling
// applies to whatever the source produces.
type Variable struct {
	Kind      VariableKind
	Text      string
	Fetch     *FetchSource
	Translate string
	List      []Variable

	Color  chat.Color
	Styles chat.Style
	Hover  string
	Click  *chat.ClickEvent
}

// Literal builds a plain literal variable.
func Literal(text string) Variable { return Variable{Kind: KindLiteral, Text: text} }

type rawClick struct {
	Action string `yaml:"action"`
	Value  string `yaml:"value"`
}

type rawVariable struct {
	Text      *string      `yaml:"text"`
	Fetch     *FetchSource `yaml:"fetch"`
	URL       string       `yaml:"url"`
	JSONPath  string       `yaml:"json_path"`
	Translate string       `yaml:"translate"`
	List      []Variable   `yaml:"list"`

	Color  string    `yaml:"color"`
	Styles []string  `yaml:"styles"`
	Hover  string    `yaml:"hover"`
	Click  *rawClick `yaml:"click"`
}

// UnmarshalYAML accepts a bare scalar (literal text), a sequence (list of
// variables) or a mapping with one source key plus styling keys.
func (v *Variable) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*v = Literal(node.Value)
		return nil
	case yaml.SequenceNode:
		var list []Variable
		if err := node.Decode(&list); err != nil {
			return err
		}
		*v = Variable{Kind: KindList, List: list}
		return nil
	case yaml.MappingNode:
	default:
		return fmt.Errorf("line %d: variable must be a string, list or mapping", node.Line)
	}

	var raw rawVariable
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Fetch == nil && raw.URL != "" {
		raw.Fetch = &FetchSource{URL: raw.URL, JSONPath: raw.JSONPath}
	}

	out := Variable{}
	sources := 0
	if raw.Text != nil {
		out.Kind, out.Text = KindLiteral, *raw.Text
		sources++
	}
	if raw.Fetch != nil {
		if strings.TrimSpace(raw.Fetch.URL) == "" {
			return fmt.Errorf("line %d: fetch.url is required", node.Line)
		}
		out.Kind, out.Fetch = KindFetched, raw.Fetch
		sources++
	}
	if raw.Translate != "" {
		out.Kind, out.Translate = KindTranslated, raw.Translate
		sources++
	}
	if raw.List != nil {
		out.Kind, out.List = KindList, raw.List
		sources++
	}
	if sources == 0 {
		return fmt.Errorf("line %d: variable needs one of text, fetch/url, translate, list", node.Line)
	}
	if sources > 1 {
		return fmt.Errorf("line %d: variable sets %d sources; use exactly one", node.Line, sources)
	}

	var err error
	if out.Color, err = chat.ParseColor(raw.Color); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	if out.Styles, err = chat.ParseStyles(raw.Styles); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	out.Hover = raw.Hover
	if raw.Click != nil {
		action, err := chat.ParseClickAction(raw.Click.Action)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		out.Click = &chat.ClickEvent{Action: action, Value: raw.Click.Value}
	}
	*v = out
	return nil
}

var errEmptyName = errors.New("variable name is empty")

// MergeVariables overlays local on top of global. Local definitions win on
// name collision; neither input is modified.
func MergeVariables(global, local map[string]Variable) map[string]Variable {
	out := make(map[string]Variable, len(global)+len(local))
	for k, v := range global {
		out[k] = v
	}
	for k, v := range local {
		out[k] = v
	}
	return out
}

func validateVariables(vars map[string]Variable) error {
	for name := range vars {
		if strings.TrimSpace(name) == "" {
			return errEmptyName
		}
		if strings.ContainsAny(name, "{} \t") {
			return fmt.Errorf("variable %q: name may not contain braces or whitespace", name)
		}
	}
	return nil
}
