package servicenow

import (
	"context"
	"fmt"
	"strings"
)

// Variable type names accepted from the model, mapped to the numeric
// item_option_new type codes ServiceNow stores.
const (
	TypeString         = "string"
	TypeBoolean        = "boolean"
	TypeMultipleChoice = "multiple_choice"
	TypeChoice         = "choice"
	TypeDate           = "date"
)

var typeCodes = map[string]string{
	TypeString:         "6",
	TypeBoolean:        "1",
	TypeMultipleChoice: "3",
	TypeChoice:         "5",
	TypeDate:           "9",
}

// Variable is one created item_option_new row.
type Variable struct {
	SysID    string `json:"sys_id"`
	Name     string `json:"name"`
	Question string `json:"question_text"`
	Type     string `json:"type"`
	Order    int    `json:"order"`
}

// VariableParams describes a variable to add to a catalog item. Choices are
// required for multiple_choice and choice types.
type VariableParams struct {
	Name      string
	Question  string
	Type      string
	Mandatory bool
	Default   string
	Choices   []string
}

func (p VariableParams) validate() error {
	if p.Question == "" {
		return fmt.Errorf("variable question text is required")
	}
	if _, ok := typeCodes[p.Type]; !ok {
		return fmt.Errorf("unsupported variable type %q", p.Type)
	}
	if (p.Type == TypeMultipleChoice || p.Type == TypeChoice) && len(p.Choices) == 0 {
		return fmt.Errorf("variable type %q needs at least one choice", p.Type)
	}
	return nil
}

// variableName derives a snake_case internal name from the question text
// when no explicit name is given.
func variableName(p VariableParams) string {
	if p.Name != "" {
		return p.Name
	}
	name := strings.ToLower(p.Question)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '_'
		default:
			return -1
		}
	}, name)
	name = strings.Trim(name, "_")
	if len(name) > 40 {
		name = name[:40]
	}
	return name
}

// AddVariable creates one variable on the item at the given form order and
// inserts its choices, if any, as question_choice rows.
func (c *Client) AddVariable(ctx context.Context, itemSysID string, p VariableParams, order int) (*Variable, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	fields := map[string]string{
		"cat_item":      itemSysID,
		"name":          variableName(p),
		"question_text": p.Question,
		"type":          typeCodes[p.Type],
		"order":         fmt.Sprintf("%d", order),
		"mandatory":     fmt.Sprintf("%t", p.Mandatory),
	}
	if p.Default != "" {
		fields["default_value"] = p.Default
	}
	rec, err := c.create(ctx, "item_option_new", fields)
	if err != nil {
		return nil, err
	}

	v := &Variable{
		SysID:    rec.str("sys_id"),
		Name:     rec.str("name"),
		Question: rec.str("question_text"),
		Type:     p.Type,
		Order:    order,
	}

	for i, choice := range p.Choices {
		_, err := c.create(ctx, "question_choice", map[string]string{
			"question": v.SysID,
			"text":     choice,
			"value":    choice,
			"order":    fmt.Sprintf("%d", i*100),
		})
		if err != nil {
			return nil, fmt.Errorf("adding choice %q: %w", choice, err)
		}
	}
	return v, nil
}

// AddVariables creates several variables on the item. Form order starts at
// 100 and steps by 10 so later additions can slot between existing rows.
// It stops at the first failure and returns the variables created so far.
func (c *Client) AddVariables(ctx context.Context, itemSysID string, params []VariableParams) ([]Variable, error) {
	created := make([]Variable, 0, len(params))
	for i, p := range params {
		v, err := c.AddVariable(ctx, itemSysID, p, 100+i*10)
		if err != nil {
			return created, fmt.Errorf("variable %d (%s): %w", i+1, p.Question, err)
		}
		created = append(created, *v)
	}
	return created, nil
}

// ItemVariables lists the variables already on an item, in form order.
func (c *Client) ItemVariables(ctx context.Context, itemSysID string) ([]Variable, error) {
	recs, err := c.query(ctx, "item_option_new", "cat_item="+itemSysID+"^ORDERBYorder", 100)
	if err != nil {
		return nil, err
	}
	vars := make([]Variable, 0, len(recs))
	for _, r := range recs {
		vars = append(vars, Variable{
			SysID:    r.str("sys_id"),
			Name:     r.str("name"),
			Question: r.str("question_text"),
			Type:     typeName(r.str("type")),
		})
	}
	return vars, nil
}

func typeName(code string) string {
	for name, c := range typeCodes {
		if c == code {
			return name
		}
	}
	return code
}
