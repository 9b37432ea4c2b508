package ruleconf

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/gyaneshwarpardhi/sense/internal/classifier"
	"github.com/gyaneshwarpardhi/sense/internal/event"
)

// exprEnv declares the single `event` variable visible to rule expressions:
//
//	event.id, event.name, event.type, event.status, event.parent_id   strings
//	event.start_time, event.end_time                                  timestamps
//	event.duration                                                    duration
//	event.messages, event.references                                  lists of strings
//	event.body                                                        list of maps
func newExprEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
	)
}

func (c *Compiler) program(expr string, want *cel.Type) (cel.Program, error) {
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	out := ast.OutputType()
	if !out.IsExactType(want) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("CEL expression %q yields %s, expected %s", expr, out, want)
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program creation error: %w", err)
	}
	return prg, nil
}

func activation(ev *event.Event) map[string]any {
	body := make([]any, 0, len(ev.Body))
	for _, b := range ev.Body {
		block := map[string]any{"type": string(b.Kind)}
		switch b.Kind {
		case event.BlockMessage:
			block["data"] = b.Data
		case event.BlockReference:
			block["event_id"] = b.EventID
		case event.BlockTable:
			rows := make([]any, 0, len(b.Rows))
			for _, r := range b.Rows {
				row := make(map[string]any, len(r))
				for k, v := range r {
					row[k] = v
				}
				rows = append(rows, row)
			}
			block["rows"] = rows
		default:
			for k, v := range b.Props {
				block[k] = v
			}
		}
		body = append(body, block)
	}
	return map[string]any{
		"event": map[string]any{
			"id":         ev.ID,
			"name":       ev.Name,
			"type":       ev.Type,
			"status":     string(ev.Status),
			"parent_id":  ev.ParentID,
			"start_time": ev.StartTime,
			"end_time":   ev.EndTime,
			"duration":   ev.EndTime.Sub(ev.StartTime),
			"messages":   toList(ev.Messages()),
			"references": toList(ev.References()),
			"body":       body,
		},
	}
}

func toList(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

// exprNode wraps a boolean program as a leaf over the current event.
func (c *Compiler) exprNode(expr string) (*classifier.Node, error) {
	prg, err := c.program(expr, cel.BoolType)
	if err != nil {
		return nil, err
	}
	return classifier.Func(fmt.Sprintf("expr(%q)", expr), func(_ *classifier.Context, v any) (bool, error) {
		ev, ok := v.(*event.Event)
		if !ok {
			return false, fmt.Errorf("%w: got %T", classifier.ErrNotEvent, v)
		}
		out, _, err := prg.Eval(activation(ev))
		if err != nil {
			return false, err
		}
		result, ok := out.Value().(bool)
		if !ok {
			return false, fmt.Errorf("CEL result is not boolean: %T", out.Value())
		}
		return result, nil
	}), nil
}

// typeSupplier wraps a string program as a dynamic type supplier.
func (c *Compiler) typeSupplier(expr string) (classifier.TypeSupplier, error) {
	prg, err := c.program(expr, cel.StringType)
	if err != nil {
		return nil, err
	}
	return func(_ *classifier.Context, ev *event.Event) (event.EventType, error) {
		out, _, err := prg.Eval(activation(ev))
		if err != nil {
			return "", err
		}
		s, ok := out.Value().(string)
		if !ok {
			return "", fmt.Errorf("CEL result is not a string: %T", out.Value())
		}
		return event.EventType(s), nil
	}, nil
}
