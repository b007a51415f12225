package yul

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"zkvmc/internal/source"
)

// The structured form follows the solc Yul AST JSON: every node is an object
// with "nodeType" and "src" ("start:length:file"); objects are
// {"name", "code", "objects", "data"}.

type jsonObject struct {
	Name    string            `json:"name"`
	Src     string            `json:"src"`
	Code    json.RawMessage   `json:"code"`
	Objects []json.RawMessage `json:"objects"`
	Data    map[string]string `json:"data"`
}

type jsonNode struct {
	NodeType        string            `json:"nodeType"`
	Src             string            `json:"src"`
	Statements      []json.RawMessage `json:"statements"`
	Variables       []jsonNode        `json:"variables"`
	VariableNames   []jsonNode        `json:"variableNames"`
	Value           json.RawMessage   `json:"value"`
	Condition       json.RawMessage   `json:"condition"`
	Body            json.RawMessage   `json:"body"`
	Expression      json.RawMessage   `json:"expression"`
	Cases           []json.RawMessage `json:"cases"`
	Pre             json.RawMessage   `json:"pre"`
	Post            json.RawMessage   `json:"post"`
	Name            string            `json:"name"`
	Parameters      []jsonNode        `json:"parameters"`
	ReturnVariables []jsonNode        `json:"returnVariables"`
	FunctionName    *jsonNode         `json:"functionName"`
	Arguments       []json.RawMessage `json:"arguments"`
	Kind            string            `json:"kind"`
	HexValue        string            `json:"hexValue"`
}

type jsonDecoder struct {
	file source.FileID
}

// DecodeJSON reads a Yul object in the structured form. file is attached to
// spans whose "src" does not name a file.
func DecodeJSON(data []byte, file source.FileID) (*Object, error) {
	d := jsonDecoder{file: file}
	return d.object(data)
}

func (d jsonDecoder) object(data []byte) (*Object, error) {
	var raw jsonObject
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("yul object: %w", err)
	}
	if raw.Name == "" {
		return nil, fmt.Errorf("yul object: missing name")
	}
	obj := &Object{Name: raw.Name, Src: d.span(raw.Src)}
	code, err := d.block(raw.Code)
	if err != nil {
		return nil, fmt.Errorf("object %q: %w", raw.Name, err)
	}
	obj.Code = code
	for _, sub := range raw.Objects {
		child, err := d.object(sub)
		if err != nil {
			return nil, fmt.Errorf("object %q: %w", raw.Name, err)
		}
		obj.Objects = append(obj.Objects, child)
	}
	if len(raw.Data) > 0 {
		obj.Data = make(map[string][]byte, len(raw.Data))
		for name, hx := range raw.Data {
			b, err := hex.DecodeString(strings.TrimPrefix(hx, "0x"))
			if err != nil {
				return nil, fmt.Errorf("object %q: data %q: %w", raw.Name, name, err)
			}
			obj.Data[name] = b
		}
	}
	return obj, nil
}

func (d jsonDecoder) node(data json.RawMessage) (*jsonNode, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var n jsonNode
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (d jsonDecoder) block(data json.RawMessage) (*Block, error) {
	n, err := d.node(data)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("missing block")
	}
	if n.NodeType != "YulBlock" {
		return nil, fmt.Errorf("%s: expected YulBlock, got %q", n.Src, n.NodeType)
	}
	blk := &Block{Src: d.span(n.Src)}
	for _, raw := range n.Statements {
		st, err := d.statement(raw)
		if err != nil {
			return nil, err
		}
		blk.Statements = append(blk.Statements, st)
	}
	return blk, nil
}

func (d jsonDecoder) statement(data json.RawMessage) (Statement, error) {
	n, err := d.node(data)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("missing statement")
	}
	src := d.span(n.Src)
	switch n.NodeType {
	case "YulBlock":
		return d.block(data)
	case "YulVariableDeclaration":
		decl := &VariableDeclaration{Src: src, Names: d.typedNames(n.Variables)}
		if decl.Value, err = d.optExpression(n.Value); err != nil {
			return nil, err
		}
		return decl, nil
	case "YulAssignment":
		asg := &Assignment{Src: src}
		for _, v := range n.VariableNames {
			asg.Targets = append(asg.Targets, &Identifier{Src: d.span(v.Src), Name: v.Name})
		}
		if asg.Value, err = d.expression(n.Value); err != nil {
			return nil, err
		}
		return asg, nil
	case "YulIf":
		st := &If{Src: src}
		if st.Cond, err = d.expression(n.Condition); err != nil {
			return nil, err
		}
		if st.Body, err = d.block(n.Body); err != nil {
			return nil, err
		}
		return st, nil
	case "YulSwitch":
		sw := &Switch{Src: src}
		if sw.Expr, err = d.expression(n.Expression); err != nil {
			return nil, err
		}
		for _, raw := range n.Cases {
			c, err := d.switchCase(raw)
			if err != nil {
				return nil, err
			}
			sw.Cases = append(sw.Cases, c)
		}
		return sw, nil
	case "YulForLoop":
		loop := &ForLoop{Src: src}
		if loop.Pre, err = d.block(n.Pre); err != nil {
			return nil, err
		}
		if loop.Cond, err = d.expression(n.Condition); err != nil {
			return nil, err
		}
		if loop.Post, err = d.block(n.Post); err != nil {
			return nil, err
		}
		if loop.Body, err = d.block(n.Body); err != nil {
			return nil, err
		}
		return loop, nil
	case "YulBreak":
		return &Break{Src: src}, nil
	case "YulContinue":
		return &Continue{Src: src}, nil
	case "YulLeave":
		return &Leave{Src: src}, nil
	case "YulFunctionDefinition":
		fn := &FunctionDefinition{
			Src:     src,
			Name:    n.Name,
			Params:  d.typedNames(n.Parameters),
			Returns: d.typedNames(n.ReturnVariables),
		}
		if fn.Body, err = d.block(n.Body); err != nil {
			return nil, err
		}
		return fn, nil
	case "YulExpressionStatement":
		es := &ExpressionStatement{Src: src}
		if es.Expr, err = d.expression(n.Expression); err != nil {
			return nil, err
		}
		return es, nil
	}
	return nil, fmt.Errorf("%s: unknown statement node %q", n.Src, n.NodeType)
}

func (d jsonDecoder) switchCase(data json.RawMessage) (*Case, error) {
	n, err := d.node(data)
	if err != nil || n == nil {
		return nil, fmt.Errorf("invalid switch case: %w", err)
	}
	c := &Case{Src: d.span(n.Src)}
	if string(n.Value) != `"default"` {
		v, err := d.node(n.Value)
		if err != nil || v == nil {
			return nil, fmt.Errorf("%s: invalid case value", n.Src)
		}
		if c.Value, err = d.literal(v); err != nil {
			return nil, err
		}
	}
	if c.Body, err = d.block(n.Body); err != nil {
		return nil, err
	}
	return c, nil
}

func (d jsonDecoder) optExpression(data json.RawMessage) (Expression, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	return d.expression(data)
}

func (d jsonDecoder) expression(data json.RawMessage) (Expression, error) {
	n, err := d.node(data)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("missing expression")
	}
	switch n.NodeType {
	case "YulFunctionCall":
		if n.FunctionName == nil {
			return nil, fmt.Errorf("%s: call without functionName", n.Src)
		}
		call := &FunctionCall{Src: d.span(n.Src), Name: n.FunctionName.Name}
		for _, raw := range n.Arguments {
			arg, err := d.expression(raw)
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}
		return call, nil
	case "YulIdentifier":
		return &Identifier{Src: d.span(n.Src), Name: n.Name}, nil
	case "YulLiteral":
		return d.literal(n)
	}
	return nil, fmt.Errorf("%s: unknown expression node %q", n.Src, n.NodeType)
}

func (d jsonDecoder) literal(n *jsonNode) (*Literal, error) {
	lit := &Literal{Src: d.span(n.Src)}
	var value string
	if len(n.Value) > 0 {
		if err := json.Unmarshal(n.Value, &value); err != nil {
			return nil, fmt.Errorf("%s: literal value: %w", n.Src, err)
		}
	}
	switch n.Kind {
	case "number", "":
		lit.Kind, lit.Value = LitNumber, value
	case "bool":
		lit.Kind, lit.Value = LitBool, value
	case "string":
		lit.Kind, lit.Value = LitString, value
		if n.HexValue != "" {
			// hexValue хранит точные байты, value может быть неполным
			b, err := hex.DecodeString(n.HexValue)
			if err != nil {
				return nil, fmt.Errorf("%s: hexValue: %w", n.Src, err)
			}
			lit.Value = string(b)
		}
	default:
		return nil, fmt.Errorf("%s: unknown literal kind %q", n.Src, n.Kind)
	}
	return lit, nil
}

func (d jsonDecoder) typedNames(nodes []jsonNode) []TypedName {
	out := make([]TypedName, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, TypedName{Src: d.span(n.Src), Name: n.Name})
	}
	return out
}

// span parses "start:length:file". The file index inside src refers to the
// front end's source list, so spans keep the decoder's file.
func (d jsonDecoder) span(src string) source.Span {
	parts := strings.Split(src, ":")
	if len(parts) < 2 {
		return source.Span{File: d.file}
	}
	start, err1 := strconv.ParseUint(parts[0], 10, 32)
	length, err2 := strconv.ParseUint(parts[1], 10, 32)
	if err1 != nil || err2 != nil {
		return source.Span{File: d.file}
	}
	return source.Span{File: d.file, Start: uint32(start), End: uint32(start + length)} // #nosec G115 -- parsed as 32-bit
}
