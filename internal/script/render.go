package script

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"

	"nyql/internal/domain"
)

// Bind markers are emitted by param() and replaced by placeholders once the
// template has been evaluated, so evaluation itself stays side-effect free.
const (
	markerOpen  = '\ue000'
	markerClose = '\ue001'
)

var pathRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*(\.[A-Za-z_][A-Za-z0-9_-]*)*$`)

// Render evaluates s against params and returns the artefact: one statement
// per semicolon-separated fragment, each with dialect placeholders numbered
// from 1 and its arguments in placeholder order. Render never mutates params.
func Render(s *Script, params domain.Params, dialect domain.Dialect) (*domain.QueryArtifact, error) {
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"params":  toCty(domain.Map(params)),
			"dialect": cty.StringVal(string(dialect)),
		},
		Functions: map[string]function.Function{
			"param": paramFunc,
			"has":   hasFunc(params),
		},
	}

	val, diags := s.expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, domain.NewError(domain.KindScriptEvaluation, "render", diags)
	}
	if !val.IsWhollyKnown() || val.IsNull() {
		return nil, domain.Errorf(domain.KindScriptEvaluation, "render", "script %q rendered to no text", s.Name)
	}
	text, err := convert.Convert(val, cty.String)
	if err != nil {
		return nil, domain.NewError(domain.KindScriptEvaluation, "render", err)
	}

	art := &domain.QueryArtifact{Script: s.Name, Dialect: dialect}
	for _, frag := range SplitStatements(text.AsString()) {
		st, err := bind(frag, params, dialect)
		if err != nil {
			return nil, err
		}
		art.Statements = append(art.Statements, st)
	}
	if len(art.Statements) == 0 {
		return nil, domain.Errorf(domain.KindScriptEvaluation, "render", "script %q has no statements", s.Name)
	}
	return art, nil
}

var paramFunc = function.New(&function.Spec{
	Params: []function.Parameter{{Name: "path", Type: cty.String}},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		path := args[0].AsString()
		if !pathRE.MatchString(path) {
			return cty.NilVal, fmt.Errorf("invalid parameter path %q", path)
		}
		return cty.StringVal(string(markerOpen) + path + string(markerClose)), nil
	},
})

func hasFunc(params domain.Params) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: "path", Type: cty.String}},
		Type:   function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			_, ok := params.Lookup(args[0].AsString())
			return cty.BoolVal(ok), nil
		},
	})
}

// bind swaps markers in live SQL for placeholders and collects the bound
// values. A marker inside a comment binds nothing and is left as its path;
// one inside a quoted run fails, as no driver binds there.
func bind(sql string, params domain.Params, dialect domain.Dialect) (domain.Statement, error) {
	var (
		sb   strings.Builder
		lx   lexer
		args = []any{}
	)
	rs := []rune(sql)
	for i := 0; i < len(rs); {
		end := markerEnd(rs, i)
		if end < 0 {
			n, _ := lx.next(rs, i)
			sb.WriteString(string(rs[i : i+n]))
			i += n
			continue
		}
		path := string(rs[i+1 : end])
		i = end + 1

		switch lx.state() {
		case regionComment:
			sb.WriteString(path)
			continue
		case regionQuoted:
			return domain.Statement{}, domain.Errorf(domain.KindScriptEvaluation, "render",
				"parameter %q is inside a quoted literal and cannot be bound", path)
		}

		v, ok := params.Lookup(path)
		if !ok {
			return domain.Statement{}, domain.Errorf(domain.KindScriptEvaluation, "render", "missing required parameter %q", path)
		}
		switch v.Kind() {
		case domain.KindMap:
			return domain.Statement{}, domain.Errorf(domain.KindParameterError, "render", "parameter %q is a mapping and cannot be bound", path)
		case domain.KindSeq:
			items := v.Items()
			if len(items) == 0 {
				sb.WriteString("NULL")
				continue
			}
			for j, item := range items {
				if item.Kind() == domain.KindMap || item.Kind() == domain.KindSeq {
					return domain.Statement{}, domain.Errorf(domain.KindParameterError, "render",
						"parameter %q[%d] is a %s and cannot be bound", path, j, item.Kind())
				}
				if j > 0 {
					sb.WriteString(", ")
				}
				args = append(args, item.Native())
				sb.WriteString(dialect.Placeholder(len(args)))
			}
		default:
			args = append(args, v.Native())
			sb.WriteString(dialect.Placeholder(len(args)))
		}
	}
	return domain.Statement{SQL: sb.String(), Args: args}, nil
}

// markerEnd returns the index of the marker closing the one opened at rs[i],
// or -1 when rs[i] does not open a marker.
func markerEnd(rs []rune, i int) int {
	if rs[i] != markerOpen {
		return -1
	}
	for j := i + 1; j < len(rs); j++ {
		if rs[j] == markerClose {
			return j
		}
	}
	return -1
}

// toCty exposes a parameter tree to template expressions.
func toCty(v domain.Value) cty.Value {
	switch v.Kind() {
	case domain.KindInt:
		return cty.NumberIntVal(v.Native().(int64))
	case domain.KindFloat:
		f := v.Native().(float64)
		if math.IsNaN(f) {
			return cty.NullVal(cty.Number)
		}
		return cty.NumberFloatVal(f)
	case domain.KindString:
		return cty.StringVal(v.Native().(string))
	case domain.KindBool:
		return cty.BoolVal(v.Native().(bool))
	case domain.KindSeq:
		items := v.Items()
		if len(items) == 0 {
			return cty.EmptyTupleVal
		}
		vals := make([]cty.Value, len(items))
		for i, item := range items {
			vals[i] = toCty(item)
		}
		return cty.TupleVal(vals)
	case domain.KindMap:
		fields := v.Fields()
		if len(fields) == 0 {
			return cty.EmptyObjectVal
		}
		attrs := make(map[string]cty.Value, len(fields))
		for k, f := range fields {
			attrs[k] = toCty(f)
		}
		return cty.ObjectVal(attrs)
	}
	return cty.NullVal(cty.DynamicPseudoType)
}
