package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nestedParams() Params {
	return NewParams().
		Put("teamIDs", Ints(1410, 1234)).
		Put("moduleIDs", Ints(97389, 97390, 97391)).
		Put("filmId", Int(250)).
		Put("start", Int(100)).
		Put("cost", Int(200)).
		Put("minRentals", Int(5)).
		Put("amap", Map(Params{
			"abc":  String("Dsadsads"),
			"cids": Map(Params{"cid": Int(100)}),
		}))
}

func TestParams_PutLastWriteWins(t *testing.T) {
	p := NewParams().Put("a", Int(1)).Put("a", String("two"))
	assert.Len(t, p, 1)
	assert.True(t, p["a"].Equal(String("two")))
}

func TestParams_SeqPreservesOrder(t *testing.T) {
	v := Seq(Int(3), Int(1), Int(2))
	assert.Equal(t, []any{int64(3), int64(1), int64(2)}, v.Native())
}

func TestParams_LookupNested(t *testing.T) {
	p := nestedParams()

	v, ok := p.Lookup("amap.cids.cid")
	require.True(t, ok)
	assert.True(t, v.Equal(Int(100)))

	_, ok = p.Lookup("amap.missing")
	assert.False(t, ok)
	_, ok = p.Lookup("filmId.deeper")
	assert.False(t, ok)
	_, ok = p.Lookup("")
	assert.False(t, ok)
}

func TestParams_NullAndEmptyAreLegal(t *testing.T) {
	p := NewParams().Put("none", Null()).Put("ids", Seq())

	v, ok := p.Lookup("none")
	require.True(t, ok)
	assert.True(t, v.IsNull())
	assert.Nil(t, v.Native())

	ids, _ := p.Lookup("ids")
	assert.Equal(t, KindSeq, ids.Kind())
	assert.Empty(t, ids.Items())
}

func TestParams_PutCopiesContainers(t *testing.T) {
	inner := Params{"cid": Int(1)}
	p := NewParams().Put("m", Map(inner))
	inner["cid"] = Int(2)

	v, _ := p.Lookup("m.cid")
	assert.True(t, v.Equal(Int(1)), "tree must not alias caller maps")
}

func TestFromAny_RoundTripIsLossless(t *testing.T) {
	raw := map[string]any{
		"teamIDs": []any{1410, 1234},
		"amap":    map[string]any{"abc": "Dsadsads", "cids": map[string]any{"cid": 100}},
		"flag":    true,
		"ratio":   0.5,
		"none":    nil,
		"big":     int64(1) << 62,
		"small":   int32(-7),
		"u":       uint16(9),
	}
	p, err := ParamsFromMap(raw)
	require.NoError(t, err)

	want := map[string]any{
		"teamIDs": []any{int64(1410), int64(1234)},
		"amap":    map[string]any{"abc": "Dsadsads", "cids": map[string]any{"cid": int64(100)}},
		"flag":    true,
		"ratio":   0.5,
		"none":    nil,
		"big":     int64(1) << 62,
		"small":   int64(-7),
		"u":       int64(9),
	}
	assert.Equal(t, want, p.Native())
}

func TestFromAny_JSONNumbers(t *testing.T) {
	dec := json.NewDecoder(strings.NewReader(`{"id": 9007199254740993, "ratio": 1.25}`))
	dec.UseNumber()
	var raw map[string]any
	require.NoError(t, dec.Decode(&raw))

	p, err := ParamsFromMap(raw)
	require.NoError(t, err)
	assert.True(t, p["id"].Equal(Int(9007199254740993)))
	assert.True(t, p["ratio"].Equal(Float(1.25)))
}

func TestFromAny_UnsupportedKind(t *testing.T) {
	_, err := ParamsFromMap(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParameterError))
	assert.Equal(t, KindParameterError, KindOf(err))
}

func TestFromAny_RejectsCycles(t *testing.T) {
	self := map[string]any{"filmId": 250}
	self["self"] = self
	_, err := FromAny(self)
	assert.ErrorIs(t, err, ErrParameterError)
	assert.Contains(t, err.Error(), "cyclic")

	_, err = ParamsFromMap(map[string]any{"outer": map[string]any{"inner": self}})
	assert.ErrorIs(t, err, ErrParameterError)

	loop := []any{1410, nil}
	loop[1] = loop
	_, err = FromAny(loop)
	assert.ErrorIs(t, err, ErrParameterError)

	typed := map[string][]any{"ids": {1}}
	typed["ids"][0] = typed
	_, err = FromAny(typed)
	assert.ErrorIs(t, err, ErrParameterError)
}

func TestFromAny_SharedValuesAreNotCycles(t *testing.T) {
	ids := []any{1410, 1234}
	amap := map[string]any{"abc": "x"}
	v, err := FromAny(map[string]any{"teamIDs": ids, "again": ids, "a": amap, "b": amap})
	require.NoError(t, err)
	assert.True(t, v.Fields()["teamIDs"].Equal(v.Fields()["again"]))
	assert.True(t, v.Fields()["a"].Equal(v.Fields()["b"]))
}

func TestValue_String(t *testing.T) {
	v := Map(Params{"b": Ints(1, 2), "a": String("x"), "n": Null()})
	assert.Equal(t, `{a: "x", b: [1, 2], n: null}`, v.String())
}

func TestError_IsMatchesKind(t *testing.T) {
	err := Errorf(KindScriptNotFound, "parse", "script %q not found", "x")

	assert.True(t, errors.Is(err, ErrScriptNotFound))
	assert.False(t, errors.Is(err, ErrScriptEvaluation))
	assert.Equal(t, `script "x" not found`, Diagnostic(err))
	assert.Equal(t, `parse: ScriptNotFound: script "x" not found`, err.Error())
}

func TestDialect_Placeholders(t *testing.T) {
	cases := map[Dialect]string{
		DialectMySQL:     "?",
		DialectSQLite:    "?",
		DialectH2:        "?",
		DialectPostgres:  "$3",
		DialectOracle:    ":3",
		DialectSQLServer: "@p3",
	}
	for d, want := range cases {
		assert.Equal(t, want, d.Placeholder(3), string(d))
	}

	d, ok := ParseDialect("PostgreSQL")
	assert.True(t, ok)
	assert.Equal(t, DialectPostgres, d)
	_, ok = ParseDialect("db2")
	assert.False(t, ok)
}
