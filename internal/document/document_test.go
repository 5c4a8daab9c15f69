package document

import (
	"errors"
	"testing"
)

func TestParseAndTypeTests(t *testing.T) {
	v, err := Parse([]byte(`{"s":"x","n":1.5,"u":42,"neg":-3,"e":1e3,"a":[1,2],"o":{"k":"v"},"z":null}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s, _ := v.Get("s")
	if !s.IsString() || s.IsNumber() {
		t.Error("s should be a string")
	}
	n, _ := v.Get("n")
	if !n.IsNumber() || n.IsUnsignedInteger() {
		t.Error("n is a non-integer number")
	}
	if f, ok := n.Float(); !ok || f != 1.5 {
		t.Errorf("expected 1.5, got %v", f)
	}
	u, _ := v.Get("u")
	if !u.IsUnsignedInteger() {
		t.Error("u is unsigned")
	}
	if x, _ := u.Uint(); x != 42 {
		t.Errorf("expected 42, got %d", x)
	}
	for _, k := range []string{"neg", "e"} {
		x, _ := v.Get(k)
		if x.IsUnsignedInteger() {
			t.Errorf("%s must not be unsigned integer", k)
		}
		if !x.IsNumber() {
			t.Errorf("%s is a number", k)
		}
	}
	a, _ := v.Get("a")
	if !a.IsArray() || a.Len() != 2 {
		t.Error("a is a two element array")
	}
	if !a.At(5).IsNull() {
		t.Error("out of range element must be null")
	}
	o, _ := v.Get("o")
	if !o.IsObject() {
		t.Error("o is an object")
	}
	if !v.Has("z") {
		t.Error("null member still present")
	}
}

func TestRequiredAndOptional(t *testing.T) {
	v, err := Parse([]byte(`{"name":"tin","count":3,"list":[],"obj":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	if s, err := v.RequiredString("name"); err != nil || s != "tin" {
		t.Errorf("RequiredString: %q %v", s, err)
	}
	_, err = v.RequiredString("missing")
	if !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
	var ke *KeyError
	if !errors.As(err, &ke) || ke.Key != "missing" {
		t.Errorf("expected KeyError naming key, got %v", err)
	}
	if _, err := v.RequiredString("count"); !errors.Is(err, ErrWrongType) {
		t.Errorf("expected ErrWrongType, got %v", err)
	}
	if s, err := v.OptionalString("absent"); err != nil || s != "" {
		t.Errorf("OptionalString absent: %q %v", s, err)
	}
	if _, err := v.OptionalString("count"); !errors.Is(err, ErrWrongType) {
		t.Errorf("expected wrong type for optional string, got %v", err)
	}
	if _, err := v.RequiredArray("obj"); !errors.Is(err, ErrWrongType) {
		t.Errorf("obj is not an array: %v", err)
	}
	if _, ok, err := v.OptionalArray("list"); !ok || err != nil {
		t.Errorf("list present: %v %v", ok, err)
	}
	if _, ok, err := v.OptionalObject("nope"); ok || err != nil {
		t.Errorf("absent object: %v %v", ok, err)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	if _, err := Parse([]byte(`{} {}`)); err == nil {
		t.Error("expected error for trailing document")
	}
	if _, err := Parse([]byte(`{"a":`)); err == nil {
		t.Error("expected error for truncated document")
	}
}
