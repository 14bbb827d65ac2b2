package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/openfroyo/cfgtree/pkg/expr"
)

func halComponent() *Component {
	return &Component{
		Name: "fake-hal",
		Options: []*Definition{
			{
				Name:        "psram",
				Description: "PSRAM",
				Depends:     `feature("esp32") || feature("esp32s2") || feature("esp32s3")`,
				Options: []*Definition{
					{Name: "enable", Description: "Enable PSRAM", Type: "bool", Default: false},
					{
						Name:    "size",
						Type:    "enum",
						Depends: `enabled("psram.enable")`,
						Values: []EnumValue{
							{Literal: "1", Label: "1MB"},
							{Literal: "2", Label: "2MB"},
							{Literal: "4", Label: "4MB"},
						},
						Default: "2",
					},
				},
			},
			{
				Name: "heap",
				Options: []*Definition{
					{Name: "size", Type: "u32", Valid: "value >= 0 && value <= 80000"},
				},
			},
		},
	}
}

func TestMerge_MountsComponents(t *testing.T) {
	wifi := &Component{
		Name: "fake-wifi",
		Options: []*Definition{
			{Name: "heap", Options: []*Definition{{Name: "size", Type: "u32", Default: int64(1024)}}},
		},
	}

	tree, err := Merge([]*Component{halComponent(), wifi})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	for _, path := range []string{"fake-hal", "fake-hal.psram.size", "fake-hal.heap.size", "fake-wifi.heap.size"} {
		if _, ok := tree.Lookup(path); !ok {
			t.Errorf("Expected node %s", path)
		}
	}

	if got := tree.Components(); len(got) != 2 || got[0] != "fake-hal" || got[1] != "fake-wifi" {
		t.Errorf("Components() = %v", got)
	}

	var order []string
	for _, n := range tree.Nodes() {
		order = append(order, n.Path)
	}
	want := "fake-hal,fake-hal.psram,fake-hal.psram.enable,fake-hal.psram.size,fake-hal.heap,fake-hal.heap.size,fake-wifi,fake-wifi.heap,fake-wifi.heap.size"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("declaration order = %s\nwant %s", got, want)
	}

	size, _ := tree.Lookup("fake-hal.psram.size")
	if size.Kind != KindScalar || size.Type != TypeEnum || size.LocalPath() != "psram.size" {
		t.Errorf("unexpected node %+v", size)
	}
	if !size.HasDefault || size.Default.AsString() != "2" {
		t.Errorf("default = %s", size.Default)
	}
	if size.Depth != 2 {
		t.Errorf("Depth = %d, want 2", size.Depth)
	}

	if got := len(tree.Scalars()); got != 4 {
		t.Errorf("Scalars() returned %d nodes, want 4", got)
	}

	if comp, ok := tree.ComponentOf("fake-wifi.heap.size"); !ok || comp != "fake-wifi" {
		t.Errorf("ComponentOf = %q, %v", comp, ok)
	}
	if _, ok := tree.ComponentOf("fake-net.enable"); ok {
		t.Error("ComponentOf accepted an unknown component")
	}
}

func TestMerge_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		opts []*Definition
		code string
		path string
	}{
		{
			name: "duplicate sibling",
			opts: []*Definition{{Name: "a", Type: "bool"}, {Name: "a", Type: "u32"}},
			code: ErrCodeDuplicateName,
			path: "c.a",
		},
		{
			name: "duplicate enum literal",
			opts: []*Definition{{Name: "e", Type: "enum", Values: []EnumValue{{Literal: "x"}, {Literal: "x"}}}},
			code: ErrCodeDuplicateName,
			path: "c.e",
		},
		{
			name: "enum default not declared",
			opts: []*Definition{{Name: "e", Type: "enum", Values: []EnumValue{{Literal: "x"}}, Default: "y"}},
			code: ErrCodeInvalidDefault,
			path: "c.e",
		},
		{
			name: "integer default out of range",
			opts: []*Definition{{Name: "n", Type: "u8", Default: int64(300)}},
			code: ErrCodeInvalidDefault,
			path: "c.n",
		},
		{
			name: "malformed depends",
			opts: []*Definition{{Name: "a", Type: "bool", Depends: `feature("x" &&`}},
			code: ErrCodeInvalidExpression,
			path: "c.a",
		},
		{
			name: "depends reads value",
			opts: []*Definition{{Name: "a", Type: "u32", Default: int64(1), Depends: "value > 0"}},
			code: ErrCodeInvalidExpression,
			path: "c.a",
		},
		{
			name: "malformed valid",
			opts: []*Definition{{Name: "a", Type: "u32", Valid: `value => 3`}},
			code: ErrCodeInvalidExpression,
			path: "c.a",
		},
		{
			name: "valid on menu",
			opts: []*Definition{{Name: "m", Valid: `true`}},
			code: ErrCodeInvalidDefinition,
			path: "c.m",
		},
		{
			name: "unknown type",
			opts: []*Definition{{Name: "f", Type: "float"}},
			code: ErrCodeInvalidDefinition,
			path: "c.f",
		},
		{
			name: "scalar with children",
			opts: []*Definition{{Name: "a", Type: "bool", Options: []*Definition{{Name: "b", Type: "bool"}}}},
			code: ErrCodeInvalidDefinition,
			path: "c.a",
		},
		{
			name: "nested duplicate",
			opts: []*Definition{{Name: "m", Options: []*Definition{{Name: "x", Type: "bool"}, {Name: "x", Type: "bool"}}}},
			code: ErrCodeDuplicateName,
			path: "c.m.x",
		},
		{
			name: "dotted name",
			opts: []*Definition{{Name: "a.b", Type: "bool"}},
			code: ErrCodeInvalidDefinition,
			path: "c.a.b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge([]*Component{{Name: "c", Options: tt.opts}})
			if err == nil {
				t.Fatal("Expected schema error")
			}
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("Expected *SchemaError, got %T: %v", err, err)
			}
			if se.Code != tt.code {
				t.Errorf("Code = %s, want %s", se.Code, tt.code)
			}
			if se.Path != tt.path {
				t.Errorf("Path = %s, want %s", se.Path, tt.path)
			}
			if !errors.Is(err, &SchemaError{Code: tt.code}) {
				t.Errorf("errors.Is should match code %s", tt.code)
			}
		})
	}
}

func TestMerge_MalformedExpressionNamesText(t *testing.T) {
	_, err := Merge([]*Component{{Name: "c", Options: []*Definition{{Name: "a", Type: "bool", Depends: "enabled(("}}}})
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("Expected *SchemaError, got %v", err)
	}
	if se.Text != "enabled((" {
		t.Errorf("Text = %q", se.Text)
	}
	var syn *expr.SyntaxError
	if !errors.As(err, &syn) {
		t.Errorf("Expected wrapped *expr.SyntaxError")
	}
	if !strings.Contains(err.Error(), "c.a") {
		t.Errorf("Error() should name the path: %s", err)
	}
}

func TestMerge_DuplicateComponent(t *testing.T) {
	_, err := Merge([]*Component{halComponent(), halComponent()})
	if CodeOf(err) != ErrCodeDuplicateName {
		t.Fatalf("Expected duplicate component error, got %v", err)
	}
}

func TestTree_Walk(t *testing.T) {
	tree, err := Merge([]*Component{halComponent()})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	tests := []struct {
		name string
		skip string
		want string
	}{
		{
			name: "full pre-order",
			want: "fake-hal,fake-hal.psram,fake-hal.psram.enable,fake-hal.psram.size,fake-hal.heap,fake-hal.heap.size",
		},
		{
			name: "pruned menu",
			skip: "fake-hal.psram",
			want: "fake-hal,fake-hal.psram,fake-hal.heap,fake-hal.heap.size",
		},
		{
			name: "pruned component",
			skip: "fake-hal",
			want: "fake-hal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []string
			tree.Walk(func(n *Node) bool {
				seen = append(seen, n.Path)
				return n.Path != tt.skip
			})
			if got := strings.Join(seen, ","); got != tt.want {
				t.Errorf("Walk visited %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestJoinPath(t *testing.T) {
	tests := []struct {
		segs []string
		want string
	}{
		{segs: []string{"fake-hal", "psram", "enable"}, want: "fake-hal.psram.enable"},
		{segs: []string{"", "heap"}, want: "heap"},
		{segs: []string{"fake-hal", "", "size"}, want: "fake-hal.size"},
		{segs: nil, want: ""},
	}

	for _, tt := range tests {
		if got := JoinPath(tt.segs...); got != tt.want {
			t.Errorf("JoinPath(%q) = %q, want %q", tt.segs, got, tt.want)
		}
	}
}

func TestTree_ResolveRef(t *testing.T) {
	tree, err := Merge([]*Component{halComponent()})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	owner, _ := tree.Lookup("fake-hal.psram.size")

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{ref: "psram.enable", want: "fake-hal.psram.enable"},
		{ref: ".enable", want: "fake-hal.psram.enable"},
		{ref: "..heap.size", want: "fake-hal.heap.size"},
		{ref: "/fake-wifi.heap.size", want: "fake-wifi.heap.size"},
		{ref: "...x", wantErr: true},
		{ref: "", wantErr: true},
		{ref: "a..b", wantErr: true},
		{ref: "/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := tree.ResolveRef(owner, tt.ref)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveRef failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveRef(%q) = %s, want %s", tt.ref, got, tt.want)
			}
		})
	}
}

func TestNode_Coerce(t *testing.T) {
	tree, err := Merge([]*Component{{
		Name: "c",
		Options: []*Definition{
			{Name: "b", Type: "bool"},
			{Name: "n", Type: "u32"},
			{Name: "i", Type: "i8"},
			{Name: "e", Type: "enum", Values: []EnumValue{{Literal: "1"}, {Literal: "4"}, {Literal: "octal"}}},
			{Name: "s", Type: "string"},
		},
	}})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	tests := []struct {
		path    string
		raw     any
		want    expr.Value
		wantErr bool
	}{
		{path: "c.b", raw: true, want: expr.Bool(true)},
		{path: "c.b", raw: "false", want: expr.Bool(false)},
		{path: "c.b", raw: int64(1), wantErr: true},
		{path: "c.n", raw: int64(30000), want: expr.Int(30000)},
		{path: "c.n", raw: float64(12), want: expr.Int(12)},
		{path: "c.n", raw: "0x10", want: expr.Int(16)},
		{path: "c.n", raw: float64(1.5), wantErr: true},
		{path: "c.n", raw: int64(-1), wantErr: true},
		{path: "c.n", raw: "many", wantErr: true},
		{path: "c.i", raw: int64(-128), want: expr.Int(-128)},
		{path: "c.i", raw: int64(128), wantErr: true},
		{path: "c.e", raw: "octal", want: expr.Str("octal")},
		{path: "c.e", raw: int64(4), want: expr.Str("4")},
		{path: "c.e", raw: "Octal", wantErr: true},
		{path: "c.e", raw: true, wantErr: true},
		{path: "c.s", raw: "hello", want: expr.Str("hello")},
		{path: "c.s", raw: int64(3), wantErr: true},
	}

	for _, tt := range tests {
		n, _ := tree.Lookup(tt.path)
		got, err := n.Coerce(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Coerce(%s, %v) = %s, expected error", tt.path, tt.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Coerce(%s, %v) failed: %v", tt.path, tt.raw, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("Coerce(%s, %v) = %s, want %s", tt.path, tt.raw, got, tt.want)
		}
	}
}

func TestDecode(t *testing.T) {
	value := func(lit any, label string) *Table {
		v := NewTable()
		v.Set("description", label)
		v.Set("value", lit)
		return v
	}

	size := NewTable()
	size.Set("description", "PSRAM Size")
	size.Set("type", "enum")
	size.Set("values", []any{value("1", "1MB"), value(int64(2), "2MB")})
	size.Set("default", "2")

	enable := NewTable()
	enable.Set("type", "bool")
	enable.Set("default", false)

	opts := NewTable()
	opts.Set("enable", enable)
	opts.Set("size", size)

	psram := NewTable()
	psram.Set("description", "PSRAM")
	psram.Set("depends", `feature("esp32s3")`)
	psram.Set("options", opts)

	doc := NewTable()
	doc.Set("psram", psram)

	comp, err := Decode("hal", doc)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(comp.Options) != 1 || comp.Options[0].Name != "psram" {
		t.Fatalf("unexpected options %+v", comp.Options)
	}
	children := comp.Options[0].Options
	if len(children) != 2 || children[0].Name != "enable" || children[1].Name != "size" {
		t.Fatalf("children not in document order: %+v", children)
	}
	if got := children[1].Values; len(got) != 2 || got[1].Literal != "2" || got[1].Label != "2MB" {
		t.Errorf("values = %+v", got)
	}

	if _, err := Merge([]*Component{comp}); err != nil {
		t.Errorf("Merge of decoded component failed: %v", err)
	}
}

func TestDecode_UnknownKey(t *testing.T) {
	opt := NewTable()
	opt.Set("type", "bool")
	opt.Set("defualt", true)
	doc := NewTable()
	doc.Set("flag", opt)

	_, err := Decode("c", doc)
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("Expected *SchemaError, got %v", err)
	}
	if se.Path != "c.flag" || se.Code != ErrCodeInvalidDefinition {
		t.Errorf("unexpected error %+v", se)
	}
}
