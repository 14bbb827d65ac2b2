package engine_test

import (
	"fmt"

	"github.com/openfroyo/cfgtree/pkg/engine"
	"github.com/openfroyo/cfgtree/pkg/schema"
)

// Example_resolve shows the full pipeline: merge definitions, compile an
// evaluation order once, then resolve user values against a feature set.
func Example_resolve() {
	// 1. Component definitions, as produced by the document layer
	hal := &schema.Component{
		Name: "fake-hal",
		Options: []*schema.Definition{
			{
				Name:    "psram",
				Depends: `feature("esp32s3")`,
				Options: []*schema.Definition{
					{Name: "enable", Type: "bool", Default: false},
					{Name: "speed", Type: "u32", Default: int64(40), Depends: `enabled(".enable")`},
				},
			},
			{
				Name: "heap",
				Options: []*schema.Definition{
					{Name: "size", Type: "u32", Valid: "value <= 80000"},
				},
			},
		},
	}

	// 2. Merge and compile; both fail fast on schema defects
	tree, err := schema.Merge([]*schema.Component{hal})
	if err != nil {
		fmt.Println(err)
		return
	}
	order, err := engine.BuildOrder(tree)
	if err != nil {
		fmt.Println(err)
		return
	}

	// 3. Resolve user input
	raw := engine.RawValues{
		"fake-hal.psram.enable": true,
		"fake-hal.heap.size":    int64(90000),
	}
	res := engine.Resolve(order, engine.NewFeatureSet("esp32s3"), raw, engine.ModeStrict)

	for _, e := range res.Config.Entries() {
		if e.HasValue {
			fmt.Printf("%s = %s\n", e.Path, e.Value.Text())
		} else {
			fmt.Printf("%s unset\n", e.Path)
		}
	}
	for _, d := range res.Diagnostics {
		fmt.Println(d.Severity, d.Path, d.Kind)
	}
	fmt.Println("failed:", res.Failed())

	// Output:
	// fake-hal.psram.enable = true
	// fake-hal.psram.speed = 40
	// fake-hal.heap.size unset
	// error fake-hal.heap.size InvalidValue
	// failed: true
}

// ExampleBuildOrder_cycle shows the error reported for a dependency loop.
func ExampleBuildOrder_cycle() {
	tree, _ := schema.Merge([]*schema.Component{{
		Name: "c",
		Options: []*schema.Definition{
			{Name: "a", Type: "bool", Depends: `enabled("b")`},
			{Name: "b", Type: "bool", Depends: `enabled("a")`},
		},
	}})

	_, err := engine.BuildOrder(tree)
	fmt.Println(err)

	// Output:
	// schema error at c.a: circular dependency detected: c.a -> c.b -> c.a
}

// ExampleCfgFlags shows the flags a code generator would derive.
func ExampleCfgFlags() {
	tree, _ := schema.Merge([]*schema.Component{{
		Name: "hal",
		Options: []*schema.Definition{
			{Name: "psram", Type: "bool", Default: true},
			{Name: "dma", Type: "bool", Default: false},
		},
	}})
	order, _ := engine.BuildOrder(tree)
	res := engine.Resolve(order, engine.NewFeatureSet(), nil, engine.ModeStrict)

	for _, f := range engine.CfgFlags(res.Config) {
		fmt.Println(f.Name)
	}

	// Output:
	// has_hal_psram
	// hal_psram
	// has_hal_dma
}
