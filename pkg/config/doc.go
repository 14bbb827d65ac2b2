// Package config reads and writes the files a cfgtree project is made of.
//
// # Overview
//
// The package covers the document layer around the resolution engine:
//
//   - Definition documents (TOML or YAML), parsed into ordered tables,
//     checked against a built-in CUE schema and decoded into schema components
//   - The user configuration (TOML), flattened into engine.RawValues and
//     written back nested by component
//   - The optional project manifest (cfgtree.toml), validated with
//     go-playground/validator
//   - Discovery of component definitions and a file watcher for re-resolution
//
// # Definition Documents
//
// Top-level keys are option names. Keys keep their document order, which is
// the order options are shown and evaluated in:
//
//	[psram]
//	description = "PSRAM"
//	depends = 'feature("esp32") || feature("esp32s3")'
//
//	[psram.options.enable]
//	description = "Enable PSRAM"
//	type = "bool"
//	default = false
//
// # User Configuration
//
//	[fake-hal]
//	heap.size = 30000
//	psram.enable = true
//
// # Usage Example
//
//	project, err := config.Discover(ctx, ".")
//	if err != nil {
//	    return err
//	}
//	comps, err := project.LoadComponents(ctx, config.NewDefinitionLoader(nil))
//	if err != nil {
//	    return err
//	}
//	raw, err := config.NewValuesStore(project.ConfigPath, nil).LoadOrEmpty(ctx)
package config
