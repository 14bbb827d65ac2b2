package policy

// BuiltinPolicies returns the policies every engine starts with. None of them
// block a configuration.
func BuiltinPolicies() []Policy {
	return []Policy{
		stringLengthPolicy(),
		lenientDiagnosticsPolicy(),
	}
}

// stringLengthPolicy flags string values too long to be embedded as build
// environment variables.
func stringLengthPolicy() Policy {
	return Policy{
		Name:        "string-length",
		Description: "Warns about string values longer than 4096 bytes",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"values"},
		Rego: `package cfgtree.policies.strings

import rego.v1

deny contains violation if {
	some opt in input.options
	is_string(opt.value)
	count(opt.value) > 4096
	violation := {
		"path": opt.path,
		"message": sprintf("value of %s is %d bytes long, the limit is 4096", [opt.path, count(opt.value)]),
	}
}`,
	}
}

// lenientDiagnosticsPolicy reports when a lenient pass papered over problems
// that a strict pass would reject.
func lenientDiagnosticsPolicy() Policy {
	return Policy{
		Name:        "lenient-diagnostics",
		Description: "Reports diagnostics downgraded to warnings by --fix",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"mode"},
		Rego: `package cfgtree.policies.mode

import rego.v1

deny contains violation if {
	input.mode != "strict"
	n := count(input.diagnostics)
	n > 0
	violation := {
		"message": sprintf("%d diagnostics were downgraded to warnings in %s mode", [n, input.mode]),
	}
}`,
	}
}
