package model

// DefaultAccelerator is used when a workspace has no stored preference or
// stores an unrecognized token.
const DefaultAccelerator = "T4"

// Accelerators are the accelerator tokens the provider understands.
var Accelerators = []string{
	"T4", "L4", "A10", "A100", "A100-40GB", "A100-80GB",
	"L40S", "H100", "H200", "B200", "cpu",
}

// NormalizeAccelerator maps unknown tokens to the default.
func NormalizeAccelerator(token string) string {
	for _, a := range Accelerators {
		if token == a {
			return token
		}
	}
	return DefaultAccelerator
}
