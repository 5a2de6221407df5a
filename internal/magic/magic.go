// Package magic rewrites IPython-style magic directives into plain Python
// before code is shipped to a kernel.
//
// The transform is pure and total: every input produces an output, no rule
// ever raises, and unrecognized directives degrade to inert comments. Rules
// are evaluated per line, first match wins, and the line's indentation is
// preserved. Lines with no directive pass through untouched, so running
// already-plain code through Preprocess is the identity.
package magic

import (
	"encoding/json"
	"strings"
)

// rule pairs a line predicate with its rewrite. Keeping the rules in an
// ordered table (rather than a chain of if/else with inline string surgery)
// keeps each directive testable on its own.
type rule struct {
	match   func(stripped string) bool
	rewrite func(stripped string) string
}

var rules = []rule{
	{
		// !cmd runs cmd through the shell.
		match: func(s string) bool { return strings.HasPrefix(s, "!") },
		rewrite: func(s string) string {
			return "import subprocess; subprocess.run(" + pyString(s[1:]) + ", shell=True)"
		},
	},
	{
		// Cell magics apply to a whole cell; a line rewriter can't honor them.
		match: func(s string) bool { return strings.HasPrefix(s, "%%") },
		rewrite: func(s string) string {
			return "# Cell magic not supported: " + s
		},
	},
	{
		match:   directiveWithArgs("%pip"),
		rewrite: packageManager("pip", "%pip"),
	},
	{
		match:   directiveWithArgs("%conda"),
		rewrite: packageManager("conda", "%conda"),
	},
	{
		match: func(s string) bool { return strings.HasPrefix(s, "%cd ") },
		rewrite: func(s string) string {
			path := strings.TrimSpace(s[len("%cd "):])
			return "import os; os.chdir(" + pyString(path) + ")"
		},
	},
	{
		match: func(s string) bool { return strings.HasPrefix(s, "%env ") },
		rewrite: func(s string) string {
			expr := strings.TrimSpace(s[len("%env "):])
			if key, val, ok := strings.Cut(expr, "="); ok {
				return "import os; os.environ[" + pyString(strings.TrimSpace(key)) + "] = " +
					pyString(strings.TrimSpace(val))
			}
			return "import os; print(os.environ.get(" + pyString(expr) + `, ""))`
		},
	},
	{
		// Any other line magic: degrade to a comment rather than erroring.
		match: func(s string) bool { return strings.HasPrefix(s, "%") },
		rewrite: func(s string) string {
			return "# Line magic not supported: " + s
		},
	},
}

// Preprocess rewrites every magic-directive line of code into equivalent
// executable Python, leaving all other lines unchanged.
func Preprocess(code string) string {
	lines := strings.Split(code, "\n")
	out := make([]string, len(lines))

	for i, line := range lines {
		stripped := strings.TrimLeft(line, " \t")
		indent := line[:len(line)-len(stripped)]

		out[i] = line
		for _, r := range rules {
			if r.match(stripped) {
				out[i] = indent + r.rewrite(stripped)
				break
			}
		}
	}

	return strings.Join(out, "\n")
}

// directiveWithArgs matches "<name> <args>" or "<name>\t<args>", i.e. the
// directive followed by at least one whitespace-separated token.
func directiveWithArgs(name string) func(string) bool {
	return func(s string) bool {
		return strings.HasPrefix(s, name+" ") || strings.HasPrefix(s, name+"\t")
	}
}

// packageManager rewrites "%pip install foo" into
// `import subprocess; subprocess.run(["pip", "install", "foo"])`.
func packageManager(binary, directive string) func(string) string {
	return func(s string) string {
		args := strings.Fields(strings.TrimSpace(s[len(directive):]))
		argv := []string{pyString(binary)}
		for _, a := range args {
			argv = append(argv, pyString(a))
		}
		return "import subprocess; subprocess.run([" + strings.Join(argv, ", ") + "])"
	}
}

// pyString renders s as a Python string literal. A JSON-encoded string is
// also a valid Python string literal, including its \uXXXX escapes.
func pyString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
