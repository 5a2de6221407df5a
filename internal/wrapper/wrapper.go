// Package wrapper generates the self-contained Python programs that run a
// code fragment inside a kernel.
//
// A kernel is not a long-running interpreter: every execution is a fresh
// `python -c` process inside the workspace's sandbox. The generated program
// fakes interpreter persistence by reloading a pickled namespace before the
// user code runs and re-pickling a best-effort serializable subset of it
// afterwards. Values that cannot be pickled (locks, open handles, threads)
// are dropped silently.
//
// Both programs evaluate the fragment under REPL rules: the fragment is
// split into top-level statements with ast, and when the last statement is a
// bare expression its value is evaluated separately and reported as the
// result. A fragment that fails to parse is executed as a raw block with no
// result.
//
// The batch program prints exactly one JSON object line on exit. The
// streaming program intercepts stdout line by line and writes NDJSON events
// to raw fd 1, bypassing its own interception.
package wrapper

import (
	"encoding/json"
	"strings"
)

// statePath is where the pickled namespace lives inside the sandbox. One
// namespace per sandbox; it disappears with the sandbox.
const statePath = "/tmp/kernel_state.pkl"

// Batch returns a Python program that executes code and prints a single
// JSON result line {cell_id, display_id, stdout, stderr, error, images,
// result} on standard output.
func Batch(code, cellID, displayID string) string {
	return expand(batchTemplate, code, cellID, displayID)
}

// Streaming returns a Python program that executes code and emits NDJSON
// events (stdout, image, result, error, done) as they happen.
func Streaming(code, cellID, displayID string) string {
	return expand(streamingTemplate, code, cellID, displayID)
}

func expand(template, code, cellID, displayID string) string {
	return strings.NewReplacer(
		"{{code}}", pyString(code),
		"{{cellID}}", pyString(cellID),
		"{{displayID}}", pyString(displayID),
		"{{statePath}}", pyString(statePath),
	).Replace(template)
}

// pyString renders s as a Python string literal. JSON string syntax is a
// subset of Python's, so the encoder output embeds directly.
func pyString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// commonPrelude is shared by both programs: headless matplotlib, namespace
// load, figure capture, result formatting, and REPL-rule evaluation.
//
// format_result suppresses uninformative default reprs ("<Foo object at
// 0x...>") and serializes recognized tabular values record-oriented under
// the dataframe tag.
const commonPrelude = `
import json
import sys
import os
import ast
import base64
import traceback
from io import BytesIO, StringIO

import matplotlib
matplotlib.use("Agg")
import matplotlib.pyplot as plt
plt.show = lambda *args, **kwargs: None

try:
    import pickle
    with open({{statePath}}, "rb") as f:
        _globals = pickle.load(f)
except Exception:
    _globals = {"__name__": "__main__"}

_globals["matplotlib"] = matplotlib
_globals["plt"] = plt

def _capture_figures():
    images = []
    for fig_num in plt.get_fignums():
        fig = plt.figure(fig_num)
        buf = BytesIO()
        fig.savefig(buf, format="png", bbox_inches="tight", dpi=100)
        buf.seek(0)
        images.append("data:image/png;base64," + base64.b64encode(buf.read()).decode("utf-8"))
    plt.close("all")
    return images

def _format_result(value):
    if value is None:
        return None
    if "pandas" in sys.modules:
        import pandas as pd
        if isinstance(value, (pd.DataFrame, pd.Series)):
            return {"format": "dataframe", "content": value.to_json(orient="records")}
    try:
        text = repr(value)
        if text.startswith("<") and "object at 0x" in text:
            return None
        return {"format": "text", "content": text}
    except Exception:
        return None

def _execute_with_result(code, filename, globals_dict):
    try:
        tree = ast.parse(code)
    except SyntaxError:
        exec(compile(code, filename, "exec"), globals_dict)
        return None
    if not tree.body:
        return None
    last = tree.body[-1]
    if isinstance(last, ast.Expr):
        if len(tree.body) > 1:
            mod = ast.Module(body=tree.body[:-1], type_ignores=[])
            exec(compile(mod, filename, "exec"), globals_dict)
        expr = ast.Expression(body=last.value)
        return eval(compile(expr, filename, "eval"), globals_dict)
    exec(compile(tree, filename, "exec"), globals_dict)
    return None

def _persist_globals():
    try:
        import pickle
        saveable = {}
        for k, v in _globals.items():
            if k.startswith("_"):
                continue
            try:
                pickle.dumps(v)
                saveable[k] = v
            except Exception:
                pass
        saveable["__name__"] = "__main__"
        with open({{statePath}}, "wb") as f:
            pickle.dump(saveable, f)
    except Exception:
        pass

code = {{code}}
cell_id = {{cellID}}
display_id = {{displayID}}
`

const batchTemplate = commonPrelude + `
stdout_buf = StringIO()
stderr_buf = StringIO()
error = None
expr_result = None

from contextlib import redirect_stdout, redirect_stderr
with redirect_stdout(stdout_buf), redirect_stderr(stderr_buf):
    try:
        last_value = _execute_with_result(code, "<cell:{}>".format(display_id), _globals)
        if last_value is not None:
            expr_result = _format_result(last_value)
    except Exception:
        error = traceback.format_exc()

images = _capture_figures()
_persist_globals()

print(json.dumps({
    "cell_id": cell_id,
    "display_id": display_id,
    "stdout": stdout_buf.getvalue(),
    "stderr": stderr_buf.getvalue(),
    "error": error,
    "images": images,
    "result": expr_result,
}))
`

const streamingTemplate = commonPrelude + `
def _emit(event_type, **data):
    event = {"type": event_type, **data}
    os.write(1, (json.dumps(event) + "\n").encode("utf-8"))

class _StreamingStdout:
    def __init__(self):
        self.buffer = ""

    def write(self, text):
        if text:
            self.buffer += text
            while "\n" in self.buffer:
                line, self.buffer = self.buffer.split("\n", 1)
                if line:
                    _emit("stdout", data=line + "\n")

    def flush(self):
        if self.buffer:
            _emit("stdout", data=self.buffer)
            self.buffer = ""

_streaming_stdout = _StreamingStdout()
sys.stdout = _streaming_stdout

error_msg = None
expr_result = None

try:
    last_value = _execute_with_result(code, "<cell:{}>".format(display_id), _globals)
    if last_value is not None:
        expr_result = _format_result(last_value)
except Exception:
    error_msg = traceback.format_exc()

_streaming_stdout.flush()

images = _capture_figures()
_persist_globals()

for img in images:
    _emit("image", data=img)

if expr_result:
    _emit("result", **expr_result)

if error_msg:
    _emit("error", message=error_msg)

_emit("done")
`
