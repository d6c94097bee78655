package host

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/millrun/mill/extension"
)

// HostKind labels the generated host in the marker file.
const HostKind = "typescript"

// Generated file names inside the run directory.
const (
	HostFileName   = "program-host.ts"
	MarkerFileName = "program-host.marker"
)

// preludeHeader installs the mill global and the wire plumbing. The user
// program body is appended verbatim after the extension method block.
const preludeHeader = `// Generated program host. Do not edit.
const __millSentinel = "__MILL_HOST__";
let __millNextRequest = 0;
let __millResultSent = false;
const __millPending = new Map<string, { resolve: (v: unknown) => void; reject: (e: Error) => void }>();

process.stdin.setEncoding("utf8");
process.stdin.unref();
let __millStdinBuffer = "";
process.stdin.on("data", (chunk: string) => {
  __millStdinBuffer += chunk;
  let newline;
  while ((newline = __millStdinBuffer.indexOf("\n")) >= 0) {
    const line = __millStdinBuffer.slice(0, newline);
    __millStdinBuffer = __millStdinBuffer.slice(newline + 1);
    if (!line.trim()) continue;
    let message;
    try {
      message = JSON.parse(line);
    } catch {
      continue;
    }
    const pending = __millPending.get(message.requestId);
    if (!pending) continue;
    __millPending.delete(message.requestId);
    if (__millPending.size === 0) process.stdin.unref();
    if (message.ok) pending.resolve(message.value);
    else pending.reject(new Error(message.message));
  }
});

function __millSend(message: unknown): void {
  process.stdout.write(__millSentinel + JSON.stringify(message) + "\n");
}

function __millRequest(fields: Record<string, unknown>): Promise<unknown> {
  const requestId = "req_" + String(++__millNextRequest);
  return new Promise((resolve, reject) => {
    __millPending.set(requestId, { resolve, reject });
    process.stdin.ref();
    __millSend({ kind: "request", requestId, ...fields });
  });
}

function __millFinish(ok: boolean, valueOrMessage: unknown): void {
  if (__millResultSent) return;
  __millResultSent = true;
  if (ok) __millSend({ kind: "result", ok: true, value: valueOrMessage });
  else __millSend({ kind: "result", ok: false, message: String(valueOrMessage) });
}

process.on("beforeExit", () => __millFinish(true, (globalThis as any).mill.result));
process.on("uncaughtException", (err: Error) => {
  __millFinish(false, err && err.message ? err.message : err);
  process.exit(1);
});
process.on("unhandledRejection", (reason: unknown) => {
  __millFinish(false, reason instanceof Error ? reason.message : reason);
  process.exit(1);
});

(globalThis as any).mill = {
  result: undefined,
  spawn: (input: unknown) => __millRequest({ requestType: "spawn", input }),
`

// preludeFooter closes the mill global.
const preludeFooter = `};

// --- user program ---
`

// GeneratePrelude renders the host prelude for the given extensions. Each
// extension API method becomes mill.<extension>_<method>(...args).
func GeneratePrelude(extensions []*extension.Registration) string {
	out := preludeHeader
	for _, ext := range extensions {
		methods := make([]string, 0, len(ext.API))
		for name := range ext.API {
			methods = append(methods, name)
		}
		sort.Strings(methods)
		for _, method := range methods {
			out += fmt.Sprintf(
				"  %s_%s: (...args: unknown[]) => __millRequest({ requestType: %q, extensionName: %q, methodName: %q, args }),\n",
				ext.Name, method, RequestExtension, ext.Name, method)
		}
	}
	return out + preludeFooter
}

// WriteHostFiles writes the marker file and the generated host file
// (prelude + program body) into the run directory. Returns the host path.
func WriteHostFiles(runDir, runID, executorName, programPath string, extensions []*extension.Registration) (string, error) {
	marker := fmt.Sprintf("process-host:%s\nrunId=%s\nexecutor=%s\nprogramPath=%s\n",
		HostKind, runID, executorName, programPath)
	markerPath := filepath.Join(runDir, MarkerFileName)
	if err := os.WriteFile(markerPath, []byte(marker), 0o644); err != nil {
		return "", &ProgramHostError{RunID: runID, Message: fmt.Sprintf("write %s: %v", MarkerFileName, err)}
	}

	body, err := os.ReadFile(programPath)
	if err != nil {
		return "", &ProgramHostError{RunID: runID, Message: fmt.Sprintf("read program %s: %v", programPath, err)}
	}

	hostPath := filepath.Join(runDir, HostFileName)
	source := GeneratePrelude(extensions) + string(body)
	if err := os.WriteFile(hostPath, []byte(source), 0o644); err != nil {
		return "", &ProgramHostError{RunID: runID, Message: fmt.Sprintf("write %s: %v", HostFileName, err)}
	}
	return hostPath, nil
}
