// Package edu maps violation types to explanations, fixes and teaching
// material.
package edu

import (
	"fmt"

	"github.com/ppiankov/patchguard/internal/model"
)

type entry struct {
	title       string
	explanation string
	fix         string
	reference   string
	examples    []model.CodeExample
	practices   []string
	mistakes    []string
	reading     []string
}

// Library holds the educational entry for every violation type. Built once,
// read-only afterward.
type Library struct {
	entries map[model.ViolationType]entry
}

// NewLibrary builds the library for every known violation type.
func NewLibrary() *Library {
	l := &Library{entries: make(map[model.ViolationType]entry, len(model.AllViolationTypes))}
	for _, t := range model.AllViolationTypes {
		l.entries[t] = lookup(t)
	}
	return l
}

// Explain returns the explanation, suggested fix and reference for t.
// Unknown types get generic text naming the type.
func (l *Library) Explain(t model.ViolationType) (explanation, fix, reference string) {
	e := l.get(t)
	return e.explanation, e.fix, e.reference
}

// Title returns the human-readable heading for t.
func (l *Library) Title(t model.ViolationType) string {
	return l.get(t).title
}

// Content returns the full educational content for t.
func (l *Library) Content(t model.ViolationType) model.EducationalContent {
	e := l.get(t)
	return model.EducationalContent{
		Type:           t,
		Title:          e.title,
		Explanation:    e.explanation,
		Examples:       append([]model.CodeExample(nil), e.examples...),
		BestPractices:  append([]string{}, e.practices...),
		CommonMistakes: append([]string{}, e.mistakes...),
		FurtherReading: append([]string{}, e.reading...),
	}
}

// Generate returns one content entry per distinct violation type, in
// first-seen order. Outside educational mode, types whose most severe
// finding is Low are left out.
func (l *Library) Generate(violations []model.SecurityViolation, educationalMode bool) []model.EducationalContent {
	top := make(map[model.ViolationType]model.Severity)
	var order []model.ViolationType
	for _, v := range violations {
		cur, seen := top[v.Type]
		if !seen {
			order = append(order, v.Type)
		}
		if !seen || model.SeverityRank[v.Severity] > model.SeverityRank[cur] {
			top[v.Type] = v.Severity
		}
	}

	out := make([]model.EducationalContent, 0, len(order))
	for _, t := range order {
		if !educationalMode && top[t] == model.SeverityLow {
			continue
		}
		out = append(out, l.Content(t))
	}
	return out
}

func (l *Library) get(t model.ViolationType) entry {
	if e, ok := l.entries[t]; ok {
		return e
	}
	return lookup(t)
}

// lookup is exhaustive over model.AllViolationTypes; the default branch only
// serves types added without a matching case.
func lookup(t model.ViolationType) entry {
	switch t {
	case model.ViolationCodeInjection:
		return entry{
			title:       "Code injection",
			explanation: "Loading or executing code whose identity comes from runtime data lets an attacker choose what runs.",
			fix:         "Import modules by literal path and dispatch through a fixed map of known handlers.",
			reference:   "CWE-94",
			examples: []model.CodeExample{{
				Unsafe:      "const mod = require(userChoice);",
				Safe:        "const handlers = { csv: parseCsv, json: parseJson };\nconst handler = handlers[userChoice];",
				Explanation: "A lookup table limits execution to code you wrote.",
			}},
			practices: []string{"Keep module paths static", "Validate selectors against an explicit allowlist"},
			mistakes:  []string{"Building a require/import path from request data", "Trusting a file extension as a type check"},
			reading:   []string{"https://owasp.org/www-community/attacks/Code_Injection"},
		}
	case model.ViolationUnsafeEval:
		return entry{
			title:       "Dynamic code evaluation",
			explanation: "eval and friends run arbitrary text as code with the caller's privileges, so any attacker-influenced input becomes executable.",
			fix:         "Parse data with JSON.parse and map actions through explicit functions instead of evaluating strings.",
			reference:   "CWE-95",
			examples: []model.CodeExample{
				{
					Unsafe:      "const config = eval(userInput);",
					Safe:        "const config = JSON.parse(userInput);",
					Explanation: "JSON.parse only produces data, never behavior.",
				},
				{
					Unsafe:      "const fn = new Function('a', 'b', body);",
					Safe:        "const ops = { add: (a, b) => a + b };\nconst fn = ops[name];",
					Explanation: "Select behavior from functions that already exist.",
				},
			},
			practices: []string{"Treat any string that reaches an evaluator as executable", "Enable a Content-Security-Policy without unsafe-eval"},
			mistakes:  []string{"Using eval to parse JSON", "Passing strings to setTimeout or setInterval"},
			reading:   []string{"https://developer.mozilla.org/en-US/docs/Web/JavaScript/Reference/Global_Objects/eval#never_use_eval!"},
		}
	case model.ViolationXSS:
		return entry{
			title:       "Cross-site scripting",
			explanation: "Writing untrusted text into an HTML sink lets the browser parse it as markup and script.",
			fix:         "Assign to textContent, or sanitize with DOMPurify.sanitize before using an HTML sink.",
			reference:   "CWE-79",
			examples: []model.CodeExample{{
				Unsafe:      "el.innerHTML = userInput;",
				Safe:        "el.textContent = userInput;",
				Explanation: "textContent never parses markup.",
			}},
			practices: []string{"Prefer text sinks over HTML sinks", "Sanitize at the point of insertion, not at input"},
			mistakes:  []string{"Escaping only angle brackets", "Trusting data that came from your own database"},
			reading:   []string{"https://cheatsheetseries.owasp.org/cheatsheets/Cross_Site_Scripting_Prevention_Cheat_Sheet.html"},
		}
	case model.ViolationPrototypePollution:
		return entry{
			title:       "Prototype pollution",
			explanation: "Mutating an object's prototype changes the behavior of every object that inherits from it, including security checks elsewhere.",
			fix:         "Use Object.create(null) or a Map for keyed data and reject __proto__, constructor and prototype keys.",
			reference:   "CWE-1321",
			examples: []model.CodeExample{{
				Unsafe:      "target[key] = value; // key may be \"__proto__\"",
				Safe:        "if (key === '__proto__' || key === 'constructor') throw new Error('bad key');\nstore.set(key, value);",
				Explanation: "A Map has no prototype chain to poison.",
			}},
			practices: []string{"Freeze shared prototypes", "Validate object keys from untrusted sources"},
			mistakes:  []string{"Deep-merging request bodies into config objects"},
			reading:   []string{"https://portswigger.net/web-security/prototype-pollution"},
		}
	case model.ViolationDangerousAPI:
		return entry{
			title:       "Sensitive API use",
			explanation: "Browser storage, cookies and device APIs hold user data that outlives the current operation.",
			fix:         "Route persistence through a reviewed storage helper and keep secrets out of client-side storage.",
			reference:   "CWE-922",
			practices:   []string{"Store only what the feature needs", "Prefer HttpOnly cookies for session data"},
			mistakes:    []string{"Keeping tokens in localStorage"},
			reading:     []string{"https://cheatsheetseries.owasp.org/cheatsheets/HTML5_Security_Cheat_Sheet.html#local-storage"},
		}
	case model.ViolationFilesystemAccess:
		return entry{
			title:       "Filesystem access",
			explanation: "Reading or writing files from patch code can expose secrets or corrupt state outside the change's scope.",
			fix:         "Pass required data in as arguments and keep file I/O in a dedicated, reviewed module.",
			reference:   "CWE-73",
			examples: []model.CodeExample{{
				Unsafe:      "const cfg = fs.readFileSync(path);",
				Safe:        "function apply(cfg) { /* cfg passed in by caller */ }",
				Explanation: "The caller owns I/O; the patch stays pure.",
			}},
			practices: []string{"Keep patches free of side effects"},
			mistakes:  []string{"Joining user input into file paths"},
			reading:   []string{"https://owasp.org/www-community/attacks/Path_Traversal"},
		}
	case model.ViolationNetworkAccess:
		return entry{
			title:       "Network access",
			explanation: "Outbound requests can exfiltrate data or depend on servers the change does not control.",
			fix:         "Call a reviewed API client with authentication and timeouts instead of issuing raw requests.",
			reference:   "CWE-918",
			examples: []model.CodeExample{{
				Unsafe:      "fetch(url + '?data=' + secret);",
				Safe:        "await apiClient.report(summary, { signal: controller.signal });",
				Explanation: "A client wrapper enforces auth, destination and timeout.",
			}},
			practices: []string{"Allowlist destinations", "Always set a timeout"},
			mistakes:  []string{"Sending user data to URLs built from input"},
			reading:   []string{"https://owasp.org/Top10/A10_2021-Server-Side_Request_Forgery_%28SSRF%29/"},
		}
	case model.ViolationProcessAccess:
		return entry{
			title:       "Process and environment access",
			explanation: "Spawning processes or reading process state hands the patch the host's full authority and its secrets.",
			fix:         "Read configuration once at startup and inject the values the code needs; never shell out from patch code.",
			reference:   "CWE-78",
			examples: []model.CodeExample{{
				Unsafe:      "const key = process.env.API_KEY;",
				Safe:        "function handler(config) { const key = config.apiKey; }",
				Explanation: "Injected configuration is explicit and reviewable.",
			}},
			practices: []string{"Inject configuration", "Avoid child_process in application code"},
			mistakes:  []string{"Logging process.env for debugging", "Building shell commands from input"},
			reading:   []string{"https://cheatsheetseries.owasp.org/cheatsheets/OS_Command_Injection_Defense_Cheat_Sheet.html"},
		}
	case model.ViolationGlobalAccess:
		return entry{
			title:       "Global object access",
			explanation: "Reaching through globalThis or window by computed key bypasses module boundaries and can resolve to dangerous built-ins.",
			fix:         "Import what you need explicitly and keep state in module scope.",
			reference:   "CWE-471",
			practices:   []string{"Avoid computed global lookups"},
			mistakes:    []string{"window[name]() as a dispatch mechanism"},
			reading:     []string{"https://developer.mozilla.org/en-US/docs/Web/JavaScript/Reference/Global_Objects/globalThis"},
		}
	case model.ViolationUnsafeRegex:
		return entry{
			title:       "Catastrophic backtracking",
			explanation: "Nested quantifiers or regexes compiled from input can take exponential time on crafted strings.",
			fix:         "Use linear patterns without nested quantifiers, bound input length, and never compile input into a RegExp.",
			reference:   "CWE-1333",
			examples: []model.CodeExample{{
				Unsafe:      "/^(a+)+$/.test(input);",
				Safe:        "/^a+$/.test(input.slice(0, 256));",
				Explanation: "One quantifier, bounded input.",
			}},
			practices: []string{"Bound input before matching"},
			mistakes:  []string{"new RegExp(userInput)"},
			reading:   []string{"https://owasp.org/www-community/attacks/Regular_expression_Denial_of_Service_-_ReDoS"},
		}
	case model.ViolationBufferOverflow:
		return entry{
			title:       "Uninitialized buffers",
			explanation: "Buffer.allocUnsafe and the Buffer constructor return memory that may still hold other data.",
			fix:         "Use Buffer.alloc or Buffer.from, which zero-fill or copy.",
			reference:   "CWE-908",
			examples: []model.CodeExample{{
				Unsafe:      "const buf = Buffer.allocUnsafe(size);",
				Safe:        "const buf = Buffer.alloc(size);",
				Explanation: "alloc zero-fills the memory.",
			}},
			practices: []string{"Validate sizes from input"},
			mistakes:  []string{"new Buffer(number)"},
			reading:   []string{"https://nodejs.org/api/buffer.html#static-method-bufferallocunsafesize"},
		}
	case model.ViolationMemoryLeak:
		return entry{
			title:       "Listener and timer leaks",
			explanation: "Timers and listeners registered without teardown keep their closures alive for the life of the page or process.",
			fix:         "Pair every setInterval with clearInterval and every addEventListener with removeEventListener.",
			reference:   "CWE-401",
			examples: []model.CodeExample{{
				Unsafe:      "setInterval(poll, 1000);",
				Safe:        "const id = setInterval(poll, 1000);\nreturn () => clearInterval(id);",
				Explanation: "Returning a disposer makes cleanup explicit.",
			}},
			practices: []string{"Register teardown next to setup"},
			mistakes:  []string{"Adding listeners inside render loops"},
			reading:   []string{"https://developer.mozilla.org/en-US/docs/Web/JavaScript/Memory_management"},
		}
	case model.ViolationInfiniteLoop:
		return entry{
			title:       "Unbounded loops",
			explanation: "A loop with no reachable exit blocks the event loop and starves every other task.",
			fix:         "Give every loop an explicit bound or exit condition and prefer iteration over collections.",
			reference:   "CWE-835",
			examples: []model.CodeExample{{
				Unsafe:      "while (true) { if (ready) break; }",
				Safe:        "for (let i = 0; i < maxAttempts && !ready; i++) { await wait(); }",
				Explanation: "The bound makes termination obvious.",
			}},
			practices: []string{"Bound retries", "Yield inside long loops"},
			mistakes:  []string{"Busy-waiting on a flag"},
			reading:   []string{"https://cwe.mitre.org/data/definitions/835.html"},
		}
	case model.ViolationPromptInjection:
		return entry{
			title:       "Prompt injection",
			explanation: "Concatenating untrusted text into instructions lets that text rewrite the instructions.",
			fix:         "Keep instructions fixed and pass user text as clearly delimited data, escaped with sanitizePrompt.",
			reference:   "OWASP LLM01",
			examples: []model.CodeExample{{
				Unsafe:      "const prompt = 'Summarize: ' + userInput;",
				Safe:        "const prompt = { instructions: SUMMARIZE, data: sanitizePrompt(userInput) };",
				Explanation: "Instructions and data travel separately.",
			}},
			practices: []string{"Separate instruction and data channels"},
			mistakes:  []string{"Template strings that splice input into system text"},
			reading:   []string{"https://genai.owasp.org/llmrisk/llm01-prompt-injection/"},
		}
	case model.ViolationDataLeak:
		return entry{
			title:       "Credential leak",
			explanation: "Logging or emitting values that look like credentials copies secrets to places with weaker access control.",
			fix:         "Redact secrets before logging and log identifiers instead of values.",
			reference:   "CWE-532",
			examples: []model.CodeExample{{
				Unsafe:      "console.log('token', token);",
				Safe:        "console.log('token', redact(token));",
				Explanation: "Redaction keeps the log useful without the secret.",
			}},
			practices: []string{"Centralize redaction"},
			mistakes:  []string{"Dumping whole request objects"},
			reading:   []string{"https://cheatsheetseries.owasp.org/cheatsheets/Logging_Cheat_Sheet.html"},
		}
	case model.ViolationAuthBypass:
		return entry{
			title:       "Authorization bypass",
			explanation: "Hard-coded roles or flags short-circuit the checks that protect privileged actions.",
			fix:         "Derive roles from the verified session and check them through the shared authorization helper.",
			reference:   "CWE-285",
			examples: []model.CodeExample{{
				Unsafe:      "user.isAdmin = true;",
				Safe:        "if (!authz.can(session, 'admin')) throw new Error('forbidden');",
				Explanation: "Authority comes from the session, not the code path.",
			}},
			practices: []string{"Deny by default"},
			mistakes:  []string{"Comparing role strings inline"},
			reading:   []string{"https://owasp.org/Top10/A01_2021-Broken_Access_Control/"},
		}
	case model.ViolationUnboundedGrowth:
		return entry{
			title:       "Unbounded growth",
			explanation: "Module-level caches and arrays that only grow hold memory forever.",
			fix:         "Bound the collection with an eviction policy or hold entries in a WeakMap.",
			reference:   "CWE-770",
			examples: []model.CodeExample{{
				Unsafe:      "cache[key] = value;",
				Safe:        "const cache = new WeakMap();\ncache.set(obj, value);",
				Explanation: "WeakMap entries disappear with their keys.",
			}},
			practices: []string{"Give every cache a size limit"},
			mistakes:  []string{"Pushing to a global array per request"},
			reading:   []string{"https://developer.mozilla.org/en-US/docs/Web/JavaScript/Reference/Global_Objects/WeakMap"},
		}
	default:
		return entry{
			title:       fmt.Sprintf("Security finding: %s", t),
			explanation: fmt.Sprintf("The change matched the %q rule, which marks code that needs review before it runs.", t),
			fix:         "Rewrite the flagged line using whitelisted APIs only.",
			practices:   []string{"Prefer the smallest API surface that does the job"},
			mistakes:    []string{"Assuming input is trusted"},
			reading:     []string{"https://owasp.org/www-project-top-ten/"},
		}
	}
}
