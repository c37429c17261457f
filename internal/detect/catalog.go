package detect

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/patchguard/internal/model"
	"gopkg.in/yaml.v3"
)

// Rule is one core catalog entry. Critical rules always report Critical;
// the rest report High.
type Rule struct {
	Name        string              `yaml:"name"`
	Type        model.ViolationType `yaml:"type"`
	Pattern     string              `yaml:"pattern"`
	Critical    bool                `yaml:"critical,omitempty"`
	API         string              `yaml:"api,omitempty"` // name checked against contextual allowances
	Description string              `yaml:"description"`
}

// ContextRule is a scenario-keyed pattern reported at Medium severity.
type ContextRule struct {
	Scenario    string              `yaml:"scenario"`
	Type        model.ViolationType `yaml:"type"`
	Pattern     string              `yaml:"pattern"`
	Description string              `yaml:"description"`
}

// Tables holds the raw detection tables.
type Tables struct {
	Core               []Rule        `yaml:"core"`
	Contextual         []ContextRule `yaml:"contextual"`
	SensitiveReceivers []string      `yaml:"sensitive_receivers"`
}

// LoadTables reads a YAML overlay and appends it to DefaultTables.
// Falls back to defaults if the file doesn't exist.
func LoadTables(path string) (Tables, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultTables, nil
		}
		path = filepath.Join(home, ".patchguard", "patterns.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultTables, nil
		}
		return Tables{}, fmt.Errorf("read patterns: %w", err)
	}

	var overlay Tables
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Tables{}, fmt.Errorf("parse patterns %s: %w", path, err)
	}

	return Tables{
		Core:               append(append([]Rule{}, DefaultTables.Core...), overlay.Core...),
		Contextual:         append(append([]ContextRule{}, DefaultTables.Contextual...), overlay.Contextual...),
		SensitiveReceivers: append(append([]string{}, DefaultTables.SensitiveReceivers...), overlay.SensitiveReceivers...),
	}, nil
}

// DefaultTables is the built-in catalog, in reporting order.
var DefaultTables = Tables{
	Core: []Rule{
		{
			Name:        "dynamic-evaluation",
			Type:        model.ViolationUnsafeEval,
			Pattern:     `\beval\s*\(`,
			Critical:    true,
			Description: "dynamic code evaluation via eval()",
		},
		{
			Name:        "dynamic-function-construction",
			Type:        model.ViolationCodeInjection,
			Pattern:     `\bFunction\s*\(`,
			Critical:    true,
			Description: "function constructed from a string",
		},
		{
			Name:        "string-timer",
			Type:        model.ViolationUnsafeEval,
			Pattern:     "\\bset(?:Timeout|Interval)\\s*\\(\\s*['\"`]",
			Description: "timer scheduled with a code string",
		},
		{
			Name:        "markup-sink",
			Type:        model.ViolationXSS,
			Pattern:     `\.(?:innerHTML|outerHTML)\s*\+?=|\bdocument\.write(?:ln)?\s*\(|\.insertAdjacentHTML\s*\(|\bdangerouslySetInnerHTML\b`,
			Description: "unescaped data written to an HTML sink",
		},
		{
			Name:        "prototype-mutation",
			Type:        model.ViolationPrototypePollution,
			Pattern:     `__proto__|\bObject\.setPrototypeOf\s*\(|\.prototype\s*\[|\.prototype\.\w+\s*=[^=]`,
			Critical:    true,
			Description: "object prototype mutated",
		},
		{
			Name:        "dynamic-module-loading",
			Type:        model.ViolationCodeInjection,
			Pattern:     "\\b(?:require|import)\\s*\\(\\s*[^'\"`\\s)]",
			Description: "module loaded from a computed path",
		},
		{
			Name:        "process-control",
			Type:        model.ViolationProcessAccess,
			Pattern:     `\bchild_process\b|\bprocess\.(?:exit|kill|binding|abort)\b|\b(?:exec|execSync|spawn|spawnSync|execFile)\s*\(`,
			Description: "process spawned or controlled",
		},
		{
			Name:        "environment-access",
			Type:        model.ViolationProcessAccess,
			Pattern:     `\bprocess\.env\b`,
			Critical:    true,
			Description: "process environment read",
		},
		{
			Name:        "global-access",
			Type:        model.ViolationGlobalAccess,
			Pattern:     `\bglobalThis\b|\bwindow\s*\[|\bglobal\.`,
			Description: "global object accessed directly",
		},
		{
			Name:        "filesystem-access",
			Type:        model.ViolationFilesystemAccess,
			Pattern:     `\bfs\.\w+|\b(?:readFileSync|writeFileSync|readFile|writeFile|unlinkSync|rmSync)\s*\(`,
			Description: "filesystem read or write",
		},
		{
			Name:        "network-fetch",
			Type:        model.ViolationNetworkAccess,
			Pattern:     `\bfetch\s*\(`,
			API:         "fetch",
			Description: "unauthenticated network request via fetch()",
		},
		{
			Name:        "network-client",
			Type:        model.ViolationNetworkAccess,
			Pattern:     `\bXMLHttpRequest\b|\bnew\s+WebSocket\s*\(|\baxios\b\s*[.(]`,
			Description: "raw network client used",
		},
		{
			Name:        "catastrophic-backtracking",
			Type:        model.ViolationUnsafeRegex,
			Pattern:     `\([^()]*[+*]\)[+*{]|\bnew\s+RegExp\s*\(\s*[^'"/\s)]`,
			Description: "regular expression prone to catastrophic backtracking",
		},
		{
			Name:        "unsafe-buffer",
			Type:        model.ViolationBufferOverflow,
			Pattern:     `\bBuffer\.allocUnsafe(?:Slow)?\s*\(|\bnew\s+Buffer\s*\(`,
			Description: "uninitialized buffer allocated",
		},
		{
			Name:        "interval-timer",
			Type:        model.ViolationMemoryLeak,
			Pattern:     `\bsetInterval\s*\(`,
			API:         "setInterval",
			Description: "interval timer registered without visible teardown",
		},
		{
			Name:        "event-listener",
			Type:        model.ViolationMemoryLeak,
			Pattern:     `\baddEventListener\s*\(`,
			API:         "addEventListener",
			Description: "event listener registered without visible teardown",
		},
		{
			Name:        "busy-wait",
			Type:        model.ViolationInfiniteLoop,
			Pattern:     `\bwhile\s*\(\s*(?:true|1)\s*\)|\bfor\s*\(\s*;\s*;\s*\)`,
			Description: "loop with no exit condition",
		},
	},
	Contextual: []ContextRule{
		{
			Scenario:    "prompt-injection",
			Type:        model.ViolationPromptInjection,
			Pattern:     `(?i)\w*(?:prompt|instruction)\w*.*\+\s*\w*(?:input|user|query|message|req)\w*`,
			Description: "untrusted input concatenated into prompt text",
		},
		{
			Scenario:    "prompt-injection",
			Type:        model.ViolationPromptInjection,
			Pattern:     `(?i)\w*(?:prompt|instruction)\w*.*\$\{\s*\w*(?:input|user|query|message|req)`,
			Description: "untrusted input interpolated into prompt text",
		},
		{
			Scenario:    "data-leak",
			Type:        model.ViolationDataLeak,
			Pattern:     `(?i)\b(?:console\.\w+|logger\.\w+|log\w*|print\w*|emit|send|res\.(?:json|send))\s*\(.*\b(?:password|passwd|secret|token|api[_-]?key|apikey|credential)`,
			Description: "credential-like value logged or emitted",
		},
		{
			Scenario:    "auth-bypass",
			Type:        model.ViolationAuthBypass,
			Pattern:     `(?i)\bis_?admin\s*=\s*true\b|\b(?:skip|bypass|disable)_?auth\w*\s*=\s*true\b`,
			Description: "authorization flag hard-coded",
		},
		{
			Scenario:    "auth-bypass",
			Type:        model.ViolationAuthBypass,
			Pattern:     `(?i)\brole\s*[!=]==?\s*['"](?:admin|root|superuser|owner)['"]`,
			Description: "role compared against a string literal",
		},
		{
			Scenario:    "memory-leak",
			Type:        model.ViolationUnboundedGrowth,
			Pattern:     `(?i)\b\w*(?:cache|store|registry|listeners|history|buffer)\w*\s*(?:\[[^\]]*\]\s*=[^=]|\.push\s*\(|\.set\s*\()`,
			Description: "module-level collection grows without a bound",
		},
	},
	SensitiveReceivers: []string{
		"localStorage",
		"sessionStorage",
		"document.cookie",
		"indexedDB",
		"navigator",
	},
}
