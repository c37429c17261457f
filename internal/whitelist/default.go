package whitelist

// DefaultTables contains the built-in allowlist.
var DefaultTables = Tables{
	ConstructKinds: []ConstructKind{
		ConstructDeclaration,
		ConstructConditional,
		ConstructLoop,
		ConstructReturn,
		ConstructThrow,
		ConstructAssignment,
		ConstructCall,
		ConstructAssertion,
		ConstructLintMarker,
		ConstructComment,
		ConstructBlock,
	},
	APIs: []string{
		// bounded math
		"Math.max",
		"Math.min",
		"Math.abs",
		"Math.floor",
		"Math.ceil",
		"Math.round",
		"Math.trunc",
		"Math.sign",
		"Math.sqrt",
		"Math.clamp",

		// introspection and serialization
		"Array.isArray",
		"Array.from",
		"Array.of",
		"Object.keys",
		"Object.values",
		"Object.entries",
		"Object.freeze",
		"Object.isFrozen",
		"JSON.stringify",
		"JSON.parse",
		"Number.isFinite",
		"Number.isInteger",
		"Number.isNaN",
		"Number",
		"String",
		"Boolean",
		"parseInt",
		"parseFloat",
		"isNaN",
		"Map",
		"Set",
		"Error",
		"TypeError",
		"RangeError",

		// logging
		"console.log",
		"console.warn",
		"console.error",
		"console.info",
		"console.debug",

		// test assertions
		"expect",
		"assert",
		"assert.*",
		"describe",
		"it",
		"test",

		// collection and string methods
		".map",
		".filter",
		".reduce",
		".forEach",
		".find",
		".findIndex",
		".some",
		".every",
		".includes",
		".indexOf",
		".slice",
		".concat",
		".join",
		".push",
		".pop",
		".shift",
		".sort",
		".reverse",
		".flat",
		".length",
		".trim",
		".trimStart",
		".trimEnd",
		".split",
		".startsWith",
		".endsWith",
		".toLowerCase",
		".toUpperCase",
		".padStart",
		".padEnd",
		".replace",
		".toFixed",
		".toString",
		".get",
		".has",
		".set",
		".delete",
		".clear",
		".toBe",
		".toEqual",
		".toBeTruthy",
		".toBeFalsy",
		".toThrow",
	},
	Contextual: map[string][]string{
		"memory-leak": {
			"addEventListener",
			"removeEventListener",
			"setInterval",
			"clearInterval",
			"setTimeout",
			"clearTimeout",
			"WeakMap",
			"WeakRef",
			"WeakSet",
			".deref",
		},
		"api-integration": {
			"fetch",
			"AbortController",
			".abort",
			".json",
			".then",
			".catch",
		},
		"xss": {
			"textContent",
			"DOMPurify.sanitize",
			"encodeURIComponent",
			"document.createTextNode",
			".appendChild",
		},
		"race-condition": {
			"Promise.all",
			"Promise.allSettled",
			"Mutex.lock",
			".acquire",
			".release",
			".then",
		},
		"prompt-injection": {
			"sanitizePrompt",
			"escapeForPrompt",
		},
		"data-leak": {
			"redact",
			"mask",
		},
	},
}
