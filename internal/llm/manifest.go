package llm

// ProviderManifest describes one configured provider entry: its
// endpoint template, compat module name, retry words, and the manifest's
// sdk flag (SDK). Caller does not read SDK: it takes the SDK path
// whenever the Compat implements SDKCompat. Owned by internal/llm (not
// internal/registry) so internal/llm can use it while internal/registry,
// which imports internal/llm, produces it, without an import cycle.
type ProviderManifest struct {
	ID                   string
	CompatName           string
	SDK                  bool
	EndpointURLTemplate  string
	StreamingURLTemplate string
	StreamingHeaders     map[string]string
	Headers              map[string]string
	Method               string
	RetryWords           []string
	PayloadExtensions    []PayloadExtension
	Models               []string
}
