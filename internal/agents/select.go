package agents

import "strings"

// Keyword routing runs before any model call so that explicit mentions of a
// specialty override whichever agent the user was last talking to. Variable
// phrases are checked before catalog phrases because requests like "add
// variables to a catalog item" mention both.
var (
	vmPhrases = []string{
		"virtual machine", "virtual machines", "azure vm",
		"create a vm", "start the vm", "stop the vm", "delete the vm",
	}
	vmWords = []string{"vm", "vms", "deallocate"}

	variablePhrases = []string{
		"add variable", "add variables", "catalog variable", "catalog variables",
		"form field", "form fields", "add a question", "add questions",
	}

	catalogPhrases = []string{
		"create a catalog", "new catalog item", "create catalog item",
		"new service catalog", "build a catalog", "catalog creation",
	}
	catalogWords = []string{"catalog", "catalogue"}
)

// Select picks the agent that should handle the message. Keyword hits win;
// otherwise the user's active agent stays sticky, and unknown or empty
// active names fall back to the default.
func (r *Registry) Select(active, text string) string {
	lowered := strings.ToLower(text)

	if matches(lowered, vmPhrases, vmWords) && r.Has(AzureVMAgent) {
		return AzureVMAgent
	}
	if matches(lowered, variablePhrases, nil) && r.Has(VariablesAgent) {
		return VariablesAgent
	}
	if matches(lowered, catalogPhrases, catalogWords) && r.Has(CatalogCreationAgent) {
		return CatalogCreationAgent
	}
	if active != "" && r.Has(active) {
		return active
	}
	return r.defaultName
}

func matches(lowered string, phrases, words []string) bool {
	for _, p := range phrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	if len(words) == 0 {
		return false
	}
	for _, field := range strings.Fields(lowered) {
		token := strings.Trim(field, ".,!?;:()\"'")
		for _, w := range words {
			if token == w {
				return true
			}
		}
	}
	return false
}
