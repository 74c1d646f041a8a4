package providers

import "strings"

// ProviderRef names one provider entry from config, optionally pinned to a
// key alias ("openai:primary" uses the key registered under "primary").
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

// ParseProviderList parses a "|"-separated provider list such as
// "openai:primary|ollama|mock". Blank entries are skipped; an empty list
// falls back to the mock provider so a bare config still boots.
func ParseProviderList(raw string) []ProviderRef {
	var out []ProviderRef
	for _, entry := range strings.Split(raw, "|") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, alias, _ := strings.Cut(entry, ":")
		out = append(out, ProviderRef{
			Raw:      entry,
			Name:     strings.TrimSpace(name),
			KeyAlias: strings.TrimSpace(alias),
		})
	}
	if len(out) == 0 {
		return []ProviderRef{{Raw: "mock", Name: "mock"}}
	}
	return out
}
