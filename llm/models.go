package llm

import "github.com/fabfab/codemind/config"

// ModelDefinition maps a user-facing model id to the provider model name.
type ModelDefinition struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// Catalog is the ordered list of selectable models. The first entry is the default.
type Catalog []ModelDefinition

var geminiModels = Catalog{
	{ID: "gemini-flash-lite", Name: "2.5 Flash Lite", Model: "gemini-flash-lite-latest"},
	{ID: "gemini-flash", Name: "2.5 Flash", Model: "gemini-2.5-flash"},
	{ID: "gemini-pro", Name: "2.5 Pro", Model: "gemini-2.5-pro"},
}

// NewCatalog returns the Gemini model family for the Gemini provider and a
// single configured model otherwise.
func NewCatalog(cfg config.Config) Catalog {
	if cfg.LLM.Provider == config.ProviderGemini {
		catalog := make(Catalog, len(geminiModels))
		copy(catalog, geminiModels)
		return catalog
	}
	return Catalog{{ID: "default", Name: cfg.LLM.Model, Model: cfg.LLM.Model}}
}

func (c Catalog) Default() ModelDefinition {
	if len(c) == 0 {
		return ModelDefinition{}
	}
	return c[0]
}

// Resolve returns the definition for id, falling back to the default.
func (c Catalog) Resolve(id string) ModelDefinition {
	for _, def := range c {
		if def.ID == id {
			return def
		}
	}
	return c.Default()
}

func (c Catalog) Has(id string) bool {
	for _, def := range c {
		if def.ID == id {
			return true
		}
	}
	return false
}
