package ai

import (
	"fmt"
	"strings"

	"github.com/flockhq/flock/internal/config"
)

// Stack holds the wired generation chain and embedder for the whole process.
type Stack struct {
	Generator IGenerator
	Embedder  IEmbedder
}

// BuildStack instantiates every configured provider once and binds the chat
// and embed model chains onto them. Chat entries form a fallback group; the
// embed chain uses only its first entry because mixing embedding models would
// produce incompatible vector spaces.
func BuildStack(cfg config.AIConfig) (*Stack, error) {
	providers := make(map[string]IProvider, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		name := strings.ToLower(strings.TrimSpace(pc.Name))
		if name == "" {
			return nil, fmt.Errorf("ai provider name is required")
		}
		if _, ok := providers[name]; ok {
			return nil, fmt.Errorf("duplicate ai provider: %s", name)
		}
		typ := pc.Type
		if typ == "" {
			typ = name
		}
		provider, err := NewProvider(typ, pc.Args)
		if err != nil {
			return nil, fmt.Errorf("build ai provider %s: %w", name, err)
		}
		providers[name] = provider
	}
	entries := make([]GeneratorEntry, 0, len(cfg.Chat))
	for _, ref := range cfg.Chat {
		provider, ok := providers[strings.ToLower(ref.Provider)]
		if !ok {
			return nil, fmt.Errorf("chat chain references unknown provider: %s", ref.Provider)
		}
		entries = append(entries, GeneratorEntry{
			Name:      ref.Provider + "/" + ref.Model,
			Generator: NewGenerator(provider, ref.Model),
		})
	}
	stack := &Stack{Generator: NewGroupGenerator(entries)}
	if len(cfg.Embed) > 0 {
		ref := cfg.Embed[0]
		provider, ok := providers[strings.ToLower(ref.Provider)]
		if !ok {
			return nil, fmt.Errorf("embed chain references unknown provider: %s", ref.Provider)
		}
		stack.Embedder = NewEmbedder(provider, ref.Model)
	}
	return stack, nil
}

// StripJSONFence removes a markdown code fence around a model's JSON output
// and trims to the outermost object or array.
func StripJSONFence(output string) string {
	clean := strings.TrimSpace(output)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	objStart := strings.Index(clean, "{")
	objEnd := strings.LastIndex(clean, "}")
	arrStart := strings.Index(clean, "[")
	arrEnd := strings.LastIndex(clean, "]")
	if objStart >= 0 && objEnd > objStart && (arrStart < 0 || objStart < arrStart) {
		return clean[objStart : objEnd+1]
	}
	if arrStart >= 0 && arrEnd > arrStart {
		return clean[arrStart : arrEnd+1]
	}
	return clean
}
