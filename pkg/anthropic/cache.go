package anthropic

// BuildCachedSystemBlocks wraps a system prompt in a single block with a
// one-hour cache breakpoint, so every chunk of a document reuses it.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: "1h"}}}
}
