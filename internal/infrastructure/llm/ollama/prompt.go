package ollama

func buildIntentPrompt(query string) string {
	const maxQuery = 2000
	snippet := query
	if len(snippet) > maxQuery {
		snippet = snippet[:maxQuery]
	}

	return `You are a search intent extractor for a software tool catalog.
Return strict JSON object with keys:
tool_names (array of strings), categories (array of strings), functionality (array of strings), interfaces (array of strings), user_types (array of strings), deployment (array of strings), has_price_constraint (boolean), max_price (number or null), free_only (boolean), is_comparative (boolean), confidence (number from 0 to 1).
Extract only what the query states. No markdown, no extra keys.

Query:
` + snippet
}
