package ollama

func buildIntentPrompt(question string) string {
	const maxSnippet = 2000
	snippet := question
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}

	return `You classify questions asked to a document search assistant.
Return strict JSON object with keys:
query_type (one of "factual", "exploratory", "specific_file_lookup"),
complexity ("simple" or "complex"), entities (array of strings),
confidence (number from 0 to 1).
No markdown, no extra keys.

Question:
` + snippet
}
