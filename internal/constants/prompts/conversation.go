package prompts

var (
	DEFAULT_PROMPT = SYS_PROMPT{
		Intent:         "Identity",
		CurrentVersion: 0.1,
		Items: map[float32]PromptDefinition{
			0.1: {
				Version: 0.1,
				Content: `
				You are a listening assistant. You hear what is said around the
				user, and when asked, answer directly and concisely based on the
				transcribed conversation. Prefer short, useful answers over
				exhaustive ones.
				`,
			},
		},
	}

	DEFINITION_PROMPT = SYS_PROMPT{
		Intent:         "Definition",
		CurrentVersion: 0.1,
		Items: map[float32]PromptDefinition{
			0.1: {
				Version: 0.1,
				Content: `
				Define the given term in one or two concise sentences, in the
				language the term was asked in. No preamble.
				`,
			},
		},
	}
)
