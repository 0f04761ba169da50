package rewrite

import "fmt"

func rewritePrompt(paragraph string, currentLength, targetLength int, unit, mode string) string {
	if mode == ModeLengthen {
		return fmt.Sprintf(`You are an eloquent text editor. Your task is to expand the following paragraph.

The original length is %d %s. The target length is approximately %d %s.

Elaborate on the existing points with more descriptive detail, examples, or clarification. Do not introduce new topics or change the core meaning. Add depth and richness while maintaining the original tone and style.

Original Paragraph: "%s"

Return only the rewritten paragraph, no additional text or explanation.`, currentLength, unit, targetLength, unit, paragraph)
	}

	return fmt.Sprintf(`You are a precise text editor. Your task is to shorten the following paragraph.

The original length is %d %s. The target length is approximately %d %s.

Preserve the core meaning, tone, and key details. Do not add any new information or commentary. Focus on removing redundancy, simplifying complex sentences, and using more concise language.

Original Paragraph: "%s"

Return only the rewritten paragraph, no additional text or explanation.`, currentLength, unit, targetLength, unit, paragraph)
}

func retryPrompt(original, previous string, currentLength, targetLength int, unit, mode string) string {
	action := "shorten"
	if mode == ModeLengthen {
		action = "expand"
	}

	return fmt.Sprintf(`You are a skilled text editor. Rewrite the following paragraph to %s it to approximately %d %s.

The original length is %d %s. Provide a new version that is substantially different from the previous suggestion while maintaining the same core meaning and tone.

Original Paragraph: "%s"

Previous Suggestion (avoid this approach): "%s"

Create a fresh rewrite that takes a different stylistic or structural approach. Return only the rewritten paragraph, no additional text or explanation.`, action, targetLength, unit, currentLength, unit, original, previous)
}
