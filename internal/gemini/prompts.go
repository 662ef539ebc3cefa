package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Robs-Git-Hub/citation-compass-discover/internal/domain"
)

// buildAbstractPrompt asks the model to locate a paper's landing page through
// web search and return the verbatim abstract, or the not-found sentinel.
func buildAbstractPrompt(doiURL, title string) string {
	escapedTitle := strings.ReplaceAll(title, `"`, `\"`)

	return fmt.Sprintf(`Conduct a google search for \"url:%s\" and visit the first result. `+
		`If it is a page of the paper '%s'. Read the whole page and identify the abstract `+
		`section if there is one. Output only the full verbatim abstract text with no `+
		`introduction or ending message. If the page is not about '%s' try the other `+
		`results to find the paper's homepage. If you do not find it or you find it and `+
		`there is no abstract on the webpage then output \"Abstract not found\".`,
		doiURL, escapedTitle, escapedTitle)
}

// buildTopicsPrompt asks for at most maxTopics short labels covering the
// given papers.
func buildTopicsPrompt(papers []domain.Paper, maxTopics int) string {
	blocks := make([]string, 0, len(papers))
	for _, p := range papers {
		abstract := "N/A"
		if p.HasAbstract() {
			abstract = *p.Abstract
		}
		blocks = append(blocks, fmt.Sprintf("Title: %s\nAbstract: %s", p.DisplayTitle(), abstract))
	}

	return fmt.Sprintf(`You are an expert research assistant. Your task is to analyze the following list of academic paper titles and abstracts.
Identify a maximum of %d key, high-level research topics from the text provided.
The topics should be concise, ideally 2-4 words long (e.g., "Reinforcement Learning", "Protein Folding", "Roman History").
Do not explain your reasoning. Respond ONLY with the JSON object as specified in the schema.

Here is the list of papers:
---
%s`, maxTopics, strings.Join(blocks, "\n\n---\n\n"))
}

// buildAssignmentsPrompt asks for per-paper labels drawn only from topics.
func buildAssignmentsPrompt(papers []domain.Paper, topics []string) (string, error) {
	type paperRef struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	refs := make([]paperRef, 0, len(papers))
	for _, p := range papers {
		refs = append(refs, paperRef{ID: p.PaperID, Title: p.DisplayTitle()})
	}

	papersJSON, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("gemini: encode papers for prompt: %w", err)
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return "", fmt.Errorf("gemini: encode topics for prompt: %w", err)
	}

	return fmt.Sprintf(`You are a precise data categorizer. Your task is to assign topics to academic papers.
You will be given a list of papers and a predefined list of topics.
For each paper, you must assign one or more topics from the provided list.
If a paper does not fit any of the topics well, assign it an empty array for its topics: [].
Do not use any topics that are not in the provided list.
Respond ONLY with the JSON object as specified in the schema.

Here is the list of topics you MUST use:
%s

Here is the list of papers to categorize:
%s`, topicsJSON, papersJSON), nil
}

// topicsSchema constrains topic generation output to {"topic_label": [...]}.
var topicsSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"topic_label": {
			"type": "array",
			"items": {"type": "string"}
		}
	},
	"required": ["topic_label"]
}`)

// assignmentsSchema constrains assignment output to a list of
// {paper_id, topics} objects.
var assignmentsSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"assignments": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"paper_id": {"type": "string"},
					"topics": {
						"type": "array",
						"items": {"type": "string"}
					}
				},
				"required": ["paper_id", "topics"]
			}
		}
	},
	"required": ["assignments"]
}`)
