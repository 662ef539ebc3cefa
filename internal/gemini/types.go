package gemini

import "encoding/json"

// generateContentRequest is the request body for the generateContent endpoint.
type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
	Tools            []tool            `json:"tools,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64         `json:"temperature"`
	TopP             float64         `json:"topP"`
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	MaxOutputTokens  int             `json:"maxOutputTokens,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

// tool enables server-side grounding tools. An empty googleSearch object
// switches on web search for the request.
type tool struct {
	GoogleSearch *googleSearch `json:"googleSearch,omitempty"`
}

type googleSearch struct{}

// generateContentResponse is the response body from the generateContent endpoint.
type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content content `json:"content"`
}

// apiErrorResponse wraps the error payload returned on non-2xx statuses.
type apiErrorResponse struct {
	Error apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// topicsPayload is the structured output for topic generation.
type topicsPayload struct {
	TopicLabel []string `json:"topic_label"`
}

// assignmentsPayload is the structured output for topic assignment.
type assignmentsPayload struct {
	Assignments []TopicAssignment `json:"assignments"`
}

// TopicAssignment maps one paper to the topic labels it was assigned.
type TopicAssignment struct {
	PaperID string   `json:"paper_id"`
	Topics  []string `json:"topics"`
}
