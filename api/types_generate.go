// types_generate.go - Anfrage und Antwort von POST /generate
package api

// Standardwerte fuer GenerateRequest
const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
)

// GenerateRequest ist der Body von POST /generate
type GenerateRequest struct {
	Prompt string `json:"prompt" binding:"required"`

	// MaxTokens begrenzt die Laenge der Antwort (Default 1000)
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature ist optional; nil bedeutet DefaultTemperature
	Temperature *float64 `json:"temperature,omitempty"`
}

// Options gibt MaxTokens und Temperature mit eingesetzten Defaults zurueck
func (r GenerateRequest) Options() (maxTokens int, temperature float64) {
	maxTokens, temperature = r.MaxTokens, DefaultTemperature
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if r.Temperature != nil {
		temperature = *r.Temperature
	}
	return maxTokens, temperature
}

// GenerateResponse ist die Antwort von POST /generate
type GenerateResponse struct {
	Response string `json:"response"`
}
