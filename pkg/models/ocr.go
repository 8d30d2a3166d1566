package models

// OCRResponse is the JSON body of a text-format OCR request.
type OCRResponse struct {
	Text             string `json:"text"`                        // Recognized text, possibly empty
	DetectedLanguage string `json:"detected_language,omitempty"` // Engine language code, auto mode only
	LanguageName     string `json:"language_name,omitempty"`     // Display name of DetectedLanguage
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is the JSON body of the liveness endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse is the JSON body of /api/health.
type HealthResponse struct {
	Status string `json:"status"`
}

// LanguageInfo describes one supported language.
type LanguageInfo struct {
	Code      string `json:"code"`      // Engine language code, e.g. "chi_sim"
	Name      string `json:"name"`      // Name in the language itself
	Installed bool   `json:"installed"` // Whether the engine can load it
}

// ConfigResponse is the JSON body of /api/config.
type ConfigResponse struct {
	Engine             string         `json:"engine"`    // Backend name
	Available          bool           `json:"available"` // Whether the engine could be queried
	Version            string         `json:"version,omitempty"`
	Languages          []LanguageInfo `json:"languages"`
	InstalledLanguages []string       `json:"installed_languages"` // In the engine's own vocabulary
	LoadedLanguages    []string       `json:"loaded_languages"`    // Engine instances currently in memory
	PrimaryLanguage    string         `json:"primary_language"`
	AlternateLanguage  string         `json:"alternate_language"`
	MaxUploadBytes     int64          `json:"max_upload_bytes"`
	MaxImagePixels     int64          `json:"max_image_pixels"`
	AllowedExtensions  []string       `json:"allowed_extensions"`
	OutputFormats      []string       `json:"output_formats"`
}
