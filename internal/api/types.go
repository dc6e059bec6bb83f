package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Result kinds reported in Session.ResultKind.
const (
	ResultNone      = ""
	ResultImage     = "image"
	ResultAnimation = "animation"
)

// Session describes a studio session in a transport-friendly format.
type Session struct {
	ID            string          `json:"id"`
	MediaType     string          `json:"mediaType"`
	SourceName    string          `json:"sourceName,omitempty"`
	SourceMime    string          `json:"sourceMime,omitempty"`
	Style         string          `json:"style,omitempty"`
	Status        string          `json:"status"`
	Processing    bool            `json:"processing"`
	Progress      SessionProgress `json:"progress"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	NeedsReauth   bool            `json:"needsReauth"`
	CapturedCount int             `json:"capturedCount"`
	StylizedCount int             `json:"stylizedCount"`
	CapturedURLs  []string        `json:"capturedUrls"`
	StylizedURLs  []string        `json:"stylizedUrls"`
	ResultKind    string          `json:"resultKind,omitempty"`
	ResultURL     string          `json:"resultUrl,omitempty"`
	ExportURL     string          `json:"exportUrl,omitempty"`
	CreatedAt     string          `json:"createdAt,omitempty"`
	UpdatedAt     string          `json:"updatedAt,omitempty"`
}

// SessionProgress captures progress for the running job.
type SessionProgress struct {
	Message string  `json:"message"`
	Percent float64 `json:"percent"`
}

// SessionResponse wraps a single session.
type SessionResponse struct {
	Session Session `json:"session"`
}

// SessionListResponse wraps a collection of sessions.
type SessionListResponse struct {
	Sessions []Session `json:"sessions"`
}

// ClearResponse reports how many sessions a clear removed.
type ClearResponse struct {
	Removed int64 `json:"removed"`
}

// StylesResponse lists the preset styles and the default.
type StylesResponse struct {
	Default string   `json:"default"`
	Styles  []string `json:"styles"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running         bool               `json:"running"`
	PID             int                `json:"pid"`
	StorageDriver   string             `json:"storageDriver"`
	SessionDBPath   string             `json:"sessionDbPath,omitempty"`
	LockFilePath    string             `json:"lockFilePath"`
	GeminiModel     string             `json:"geminiModel"`
	GeminiKeyLoaded bool               `json:"geminiKeyLoaded"`
	ActiveJobs      int                `json:"activeJobs"`
	SessionCounts   map[string]int     `json:"sessionCounts"`
	Dependencies    []DependencyStatus `json:"dependencies"`
}

// Config exposes the studio settings the browser UI needs.
type Config struct {
	DefaultStyle      string `json:"defaultStyle"`
	DefaultFrameCount int    `json:"defaultFrameCount"`
	MaxFrameCount     int    `json:"maxFrameCount"`
	PreviewIntervalMS int    `json:"previewIntervalMs"`
	MaxUploadMB       int    `json:"maxUploadMb"`
}

// GenerateRequest starts a style transfer batch.
type GenerateRequest struct {
	Style string `json:"style"`
}

// RefineRequest starts a refinement of the first stylized frame.
type RefineRequest struct {
	Instructions string `json:"instructions"`
}

// ExtractRequest starts frame extraction from the uploaded video.
type ExtractRequest struct {
	Count int `json:"count"`
}

// CaptureRequest carries a camera snapshot as a data URL.
type CaptureRequest struct {
	Image string `json:"image"`
}

// ErrorResponse is the body of every non-2xx JSON response. Reauth is set
// when the Gemini key was rejected and the client should ask for a new one.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reauth bool   `json:"reauth,omitempty"`
}
