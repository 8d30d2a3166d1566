package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"ocrapi/internal/lang"
)

const (
	// VisionBackendName selects the Google Cloud Vision backend.
	VisionBackendName = "vision"

	// MaxVisionImageBytes is the Vision API limit for inline image content.
	MaxVisionImageBytes = 20 * 1024 * 1024
)

// GoogleVisionBackend implements Backend using Google Cloud Vision API.
// All engine instances share one client; the instance only carries the language hint.
type GoogleVisionBackend struct {
	client *vision.ImageAnnotatorClient
}

// NewGoogleVisionBackend creates a Vision backend with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewGoogleVisionBackend(ctx context.Context) (*GoogleVisionBackend, error) {
	const op = "NewGoogleVisionBackend"

	var client *vision.ImageAnnotatorClient
	var err error

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		// Try default credentials as fallback
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return &GoogleVisionBackend{client: client}, nil
}

// Name implements Backend.
func (g *GoogleVisionBackend) Name() string { return VisionBackendName }

// Version implements Backend.
func (g *GoogleVisionBackend) Version() string { return "v1" }

// EngineTag returns the BCP 47 form of tag, which Vision accepts as a hint.
func (g *GoogleVisionBackend) EngineTag(tag language.Tag) string {
	return tag.String()
}

// Languages returns every supported language; Vision needs no local data.
func (g *GoogleVisionBackend) Languages() ([]string, error) {
	tags := lang.Supported()
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = g.EngineTag(t)
	}
	return out, nil
}

// NewEngine implements Backend.
func (g *GoogleVisionBackend) NewEngine(_ context.Context, engineTag string) (Engine, error) {
	if _, err := language.Parse(engineTag); err != nil {
		return nil, NewOCRError("NewEngine", err, fmt.Sprintf("invalid language hint %q", engineTag))
	}
	return &visionEngine{client: g.client, hint: engineTag}, nil
}

// Close closes the underlying Vision client.
func (g *GoogleVisionBackend) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

type visionEngine struct {
	client *vision.ImageAnnotatorClient
	hint   string
}

func (e *visionEngine) Recognize(ctx context.Context, img Image) (Output, error) {
	const op = "VisionRecognize"

	content, err := os.ReadFile(img.Path)
	if err != nil {
		return Output{}, WrapOCRError(op, err, "failed to read image")
	}
	if len(content) > MaxVisionImageBytes {
		return Output{}, NewOCRError(op, ErrRecognitionFailed, fmt.Sprintf("image size %d bytes exceeds the Vision limit", len(content)))
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: content},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				ImageContext: &visionpb.ImageContext{
					LanguageHints: []string{e.hint},
				},
			},
		},
	}

	resp, err := e.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return Output{}, WrapOCRError(op, err, "Vision API call failed")
	}
	if len(resp.Responses) == 0 {
		return Output{}, NewOCRError(op, ErrRecognitionFailed, "no response from Vision API")
	}

	return processVisionResponse(resp.Responses[0])
}

// Close is a no-op; the client belongs to the backend.
func (e *visionEngine) Close() error { return nil }

// processVisionResponse turns one image annotation into lines. Each line takes
// the confidence of the block it belongs to.
func processVisionResponse(resp *visionpb.AnnotateImageResponse) (Output, error) {
	if resp.Error != nil {
		return Output{}, NewOCRError("processVisionResponse", ErrRecognitionFailed, fmt.Sprintf("Vision API error: %s", resp.Error.Message))
	}

	doc := resp.FullTextAnnotation
	if doc == nil {
		return Output{}, nil
	}

	var lines []Line
	for _, page := range doc.Pages {
		for _, block := range page.Blocks {
			text := blockText(block)
			for _, l := range strings.Split(text, "\n") {
				if strings.TrimSpace(l) == "" {
					continue
				}
				lines = append(lines, Line{Text: l, Confidence: float64(block.Confidence)})
			}
		}
	}
	if len(lines) == 0 {
		return Output{Text: doc.Text}, nil
	}
	return Output{Text: doc.Text, Lines: lines}, nil
}

// blockText rebuilds the text of a block from its symbols and detected breaks.
func blockText(block *visionpb.Block) string {
	var sb strings.Builder
	for _, para := range block.Paragraphs {
		for _, word := range para.Words {
			for _, sym := range word.Symbols {
				sb.WriteString(sym.Text)
				if sym.Property == nil || sym.Property.DetectedBreak == nil {
					continue
				}
				switch sym.Property.DetectedBreak.Type {
				case visionpb.TextAnnotation_DetectedBreak_SPACE,
					visionpb.TextAnnotation_DetectedBreak_SURE_SPACE:
					sb.WriteByte(' ')
				case visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE,
					visionpb.TextAnnotation_DetectedBreak_LINE_BREAK:
					sb.WriteByte('\n')
				case visionpb.TextAnnotation_DetectedBreak_HYPHEN:
					// the end-of-line hyphen is not among the symbols
					sb.WriteString("-\n")
				}
			}
		}
	}
	return sb.String()
}
