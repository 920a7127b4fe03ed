package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/scribe-api/internal/domain"
)

// MaxScenesPerChapter bounds the size of an accepted outline.
const MaxScenesPerChapter = 40

var validate = validator.New()

type outlineResponse struct {
	Scenes []outlineScene `json:"scenes" validate:"required,min=1,dive"`
}

type outlineScene struct {
	Title           string `json:"title"             validate:"required,max=300"`
	POV             string `json:"pov"               validate:"max=200"`
	Location        string `json:"location"          validate:"max=300"`
	Summary         string `json:"summary"           validate:"max=4000"`
	TargetWordCount int    `json:"target_word_count" validate:"gte=0,lte=20000"`
}

// ParseOutline decodes a model's JSON outline into scene stubs numbered from 1.
// Markdown code fences around the JSON are tolerated.
func ParseOutline(text string) ([]domain.SceneStub, error) {
	body := stripCodeFence(text)
	if body == "" {
		return nil, fmt.Errorf("%w: empty outline", ErrInvalidResponse)
	}

	var resp outlineResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse outline JSON: %v", ErrInvalidResponse, err)
	}
	if err := validate.Struct(resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(resp.Scenes) > MaxScenesPerChapter {
		return nil, fmt.Errorf("%w: outline has %d scenes, limit is %d",
			ErrInvalidResponse, len(resp.Scenes), MaxScenesPerChapter)
	}

	stubs := make([]domain.SceneStub, len(resp.Scenes))
	for i, s := range resp.Scenes {
		stubs[i] = domain.SceneStub{
			SceneNumber:     i + 1,
			Title:           strings.TrimSpace(s.Title),
			POV:             strings.TrimSpace(s.POV),
			Location:        strings.TrimSpace(s.Location),
			Summary:         strings.TrimSpace(s.Summary),
			TargetWordCount: s.TargetWordCount,
			Status:          domain.SceneStatusPending,
		}
	}
	return stubs, nil
}

// CleanProse trims model prose and rejects empty output.
func CleanProse(text string) (string, error) {
	prose := strings.TrimSpace(stripCodeFence(text))
	if prose == "" {
		return "", fmt.Errorf("%w: empty scene text", ErrInvalidResponse)
	}
	return prose, nil
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
