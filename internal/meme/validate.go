package meme

import (
	"fmt"

	"memegen-bot/internal/args"
	"memegen-bot/internal/memeapi"
)

// Policy controls what happens when more images or texts arrive than
// the template allows: truncate to the maximum, or reject.
type Policy struct {
	TolerateExcess bool
}

// CountMismatchError reports an argument count outside the template's
// declared range. It is user-correctable: replies state the range.
type CountMismatchError struct {
	Kind   string // "image" or "text"
	Min    int
	Max    int
	Actual int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("%s count %d outside range [%d, %s]", e.Kind, e.Actual, e.Min, boundLabel(e.Max))
}

func boundLabel(max int) string {
	if max <= 0 {
		return "∞"
	}
	return fmt.Sprintf("%d", max)
}

// applyConstraints enforces the template's count contract on parsed,
// in order: inject the invoker's avatar when images are exactly one
// short of the minimum, substitute declared default texts when none
// were supplied, then settle excess per policy and fail anything still
// under the minimum.
func applyConstraints(parsed *args.Parsed, info memeapi.TemplateInfo, self args.ImageRef, policy Policy) error {
	if info.MinImages > 0 && len(parsed.Images) == info.MinImages-1 {
		parsed.Images = append([]args.ImageRef{self}, parsed.Images...)
	}

	if len(parsed.Texts) == 0 && len(info.DefaultTexts) > 0 {
		parsed.Texts = append([]string(nil), info.DefaultTexts...)
	}

	if info.MaxImages > 0 && len(parsed.Images) > info.MaxImages {
		if !policy.TolerateExcess {
			return &CountMismatchError{Kind: "image", Min: info.MinImages, Max: info.MaxImages, Actual: len(parsed.Images)}
		}
		parsed.Images = parsed.Images[:info.MaxImages]
	}

	if info.MaxTexts > 0 && len(parsed.Texts) > info.MaxTexts {
		if !policy.TolerateExcess {
			return &CountMismatchError{Kind: "text", Min: info.MinTexts, Max: info.MaxTexts, Actual: len(parsed.Texts)}
		}
		parsed.Texts = parsed.Texts[:info.MaxTexts]
	}

	if len(parsed.Images) < info.MinImages {
		return &CountMismatchError{Kind: "image", Min: info.MinImages, Max: info.MaxImages, Actual: len(parsed.Images)}
	}
	if len(parsed.Texts) < info.MinTexts {
		return &CountMismatchError{Kind: "text", Min: info.MinTexts, Max: info.MaxTexts, Actual: len(parsed.Texts)}
	}

	return nil
}
