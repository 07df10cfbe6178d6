package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/foremanhq/foreman/internal/domain"
)

// ErrNoPlan is returned when the accumulated text contains no candidate
// fenced plan block. This is a soft failure: the session stays in planning.
var ErrNoPlan = errors.New("agent: no plan block found")

// ErrMalformedPlan is returned when a candidate block exists but cannot be
// decoded into a valid plan, even after JSON repair.
var ErrMalformedPlan = errors.New("agent: malformed plan block")

// ExtractPlan scans accumulated assistant text for a fenced structured block
// (```plan, ```json, or a bare fence holding a JSON object) and decodes it
// into an ExecutionPlan. Malformed JSON gets one repair pass before the block
// is rejected. The first block that decodes and validates wins; step ids are
// normalized on the way out.
func ExtractPlan(text string) (*domain.ExecutionPlan, error) {
	blocks := fencedBlocks(text)

	var lastErr error
	sawCandidate := false
	for _, b := range blocks {
		if !planCandidate(b) {
			continue
		}
		sawCandidate = true

		plan, err := decodePlan(b.body)
		if err != nil {
			lastErr = err
			continue
		}

		plan.Normalize()
		return plan, nil
	}

	if sawCandidate {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPlan, lastErr)
	}
	return nil, ErrNoPlan
}

type fencedBlock struct {
	lang string
	body string
}

func planCandidate(b fencedBlock) bool {
	switch b.lang {
	case "plan", "json":
		return true
	case "":
		return strings.HasPrefix(strings.TrimSpace(b.body), "{")
	default:
		return false
	}
}

func decodePlan(body string) (*domain.ExecutionPlan, error) {
	var plan domain.ExecutionPlan

	err := json.Unmarshal([]byte(body), &plan)
	if err != nil {
		// Engines routinely emit almost-JSON: trailing commas, unquoted keys,
		// truncated tails. One repair pass recovers most of these.
		repaired, repairErr := jsonrepair.JSONRepair(body)
		if repairErr != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		if unmarshalErr := json.Unmarshal([]byte(repaired), &plan); unmarshalErr != nil {
			return nil, fmt.Errorf("decode repaired: %w", unmarshalErr)
		}
	}

	if validateErr := plan.Validate(); validateErr != nil {
		return nil, validateErr
	}

	return &plan, nil
}

// fencedBlocks returns every triple-backtick fenced block in order of
// appearance. An unterminated fence yields a block running to end of text,
// which tolerates streams cut off mid-plan.
func fencedBlocks(text string) []fencedBlock {
	var blocks []fencedBlock

	lines := strings.Split(text, "\n")
	inFence := false
	var lang string
	var body []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inFence {
				blocks = append(blocks, fencedBlock{lang: lang, body: strings.Join(body, "\n")})
				inFence = false
				body = nil
				continue
			}
			inFence = true
			lang = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "```")))
			continue
		}
		if inFence {
			body = append(body, line)
		}
	}

	if inFence {
		blocks = append(blocks, fencedBlock{lang: lang, body: strings.Join(body, "\n")})
	}

	return blocks
}
