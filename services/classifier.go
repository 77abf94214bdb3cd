package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"drive-deals-scraper/models"
	"drive-deals-scraper/utils"
)

// Completer sends a prompt to a text model and returns its raw reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ErrMalformedReply marks replies that are not the expected JSON object.
var ErrMalformedReply = errors.New("malformed classifier reply")

const bodyLimit = 500

const promptTemplate = `Analyze this Swedish Blocket listing and extract information:
Title: %s
Description: %s
Price: %s SEK

Tasks:
1. Is this actually a hard drive (HDD/SSD) for sale? (not a computer/laptop that happens to mention storage)
2. What is the storage capacity in TB? Convert GB to TB if needed.
3. Extract the exact price in SEK
4. Is this an SSD (solid state) or HDD (mechanical)?
   - SSD indicators: "SSD", "NVMe", "M.2", "M2", "Solid State", "Flash", "Samsung 980", "Samsung 970", "Samsung 870", "Kingston Fury", "Crucial P3"
   - HDD indicators: "HDD", "mekanisk", "mechanisk", "7200 RPM", "5400 RPM", "WD Red", "WD Blue", "IronWolf", "Exos", "Barracuda"
   - If title/description mentions "SSD" it's definitely an SSD
   - Traditional "extern hårddisk" or "hårddisk" without SSD mentioned is usually HDD

Respond ONLY with JSON:
{
  "is_hard_drive": true/false,
  "capacity_tb": number or null,
  "price_sek": number or null,
  "is_ssd": true/false,
  "confidence": "high/medium/low"
}`

const replySchema = `{
  "type": "object",
  "required": ["is_hard_drive"],
  "properties": {
    "is_hard_drive": {"type": "boolean"},
    "capacity_tb":   {"type": ["number", "null"], "minimum": 0},
    "price_sek":     {"type": ["number", "null"], "minimum": 0},
    "is_ssd":        {"type": ["boolean", "null"]},
    "confidence":    {"enum": ["high", "medium", "low", null]}
  }
}`

var replySchemaLoader = gojsonschema.NewStringLoader(replySchema)

type reply struct {
	IsHardDrive bool     `json:"is_hard_drive"`
	CapacityTB  *float64 `json:"capacity_tb"`
	PriceSEK    *float64 `json:"price_sek"`
	IsSSD       *bool    `json:"is_ssd"`
	Confidence  *string  `json:"confidence"`
}

// Classifier extracts drive attributes from listing text. It never fails:
// anything that goes wrong yields a degraded classification.
type Classifier struct {
	llm    Completer
	schema *gojsonschema.Schema
	retry  *utils.RetryConfig
	pacer  *utils.Pacer
	logger *utils.Logger
}

// NewClassifier builds a Classifier. Calls are spaced at least delay apart
// and transport errors are retried up to maxAttempts times in total.
func NewClassifier(llm Completer, delay time.Duration, maxAttempts int, logger *utils.Logger) (*Classifier, error) {
	schema, err := gojsonschema.NewSchema(replySchemaLoader)
	if err != nil {
		return nil, fmt.Errorf("classifier: compile schema: %w", err)
	}
	return &Classifier{
		llm:    llm,
		schema: schema,
		retry: &utils.RetryConfig{
			MaxAttempts: maxAttempts,
			BaseDelay:   time.Second,
			Logger:      logger,
		},
		pacer:  utils.NewPacer(delay),
		logger: logger,
	}, nil
}

// Classify asks the model about c.
func (c *Classifier) Classify(ctx context.Context, cand models.RawCandidate) models.Classification {
	if err := c.pacer.Wait(ctx); err != nil {
		return degraded(err)
	}

	prompt := BuildPrompt(cand)
	var text string
	err := c.retry.Do(ctx, "classify-"+cand.ID, func() error {
		var err error
		text, err = c.llm.Complete(ctx, prompt)
		return err
	})
	if err != nil {
		return degraded(err)
	}

	res, err := c.parse(text)
	if err != nil {
		c.logger.Debug("[classifier] %s: unusable reply %q", cand.ID, truncate(text, 200))
		return degraded(err)
	}
	return models.Classification{Outcome: models.OutcomeClassified, Result: res}
}

func (c *Classifier) parse(text string) (models.ClassificationResult, error) {
	body := StripCodeFences(text)

	result, err := c.schema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return models.ClassificationResult{}, fmt.Errorf("%w: %v", ErrMalformedReply, errs)
	}

	var r reply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return models.ClassificationResult{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	out := models.ClassificationResult{
		IsRelevantItem: r.IsHardDrive,
		CapacityTB:     r.CapacityTB,
		PriceSEK:       r.PriceSEK,
		Confidence:     models.ConfidenceLow,
	}
	if r.IsSSD != nil {
		out.IsVariantB = *r.IsSSD
	}
	if r.Confidence != nil {
		out.Confidence = models.Confidence(*r.Confidence)
	}
	return out, nil
}

func degraded(reason error) models.Classification {
	return models.Classification{
		Outcome: models.OutcomeDegraded,
		Result:  models.DegradedResult(),
		Reason:  reason,
	}
}

// BuildPrompt renders the extraction prompt for a candidate. The body is cut
// to its first 500 characters.
func BuildPrompt(cand models.RawCandidate) string {
	return fmt.Sprintf(promptTemplate,
		cand.Heading,
		truncate(cand.Body, bodyLimit),
		formatPrice(cand.Price))
}

func formatPrice(p float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.2f", p), ".00")
}

// StripCodeFences removes markdown code fences models like to wrap JSON in.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
