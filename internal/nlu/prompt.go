package nlu

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"daebak/internal/dialogue"
)

const promptTemplate = `
You are DAEBAK-NLU, the intent extractor for the Mr. Daebak dinner delivery voice order.
Your ONLY job is to convert one Korean customer utterance into a minimal structured JSON.

GENERAL RULES:
1. Do NOT converse.
2. Do NOT answer the customer.
3. Do NOT add explanations.
4. Output ONLY JSON. No markdown.
5. Never invent dinners, styles or quantities the customer did not say.

INPUT:
{"utterance": "<recognized speech>", "currentOrder": { ...order so far... }}

OUTPUT FORMAT:
{
  "intent": "<string>",
  "dinner": "<catalog name or null>",
  "style": "<style id or null>",
  "baguetteCount": <int or null>,
  "champagneCount": <int or null>,
  "deliveryDate": "<string or null>",
  "isCorrect": <bool or null>
}

INTENTS:
- "recommend"        customer asks for a recommendation or something tasty
- "event"            customer names an occasion (birthday, anniversary, ...)
- "choose_dinner"    customer picks a dinner
- "choose_style"     customer picks a serving style
- "adjust_quantity"  customer changes baguette or champagne amounts
- "confirm"          customer answers the order summary (set isCorrect)
- "finish"           customer needs nothing more
- "unknown"          anything else

DINNER CATALOG (use the exact name):
%s

STYLES (use the id):
%s

SLOT RULES:
- baguetteCount / champagneCount: only when a number is said, non-negative integers.
- deliveryDate: keep the customer's phrase ("내일", "모레", "12월 3일").
- isCorrect: true when the customer agrees with the summary, false when they reject it.

If the meaning is unclear → intent = "unknown", every slot null.
`

func buildSystemPrompt(c *dialogue.Catalog) string {
	var dinners, styles strings.Builder
	for _, d := range c.Dinners {
		fmt.Fprintf(&dinners, "- %q\n", d.Name)
	}
	for _, s := range c.Styles {
		fmt.Fprintf(&styles, "- %q = %s\n", s.ID, s.Label)
	}
	return fmt.Sprintf(promptTemplate, strings.TrimRight(dinners.String(), "\n"), strings.TrimRight(styles.String(), "\n"))
}

const resultSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["intent"],
  "properties": {
    "intent": {
      "enum": ["recommend", "event", "choose_dinner", "choose_style", "adjust_quantity", "confirm", "finish", "unknown"]
    },
    "dinner": {"type": ["string", "null"]},
    "style": {"enum": ["simple", "grand", "deluxe", null]},
    "baguetteCount": {"type": ["integer", "null"], "minimum": 0},
    "champagneCount": {"type": ["integer", "null"], "minimum": 0},
    "deliveryDate": {"type": ["string", "null"]},
    "isCorrect": {"type": ["boolean", "null"]}
  }
}`

var resultSchema = mustCompileSchema("https://daebak.schemas.local/nlu/result.schema.json", resultSchemaJSON)

func mustCompileSchema(url, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("nlu schema load failed: %v", err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("nlu schema compile failed: %v", err))
	}
	return compiled
}
