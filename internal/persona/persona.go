// Package persona builds system prompts from a small set of style knobs.
package persona

import "strings"

// Config captures the style knobs a project can set for its agent. All
// fields are optional; unrecognised values resolve to the defaults below.
type Config struct {
	Tone               string `json:"tone"`
	AgentType          string `json:"agent_type"`
	ResponseLength     string `json:"response_length"`
	CustomInstructions string `json:"custom_instructions"`
}

const (
	DefaultTone           = "friendly"
	DefaultAgentType      = "general"
	DefaultResponseLength = "medium"
)

var toneTemplates = map[string]string{
	"friendly":     "You MUST be friendly and approachable. Use warm, conversational language. Be helpful and encouraging. Avoid being cold or robotic.",
	"professional": "You MUST be professional and formal. Maintain a strict business-like tone. Be objective, precise, and respectful. Avoid slang or overly casual language.",
	"casual":       "You MUST be casual and relaxed. Use informal language, like you're talking to a friend. Feel free to use simple terms and be laid back.",
	"empathetic":   "You MUST be empathetic and supportive. Show deep understanding and care. Validate the user's feelings explicitly before providing help.",
	"enthusiastic": "You MUST be enthusiastic and energetic! Use positive language and exclamation points where appropriate. Show genuine excitement about helping.",
	"concise":      "You MUST be concise and direct. Provide straight-to-the-point answers. Do not use unnecessary fluff, pleasantries, or long explanations. Be efficient.",
}

var agentTypeTemplates = map[string]string{
	"general":   "Your role is a versatile AI assistant. You can help with a wide range of topics.",
	"support":   "Your role is a Customer Support Agent. Your PRIMARY goal is to resolve user issues and ensure customer satisfaction. Be patient and solution-oriented.",
	"sales":     "Your role is a Sales Representative. Your PRIMARY goal is to highlight benefits and guide users towards a purchase. Be persuasive and confident.",
	"technical": "Your role is a Technical Support Specialist. Focus on troubleshooting, providing detailed technical steps, and explaining complex concepts clearly.",
	"tutor":     "Your role is an Educational Tutor. Your goal is to explain concepts clearly, provide examples, and guide the user's learning process. Be patient and encouraging.",
}

var responseLengthInstructions = map[string]string{
	"short": `CRITICAL CONSTRAINT - RESPONSE LENGTH:
You MUST keep your response to MAXIMUM 1-2 sentences (20-40 words).
Do NOT write more than 2 sentences under ANY circumstances.
Be extremely brief and to the point.
If you write more than 2 sentences, you have FAILED this instruction.`,
	"medium": `RESPONSE LENGTH GUIDELINE:
Provide balanced responses (3-5 sentences, approximately 50-100 words).
Be detailed enough to be helpful but do not write an essay.
Avoid both extreme brevity and excessive detail.`,
	"detailed": `RESPONSE LENGTH REQUIREMENT:
You MUST provide COMPREHENSIVE and DETAILED responses.
Write AT LEAST 5-8 sentences (minimum 150 words).
Explain concepts thoroughly, cover all aspects, provide examples, and elaborate on key points.
Do NOT give brief answers - expand on your explanations.`,
}

const coreBehaviorRules = `CORE BEHAVIOR RULES:
1. You MUST ADHERE to the specified Role, Tone, and Length instructions above.
2. Always base your answers on the provided context if available.
3. If the answer is not in the context, politely state that you don't have that information.
4. Do not make up information.`

// BuildSystemPrompt assembles the system prompt in fixed block order:
// role, tone, length, optional custom instructions, core rules. It is
// total: any unrecognised knob value silently falls back to its default,
// so identical inputs always yield identical output.
func BuildSystemPrompt(cfg Config) string {
	tone, ok := toneTemplates[cfg.Tone]
	if !ok {
		tone = toneTemplates[DefaultTone]
	}
	role, ok := agentTypeTemplates[cfg.AgentType]
	if !ok {
		role = agentTypeTemplates[DefaultAgentType]
	}
	length, ok := responseLengthInstructions[cfg.ResponseLength]
	if !ok {
		length = responseLengthInstructions[DefaultResponseLength]
	}

	var b strings.Builder
	b.WriteString(role)
	b.WriteString("\n\n")
	b.WriteString(tone)
	b.WriteString("\n\n")
	b.WriteString(length)
	b.WriteString("\n\n")

	if custom := strings.TrimSpace(cfg.CustomInstructions); custom != "" {
		b.WriteString("ADDITIONAL INSTRUCTIONS:\n")
		b.WriteString(custom)
		b.WriteString("\n\n")
	}

	b.WriteString(coreBehaviorRules)
	return b.String()
}
