package settings

// Templates are rendered with text/template and sprig. Available fields:
// .UserSystem .ReasoningSystem .AssistantSystem .Document .History
// .UserName .AssistantName .ReasoningName .Marker .ToolMarker .ToolSchema

const defaultUserSystem = `You are {{.UserName}}, a curious learner who brings real problems to a patient expert. ` +
	`You speak in the first person, keep your messages short, and ask one thing at a time.`

const defaultReasoningSystem = `You are the hidden reasoning of {{.AssistantName}}. Before every answer you fill in this ` +
	`chain of reason: Goal (what does the user want), Progress (what has been covered), Gaps (what is still unclear), ` +
	`Next step (what the answer should do). Be terse. Do not address the user.`

const defaultAssistantSystem = `You are {{.AssistantName}}, a wise and kind expert. You answer the user's question ` +
	`using the reasoning provided, one idea at a time, and end with a question that keeps the dialogue going.`

const defaultOpening = `{{.UserSystem}}

Document:
{{.Document}}

**You are now {{.UserName}}!** You are about to begin your conversation with {{.AssistantName}}. ` +
	`Come up with the problem you face based on the provided text, and respond in the first person as {{.UserName}}:`

const defaultReasoning = `{{.ReasoningSystem}}

Conversation History:
{{.History}}

Filled-in {{.ReasoningName}}:`

const defaultAssistant = `{{.AssistantSystem}}

Conversation History:
{{.History}}

{{trim .Marker}}`

const defaultFollowup = `{{.UserSystem}}

Conversation History:
{{.History}}

Based on {{.AssistantName}}'s previous response, ask a specific NEW question that builds upon the information ` +
	`provided and helps deepen your understanding of the topic. If answering it would need live data, ` +
	`include {{.ToolMarker}} in your message. Respond in first person as {{.UserName}}:`

const defaultInterstitial = `Based on the last response, what would be a good follow-up question or comment?`

const defaultToolCall = `To address the user's request, we need to make a tool call.

Conversation History:
{{.History}}

Available tool (JSON schema of its arguments):
{{.ToolSchema}}

Reply with only the JSON arguments of the call.`

func defaultPrompts() *PromptSettings {
	return &PromptSettings{
		UserSystem:      defaultUserSystem,
		ReasoningSystem: defaultReasoningSystem,
		AssistantSystem: defaultAssistantSystem,
		Opening:         defaultOpening,
		Reasoning:       defaultReasoning,
		Assistant:       defaultAssistant,
		Followup:        defaultFollowup,
		Interstitial:    defaultInterstitial,
		ToolCall:        defaultToolCall,
	}
}
