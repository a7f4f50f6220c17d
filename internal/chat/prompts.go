package chat

import "titan/internal/types"

// baseSystemPrompt is the assistant's standing instructions for every turn.
const baseSystemPrompt = `You are Titan, an AI assistant with working tools for files, credentials, the web, and code. You take action rather than describing what you would do. When a request needs information you do not have, use a tool to get it. Keep final answers concise and concrete. Never invent tool results.`

// selfBuildReminder is prepended on self-modification turns.
const selfBuildReminder = `This request modifies the platform's own source code. Read the relevant files before changing anything. File writes are staged and applied together after you finish, so make all needed edits in this turn. Keep changes minimal and consistent with the surrounding code.`

// externalBuildReminder is prepended on external build turns.
const externalBuildReminder = `This request builds something new for the user. Start by gathering context with a read or listing tool, then create the artifact step by step. Prefer working increments over large speculative output.`

// systemMessages returns the system prompt stack for the intent.
func systemMessages(intent types.Intent) []types.ChatMessage {
	msgs := []types.ChatMessage{types.TextMessage(types.RoleSystem, baseSystemPrompt)}
	switch intent {
	case types.IntentSelfBuild:
		msgs = append(msgs, types.TextMessage(types.RoleSystem, selfBuildReminder))
	case types.IntentExternalBuild:
		msgs = append(msgs, types.TextMessage(types.RoleSystem, externalBuildReminder))
	}
	return msgs
}

const malformedToolNote = `Your previous reply attempted a tool call but it was malformed. Call the tool again with its exact name and valid JSON arguments matching the schema, or answer directly without tools.`
