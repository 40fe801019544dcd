package models

// BuiltinDefinitions is the model table used when the configuration does not
// supply its own.
var BuiltinDefinitions = []Definition{
	{ID: "gemini-2.5-flash", Label: "Gemini 2.5 Flash", Helper: "balanced", Supported: true, SupportsTools: true},
	{ID: "gemini-2.5-flash-lite", Label: "Gemini 2.5 Flash Lite", Helper: "cheapest", Supported: true, SupportsTools: true},
	{ID: "gemini-2.5-flash-tts", Label: "Gemini 2.5 Flash TTS", Helper: "text-to-speech", UnsupportedReason: "TTS only (not text-out)."},
	{ID: "gemini-3-flash", Label: "Gemini 3 Flash", Helper: "fast + low latency", Supported: true, SupportsTools: true},
	{ID: "gemini-3-flash-preview", Label: "Gemini 3 Flash Preview", Helper: "preview + thinking", Supported: true, SupportsStreamingThinking: true, SupportsTools: true},
	{ID: "gemini-robotics-er-1.5-preview", Label: "Gemini Robotics ER 1.5 Preview", Helper: "specialized", UnsupportedReason: "Robotics-only model."},
	{ID: "gemma-3-12b", Label: "Gemma 3 12B", Helper: "open model", Supported: true},
	{ID: "gemma-3-1b", Label: "Gemma 3 1B", Helper: "open model", Supported: true},
	{ID: "gemma-3-27b", Label: "Gemma 3 27B", Helper: "open model", Supported: true},
	{ID: "gemma-3-2b", Label: "Gemma 3 2B", Helper: "open model", Supported: true},
	{ID: "gemma-3-4b", Label: "Gemma 3 4B", Helper: "open model", Supported: true},
	{ID: "gemini-2.5-flash-native-audio-dialog", Label: "Gemini 2.5 Flash Native Audio Dialog", Helper: "live audio", UnsupportedReason: "Live API only."},
}

// DefaultStreamModel is the model used by the streaming route when the
// caller does not name one.
const DefaultStreamModel = "gemini-3-flash-preview"

// DefaultChatModel is used by the completion and vision routes.
const DefaultChatModel = "gemini-2.5-flash-lite"
