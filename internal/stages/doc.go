// Package stages defines the contracts for the external collaborators the
// pipeline drives and ships HTTP-backed implementations of them.
//
// Researcher, ScriptWriter, Transformer and Synthesizer know nothing about
// caching. Each also reports a Profile for a cost tier so the orchestrator can
// fold the model into the work unit fingerprint and check the budget before a
// cache miss is computed.
//
// Implementations:
//   - LLMResearcher, LLMScriptWriter, LLMTransformer use an OpenAI compatible
//     chat completion client in JSON mode.
//   - DocumentResearcher ranks passages from fixed documents locally.
//   - SpeechSynthesizer voices each segment with the speaking host.
package stages
