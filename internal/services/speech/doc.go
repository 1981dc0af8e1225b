// Package speech is a small client for ElevenLabs style text-to-speech APIs.
//
// Synthesize posts one voice line at a time and returns MP3 bytes along with a
// duration estimated from the configured constant bitrate. Errors carry the
// same services markers as the llm package so the pipeline can classify them.
package speech
