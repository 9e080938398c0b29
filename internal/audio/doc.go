// Package audio segments a continuous PCM stream into fixed-duration
// chunks, gating silent chunks through voice-activity classification,
// and encodes chunks to WAV for the HTTP inference backends.
package audio
