// Package vad provides voice-activity classification over PCM16 audio.
// It implements a windowed energy detector; the interface matches what a
// model-backed detector (e.g. Silero over ONNX) would provide.
package vad
