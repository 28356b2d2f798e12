// Package audio provides the default collaborator implementations behind
// the executor interfaces: a chapter source for plain-text books, a
// synthesizer that shells out to an external TTS command, and an encoder
// that concatenates chapter audio with ffmpeg.
package audio
