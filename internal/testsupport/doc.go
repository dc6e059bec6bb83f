// Package testsupport holds builders shared by package tests: temp-dir
// configs, SQLite stores, encoded sample images, and shell stubs standing in
// for ffmpeg and ffprobe.
package testsupport
