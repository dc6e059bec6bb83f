// Package fileutil writes uploads and exports to disk atomically.
package fileutil
