// Package staging maintains the upload and render directories: it removes
// media files no session references any more and reports disk usage.
package staging
