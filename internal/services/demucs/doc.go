// Package demucs shells out to the Demucs separator to split a track into
// vocal, drum, bass, and other stems.
package demucs
