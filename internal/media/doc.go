// Package media generates poster images for finished clips.
//
// A frame is pulled from the clip with FFmpeg, fitted into a 270x480 box
// and written as part<K>.jpg beside part<K>.mp4, so the retention sweeper
// removes it together with the project directory.
package media
