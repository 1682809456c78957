// Package processor runs one job's segment plan through ffmpeg, one
// segment at a time, and reports a Summary of processed and failed clips.
package processor
