// Package segment computes the fixed-length segment plan for a video.
package segment
