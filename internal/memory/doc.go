// Package memory keeps image decoding inside the container's memory budget.
//
// [ConfigureFromEnv] sets GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO
// (an explicit GOMEMLIMIT takes precedence). Kubernetes can pass the
// container limit through the Downward API:
//
//	env:
//	- name: MEMORY_LIMIT
//	  valueFrom:
//	    resourceFieldRef:
//	      resource: limits.memory
//	- name: MEMORY_RATIO
//	  value: "0.80"
//
// Lower the ratio when ENCODER=vips or video thumbnails are enabled: libvips
// and ffmpeg allocate outside the Go heap.
//
// A [Gate] samples heap usage and closes above PauseAt, reopening below
// ResumeAt. The publisher calls [Gate.Acquire] before decoding a pixel
// payload so a burst of large uploads waits instead of exhausting memory.
package memory
