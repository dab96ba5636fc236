/*
Package workers sizes worker pools from the CPUs the process may actually use.

runtime.NumCPU reports host CPUs, which overstates what a container with a
CPU limit can run. GOMAXPROCS follows the cgroup limit (Go 1.19+), so
Count scales from it:

	workers.ForIO(16)     // 2 per CPU, index scans that mostly stat and hit SQLite
	workers.Count(1.0, 8) // 1 per CPU, for CPU-bound pools

Always pass a limit; 0 means unbounded.

The INDEX_WORKERS environment variable overrides the calculation (still
capped by the limit), which is useful on NFS-backed media volumes where
fewer concurrent stats behave better.
*/
package workers
