/*
Package workers sizes worker pools for containerized deployments.

runtime.NumCPU reports the host's CPUs, while GOMAXPROCS follows the
container's cgroup CPU limit (Go 1.19+). A pod limited to 2 CPUs on a
64-core node should run 2 concurrent encodes, not 64.

	capacity := workers.ForCPU(8)  // encodes: 1 per CPU, at most 8
	fetchers := workers.ForIO(16)  // downloads: 2 per CPU, at most 16

FromEnv lets operators override a computed value:

	capacity := workers.FromEnv("QUEUE_CAPACITY", workers.ForCPU(8))
*/
package workers
