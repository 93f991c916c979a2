package site

// Provider identifies the scheduler backing a pool.
type Provider string

const (
	ProviderLocal     Provider = "local"
	ProviderSlurm     Provider = "slurm"
	ProviderTorque    Provider = "torque"
	ProviderWorkQueue Provider = "workqueue"
)

// Pool is a named unit of compute capacity the execution engine stands up
// for a run: its resource ceiling plus the scheduler parameters needed to
// provision it.
type Pool struct {
	// Label is unique among the pools of a run.
	Label    string
	Provider Provider

	// Block shape.
	Nodes        int
	CoresPerNode int
	MemPerNodeGB int

	// MemPerWorkerGB caps workers per node by memory; zero means no cap.
	MemPerWorkerGB float64

	// MaxWorkers caps concurrent workers directly (local provider).
	MaxWorkers int

	// Walltime is the scheduler time limit per block, "HH:MM:SS".
	Walltime string

	// Scheduler parameters.
	Partition        string
	QOS              string
	Queue            string
	Account          string
	SchedulerOptions string
	WorkerInit       string

	// Singleton permits at most one running block for this pool's job name,
	// letting a second block queue behind it.
	Singleton bool

	// Block scaling.
	InitBlocks int
	MinBlocks  int
	MaxBlocks  int

	// Port is the broker port for work-queue pools, and Address the driver
	// address workers call back to.
	Port    int
	Address string

	// AcceptsResourceHints reports whether per-job resource requests may be
	// forwarded to this pool. Pools that do not accept hints reject them at
	// submission, so this is checked at configuration time instead.
	AcceptsResourceHints bool
}

// Workers returns the pool's concurrent-worker capacity as seen by a local
// execution engine.
func (p Pool) Workers() int {
	if p.MaxWorkers > 0 {
		return p.MaxWorkers
	}
	n := p.Nodes * p.CoresPerNode
	if n < 1 {
		return 1
	}
	return n
}
